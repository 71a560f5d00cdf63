package invindex

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rohmanhakim/docs-crawler/internal/docstore"
	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/internal/normalize"
	"github.com/rohmanhakim/docs-crawler/pkg/failure"
	"github.com/rohmanhakim/docs-crawler/pkg/fileutil"
)

/*
Responsibilities
- Map term -> (DocId -> positions)
- Relieve write contention by sharding terms across independent buckets
- Reject re-indexing of a DocId that has already contributed postings
- Periodically snapshot to disk and reload that snapshot on startup

Sharding: term -> shard is fnv32a(term) % 16. Each shard carries its own
sync.RWMutex so two goroutines indexing documents whose terms land in
different shards never block each other — the teacher's own rate
limiter and storage packages lock per-host/per-write rather than
globally, and this follows the same instinct at the term level.
*/

type InvertedIndex struct {
	shards      [shardCount]*shardState
	indexedMu   sync.Mutex
	indexed     map[docstore.DocId]struct{}
	corpusSize  func() int

	metadataSink  metadata.MetadataSink
	outputDir     string
	insertsSince  int
	compactionMu  sync.Mutex
	compactionGap int
}

type shardState struct {
	mu       sync.RWMutex
	postings map[string]Posting
}

func NewInvertedIndex(outputDir string, corpusSize func() int, metadataSink metadata.MetadataSink) (*InvertedIndex, failure.ClassifiedError) {
	idx := &InvertedIndex{
		indexed:       make(map[docstore.DocId]struct{}),
		corpusSize:    corpusSize,
		metadataSink:  metadataSink,
		outputDir:     outputDir,
		compactionGap: 50,
	}
	for i := range idx.shards {
		idx.shards[i] = &shardState{postings: make(map[string]Posting)}
	}

	if err := idx.loadSnapshot(); err != nil {
		return nil, err
	}

	return idx, nil
}

func shardFor(term string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return int(h.Sum32() % shardCount)
}

// AddDocument appends every (term, position) pair from tokens to that
// term's posting for docId. Re-insertion of an already-indexed DocId is
// rejected outright rather than replacing its contributions.
func (idx *InvertedIndex) AddDocument(docId docstore.DocId, tokens normalize.TokenStream) failure.ClassifiedError {
	idx.indexedMu.Lock()
	if _, already := idx.indexed[docId]; already {
		idx.indexedMu.Unlock()
		err := &IndexError{
			Message:   fmt.Sprintf("DocId %d already indexed", docId),
			Retryable: false,
			Cause:     ErrCauseAlreadyIndexed,
		}
		idx.metadataSink.RecordError(
			time.Now(),
			"invindex",
			"InvertedIndex.AddDocument",
			mapIndexErrorToMetadataCause(err),
			err.Error(),
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrDocID, strconv.FormatUint(uint64(docId), 10))},
		)
		return err
	}
	idx.indexed[docId] = struct{}{}
	idx.indexedMu.Unlock()

	for _, tok := range tokens {
		s := idx.shards[shardFor(tok.Term)]
		s.mu.Lock()
		posting, ok := s.postings[tok.Term]
		if !ok {
			posting = make(Posting)
			s.postings[tok.Term] = posting
		}
		posting[docId] = append(posting[docId], tok.Position)
		s.mu.Unlock()
	}

	idx.maybeCompact()
	return nil
}

// Posting returns a copy of the posting list for term, or nil if the
// term has never been indexed.
func (idx *InvertedIndex) Posting(term string) map[docstore.DocId][]int {
	s := idx.shards[shardFor(term)]
	s.mu.RLock()
	defer s.mu.RUnlock()

	posting, ok := s.postings[term]
	if !ok {
		return nil
	}
	out := make(map[docstore.DocId][]int, len(posting))
	for id, positions := range posting {
		cp := make([]int, len(positions))
		copy(cp, positions)
		out[id] = cp
	}
	return out
}

// AllPostings returns a copy of every term's posting list, keyed by
// term, taking each shard's read lock only long enough to copy it —
// the same snapshot-under-read-lock shape compact uses. Callers that
// need every document's term frequencies (the Ranker building TF-IDF
// vectors) use this instead of re-deriving term data from DocStore
// content, which a placeholder Insert (an outlink discovered before it
// is crawled) leaves empty.
func (idx *InvertedIndex) AllPostings() map[string]map[docstore.DocId][]int {
	out := make(map[string]map[docstore.DocId][]int)
	for _, s := range idx.shards {
		s.mu.RLock()
		for term, posting := range s.postings {
			cp := make(map[docstore.DocId][]int, len(posting))
			for id, positions := range posting {
				posCopy := make([]int, len(positions))
				copy(posCopy, positions)
				cp[id] = posCopy
			}
			out[term] = cp
		}
		s.mu.RUnlock()
	}
	return out
}

func (idx *InvertedIndex) DocFrequency(term string) int {
	s := idx.shards[shardFor(term)]
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.postings[term])
}

func (idx *InvertedIndex) CorpusSize() int {
	if idx.corpusSize == nil {
		return 0
	}
	return idx.corpusSize()
}

func (idx *InvertedIndex) maybeCompact() {
	idx.compactionMu.Lock()
	idx.insertsSince++
	due := idx.insertsSince >= idx.compactionGap
	if due {
		idx.insertsSince = 0
	}
	idx.compactionMu.Unlock()

	if due {
		idx.compact()
	}
}

// compact rewrites inverted.jsonl from the current in-memory shards. It
// is not called under any shard lock; each shard is read-locked only
// long enough to copy its postings.
func (idx *InvertedIndex) compact() {
	if idx.outputDir == "" {
		return
	}
	if err := fileutil.EnsureDir(idx.outputDir); err != nil {
		return
	}

	path := filepath.Join(idx.outputDir, "inverted.jsonl")
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		idx.recordWriteFailure(err)
		return
	}

	writer := bufio.NewWriter(f)
	for _, s := range idx.shards {
		s.mu.RLock()
		for term, posting := range s.postings {
			encoded := make(map[string][]int, len(posting))
			for id, positions := range posting {
				encoded[strconv.FormatUint(uint64(id), 10)] = positions
			}
			body, marshalErr := json.Marshal(line{Term: term, Postings: encoded})
			if marshalErr != nil {
				continue
			}
			_, _ = writer.Write(body)
			_, _ = writer.WriteString("\n")
		}
		s.mu.RUnlock()
	}

	if err := writer.Flush(); err != nil {
		_ = f.Close()
		idx.recordWriteFailure(err)
		return
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		idx.recordWriteFailure(err)
		return
	}
	_ = f.Close()

	_ = os.Rename(tmpPath, path)

	idx.metadataSink.RecordArtifact(
		metadata.ArtifactInvertedIndexDump,
		path,
		nil,
	)
}

func (idx *InvertedIndex) recordWriteFailure(err error) {
	idx.metadataSink.RecordError(
		time.Now(),
		"invindex",
		"InvertedIndex.compact",
		metadata.CauseStorageFailure,
		err.Error(),
		nil,
	)
}

func (idx *InvertedIndex) loadSnapshot() failure.ClassifiedError {
	if idx.outputDir == "" {
		return nil
	}
	path := filepath.Join(idx.outputDir, "inverted.jsonl")
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ln line
		if err := json.Unmarshal(raw, &ln); err != nil {
			idx.recordCorruptLine(path)
			continue
		}

		posting := make(Posting, len(ln.Postings))
		valid := true
		for idStr, positions := range ln.Postings {
			id, parseErr := strconv.ParseUint(idStr, 10, 64)
			if parseErr != nil {
				valid = false
				break
			}
			posting[docstore.DocId(id)] = positions
		}
		if !valid {
			idx.recordCorruptLine(path)
			continue
		}

		s := idx.shards[shardFor(ln.Term)]
		s.mu.Lock()
		s.postings[ln.Term] = posting
		s.mu.Unlock()

		for id := range posting {
			idx.indexed[id] = struct{}{}
		}
	}

	return nil
}

func (idx *InvertedIndex) recordCorruptLine(path string) {
	idx.metadataSink.RecordError(
		time.Now(),
		"invindex",
		"InvertedIndex.loadSnapshot",
		metadata.CauseInvariantViolation,
		"discarding corrupt inverted index snapshot line",
		[]metadata.Attribute{metadata.NewAttr(metadata.AttrPath, path)},
	)
}
