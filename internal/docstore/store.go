package docstore

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/pkg/failure"
	"github.com/rohmanhakim/docs-crawler/pkg/fileutil"
	"github.com/rohmanhakim/docs-crawler/pkg/hashutil"
)

/*
Responsibilities
- Assign DocIds densely, in insertion order
- Persist every insert to an append-only log before it is visible to readers
- Rebuild the in-memory index from that log on startup
- Detect a truncated or corrupted tail line and discard it rather than fail

Durability model, adapted from the teacher's LocalSink: each record is
JSON-encoded, blake3-checksummed, and written with a single os.File.Write
followed by Sync. A crash mid-write leaves the last line short or with a
mismatched checksum; the loader drops that one line and otherwise
proceeds — a logged reset of the tail, never a crash.
*/

type Store interface {
	Insert(url, content, title string, date time.Time, meta map[string]string) (DocId, failure.ClassifiedError)
	GetByID(id DocId) (Record, bool)
	GetID(url string) (DocId, bool)
	IterAll() []Record
}

type JSONLStore struct {
	mu       sync.RWMutex
	file     *os.File
	byUrl    map[string]DocId
	records  []Record // index 0 unused; records[i] has ID == DocId(i)
	hashAlgo hashutil.HashAlgo

	metadataSink metadata.MetadataSink
}

var _ Store = (*JSONLStore)(nil)

func NewJSONLStore(outputDir string, metadataSink metadata.MetadataSink) (*JSONLStore, failure.ClassifiedError) {
	if err := fileutil.EnsureDir(outputDir); err != nil {
		return nil, &DocStoreError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
			Path:      outputDir,
		}
	}

	path := filepath.Join(outputDir, "docs.jsonl")

	store := &JSONLStore{
		byUrl:        make(map[string]DocId),
		records:      make([]Record, 1), // placeholder for DocId 0, never used
		hashAlgo:     hashutil.HashAlgoBLAKE3,
		metadataSink: metadataSink,
	}

	if err := store.loadExisting(path); err != nil {
		return nil, err
	}

	file, openErr := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if openErr != nil {
		return nil, &DocStoreError{
			Message:   openErr.Error(),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
			Path:      path,
		}
	}
	store.file = file

	return store, nil
}

func (s *JSONLStore) loadExisting(path string) failure.ClassifiedError {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &DocStoreError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
			Path:      path,
		}
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
		if jsonErr := json.Unmarshal(raw, &ln); jsonErr != nil {
			s.recordCorruptLine(path, "unmarshal failed")
			continue
		}
		if !s.verifyChecksum(ln) {
			s.recordCorruptLine(path, "checksum mismatch")
			continue
		}

		rec := Record{
			ID:      ln.ID,
			Url:     ln.Url,
			Content: ln.Content,
			Title:   ln.Title,
			Meta:    ln.Meta,
		}
		if ln.Date != nil {
			rec.Date = *ln.Date
		}

		for DocId(len(s.records)) <= rec.ID {
			s.records = append(s.records, Record{})
		}
		s.records[rec.ID] = rec
		s.byUrl[rec.Url] = rec.ID
	}

	return nil
}

func (s *JSONLStore) recordCorruptLine(path, reason string) {
	if s.metadataSink == nil {
		return
	}
	s.metadataSink.RecordError(
		time.Now(),
		"docstore",
		"JSONLStore.loadExisting",
		metadata.CauseInvariantViolation,
		fmt.Sprintf("discarding corrupt log line: %s", reason),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrPath, path),
		},
	)
}

func (s *JSONLStore) verifyChecksum(ln line) bool {
	want := ln.Checksum
	ln.Checksum = ""
	body, err := json.Marshal(ln)
	if err != nil {
		return false
	}
	got, err := hashutil.HashBytes(body, hashutil.HashAlgoBLAKE3)
	if err != nil {
		return false
	}
	return got == want
}

func (s *JSONLStore) Insert(url, content, title string, date time.Time, meta map[string]string) (DocId, failure.ClassifiedError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byUrl[url]; ok {
		return existing, nil
	}

	id := DocId(len(s.records))
	rec := Record{
		ID:      id,
		Url:     url,
		Content: content,
		Title:   title,
		Date:    date,
		Meta:    meta,
	}

	if err := s.append(rec); err != nil {
		return 0, err
	}

	s.records = append(s.records, rec)
	s.byUrl[url] = id

	s.metadataSink.RecordArtifact(
		metadata.ArtifactDocStoreSegment,
		fmt.Sprintf("docstore:%d", id),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrDocID, fmt.Sprintf("%d", id)),
			metadata.NewAttr(metadata.AttrURL, url),
		},
	)

	return id, nil
}

func (s *JSONLStore) append(rec Record) failure.ClassifiedError {
	ln := line{
		ID:      rec.ID,
		Url:     rec.Url,
		Content: rec.Content,
		Title:   rec.Title,
		Meta:    rec.Meta,
	}
	if rec.hasDate() {
		d := rec.Date
		ln.Date = &d
	}

	body, err := json.Marshal(ln)
	if err != nil {
		return &DocStoreError{Message: err.Error(), Retryable: false, Cause: ErrCauseWriteFailure}
	}
	checksum, err := hashutil.HashBytes(body, hashutil.HashAlgoBLAKE3)
	if err != nil {
		return &DocStoreError{Message: err.Error(), Retryable: false, Cause: ErrCauseHashComputationFailed}
	}
	ln.Checksum = checksum

	encoded, err := json.Marshal(ln)
	if err != nil {
		return &DocStoreError{Message: err.Error(), Retryable: false, Cause: ErrCauseWriteFailure}
	}
	encoded = append(encoded, '\n')

	if _, writeErr := s.file.Write(encoded); writeErr != nil {
		cause := ErrCauseWriteFailure
		retryable := false
		if errors.Is(writeErr, syscall.ENOSPC) {
			cause = ErrCauseDiskFull
			retryable = true
		}
		return &DocStoreError{Message: writeErr.Error(), Retryable: retryable, Cause: cause}
	}
	if err := s.file.Sync(); err != nil {
		return &DocStoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
	}

	return nil
}

func (s *JSONLStore) GetByID(id DocId) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id == 0 || int(id) >= len(s.records) {
		return Record{}, false
	}
	rec := s.records[id]
	if rec.ID != id {
		return Record{}, false
	}
	return rec, true
}

func (s *JSONLStore) GetID(url string) (DocId, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUrl[url]
	return id, ok
}

// IterAll returns every record in ascending DocId order.
func (s *JSONLStore) IterAll() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.records))
	for i := 1; i < len(s.records); i++ {
		if s.records[i].ID == DocId(i) {
			out = append(out, s.records[i])
		}
	}
	return out
}

func (s *JSONLStore) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
