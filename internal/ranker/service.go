package ranker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rohmanhakim/docs-crawler/internal/docstore"
	"github.com/rohmanhakim/docs-crawler/internal/invindex"
	"github.com/rohmanhakim/docs-crawler/internal/linkgraph"
	"github.com/rohmanhakim/docs-crawler/internal/metadata"
)

// Service owns the periodic refresh task that recomputes TF-IDF vectors
// and PageRank over the live stores and swaps the result in atomically,
// mirroring linksrus's pagerank.Config.UpdateInterval worker shape.
type Service struct {
	docs  docstore.Store
	index *invindex.InvertedIndex
	graph *linkgraph.LinkGraph

	damping float64
	iters   int

	metadataSink   metadata.MetadataSink
	snapshot       atomic.Pointer[Snapshot]
	lastIterations atomic.Int64
}

func NewService(
	docs docstore.Store,
	index *invindex.InvertedIndex,
	graph *linkgraph.LinkGraph,
	damping float64,
	iters int,
	metadataSink metadata.MetadataSink,
) *Service {
	return &Service{
		docs:         docs,
		index:        index,
		graph:        graph,
		damping:      damping,
		iters:        iters,
		metadataSink: metadataSink,
	}
}

// Snapshot returns the most recently computed ranking snapshot, or nil
// before the first Refresh has run.
func (s *Service) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// Refresh recomputes every document's TF-IDF vector and a fresh PageRank
// pass over the current LinkGraph snapshot, then swaps the result in
// atomically so concurrent QueryEngine reads never observe a partially
// built snapshot.
func (s *Service) Refresh() {
	records := s.docs.IterAll()
	corpusSize := len(records)

	ids := make([]docstore.DocId, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}

	idfCache := make(map[string]float64)
	termCounts := make(map[docstore.DocId]map[string]int, len(records))
	docLength := make(map[docstore.DocId]int, len(records))

	for term, posting := range s.index.AllPostings() {
		idfCache[term] = idf(len(posting), corpusSize)
		for id, positions := range posting {
			n := len(positions)
			counts := termCounts[id]
			if counts == nil {
				counts = make(map[string]int)
				termCounts[id] = counts
			}
			counts[term] = n
			docLength[id] += n
		}
	}

	vectors := make(map[docstore.DocId]Vector, len(records))
	for _, id := range ids {
		vectors[id] = buildDocVector(termCounts[id], docLength[id], idfCache)
	}

	graphSnap := s.graph.Snapshot()
	pr, ran := PageRank(ids, graphSnap, s.damping, s.iters)
	s.lastIterations.Store(int64(ran))

	snap := &Snapshot{
		GraphSnapshotID: graphSnap.ID,
		CorpusSize:      corpusSize,
		Vectors:         vectors,
		PageRank:        pr,
		idf:             idfCache,
	}
	s.snapshot.Store(snap)

	if s.metadataSink != nil {
		s.metadataSink.RecordArtifact(metadata.ArtifactRankerSnapshot, graphSnap.ID, nil)
	}
}

// Run performs an initial Refresh, then repeats it every interval until
// ctx is cancelled.
func (s *Service) Run(ctx context.Context, every time.Duration) {
	s.Refresh()

	if every <= 0 {
		every = 30 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh()
		}
	}
}

// buildDocVector turns one document's term counts, as recorded in the
// InvertedIndex's postings, into a sparse TF-IDF vector. Term data is
// read from the index rather than re-tokenizing DocStore content
// because a document first reached as an outlink is inserted with
// empty content, and the later crawl's Insert call discards the real
// content once the URL already has a DocId. The index postings stay
// authoritative even when DocStore content is just a placeholder.
func buildDocVector(counts map[string]int, total int, idfCache map[string]float64) Vector {
	if total == 0 {
		return Vector{}
	}

	vec := make(Vector, len(counts))
	for term, c := range counts {
		tfNorm := float64(c) / float64(total)
		vec[term] = tfNorm * idfCache[term]
	}
	return vec
}

// LastIterations returns how many PageRank power-iteration steps the
// most recent Refresh actually ran before hitting the cap or
// converging. Zero before the first Refresh.
func (s *Service) LastIterations() int {
	return int(s.lastIterations.Load())
}

// ComputeIDF exposes idf(t) = log(N / (1+df(t))) for callers (the
// QueryEngine) that need a term's idf against a fixed corpus size and
// document frequency, independent of whether that term was ever cached
// in a Snapshot built from a live InvertedIndex.
func ComputeIDF(df, corpusSize int) float64 {
	return idf(df, corpusSize)
}
