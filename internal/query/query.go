package query

import (
	"sort"

	"github.com/rohmanhakim/docs-crawler/internal/docstore"
	"github.com/rohmanhakim/docs-crawler/internal/invindex"
	"github.com/rohmanhakim/docs-crawler/internal/normalize"
	"github.com/rohmanhakim/docs-crawler/internal/ranker"
)

/*
Responsibilities
- Tokenize a raw query string the same way every indexed document was
  tokenized
- Build the query's own TF-IDF pseudo-document vector
- Gather candidate DocIds as the union of every query term's posting
  list (ranked retrieval, not intersection — a query term absent from a
  candidate's vector simply contributes 0 to the dot product)
- Score, sort, and truncate to the top K

Engine is read-only: it never mutates DocStore, InvertedIndex, or
LinkGraph, and holds no lock of its own beyond what those stores already
serialize internally.
*/

// Engine answers ranked queries against a live corpus. It is safe for
// concurrent use: every method reads through to the underlying stores
// and the Ranker's atomically-swapped Snapshot.
type Engine struct {
	docs       docstore.Store
	index      *invindex.InvertedIndex
	normalizer normalize.Normalizer
	rankerSvc  *ranker.Service

	// IntersectionMode restricts candidates to documents containing every
	// query term rather than the default union. Off by default; the CLI
	// never sets it.
	IntersectionMode bool
}

func NewEngine(docs docstore.Store, index *invindex.InvertedIndex, normalizer normalize.Normalizer, rankerSvc *ranker.Service) *Engine {
	return &Engine{
		docs:       docs,
		index:      index,
		normalizer: normalizer,
		rankerSvc:  rankerSvc,
	}
}

// Query tokenizes text, scores every candidate document against it, and
// returns the top k results sorted by descending score with ascending
// DocId as the tiebreak. An empty token stream or a corpus with no
// ranking snapshot yet both yield an empty, non-nil result slice.
func (e *Engine) Query(text string, k int) []Result {
	tokens := e.normalizer.Normalize(text)
	if len(tokens) == 0 {
		return []Result{}
	}

	snap := e.rankerSvc.Snapshot()
	if snap == nil {
		return []Result{}
	}

	termCounts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		termCounts[tok.Term]++
	}

	postings := make(map[string]map[docstore.DocId][]int, len(termCounts))
	for term := range termCounts {
		postings[term] = e.index.Posting(term)
	}

	var candidates map[docstore.DocId]struct{}
	if e.IntersectionMode {
		candidates = e.intersectCandidates(postings)
	} else {
		candidates = make(map[docstore.DocId]struct{})
		for _, posting := range postings {
			e.mergeCandidates(candidates, posting)
		}
	}

	queryVec := make(ranker.Vector, len(termCounts))
	total := float64(len(tokens))
	for term, count := range termCounts {
		df := e.index.DocFrequency(term)
		idf := ranker.ComputeIDF(df, snap.CorpusSize)
		queryVec[term] = (float64(count) / total) * idf
	}

	results := make([]Result, 0, len(candidates))
	for docId := range candidates {
		score := snap.Score(queryVec, docId)
		rec, ok := e.docs.GetByID(docId)
		if !ok {
			continue
		}
		results = append(results, Result{
			DocId:     docId,
			Url:       rec.Url,
			Title:     rec.Title,
			Score:     score,
			TermFreqs: termFreqsFor(docId, postings),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocId < results[j].DocId
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}

func (e *Engine) mergeCandidates(into map[docstore.DocId]struct{}, posting map[docstore.DocId][]int) {
	for docId := range posting {
		into[docId] = struct{}{}
	}
}

// intersectCandidates rebuilds the candidate set from scratch as the
// intersection of every query term's posting list.
func (e *Engine) intersectCandidates(postings map[string]map[docstore.DocId][]int) map[docstore.DocId]struct{} {
	var result map[docstore.DocId]struct{}
	for _, posting := range postings {
		if posting == nil {
			return map[docstore.DocId]struct{}{}
		}
		if result == nil {
			result = make(map[docstore.DocId]struct{}, len(posting))
			for docId := range posting {
				result[docId] = struct{}{}
			}
			continue
		}
		for docId := range result {
			if _, ok := posting[docId]; !ok {
				delete(result, docId)
			}
		}
	}
	if result == nil {
		return map[docstore.DocId]struct{}{}
	}
	return result
}

// termFreqsFor reports, for each query term, how many times docId's
// posting list records it occurring -- the same positions InvertedIndex
// built at index time, so this never drifts from how the document was
// actually tokenized. This is the `per_term_freq` field the CLI's
// extended query output prints alongside Url/Score/Title.
func termFreqsFor(docId docstore.DocId, postings map[string]map[docstore.DocId][]int) map[string]int {
	out := make(map[string]int, len(postings))
	for term, posting := range postings {
		if positions, ok := posting[docId]; ok {
			out[term] = len(positions)
		}
	}
	return out
}
