package query

import "github.com/rohmanhakim/docs-crawler/internal/docstore"

// Result is one ranked hit returned by the QueryEngine: the document's
// identity plus the combined score (cosine similarity against the query
// vector, scaled by the document's PageRank) it was ranked by.
type Result struct {
	DocId     docstore.DocId
	Url       string
	Title     string
	Score     float64
	TermFreqs map[string]int
}
