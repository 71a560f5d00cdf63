package invindex

import "github.com/rohmanhakim/docs-crawler/internal/docstore"

// Posting is one term's per-document hit list: DocId -> ordered token
// positions, in the Normalizer's monotonic order.
type Posting map[docstore.DocId][]int

const shardCount = 16

// shard holds the postings for every term whose hash lands in this
// bucket, each guarded independently so that writes to unrelated terms
// never contend.
type shard struct {
	postings map[string]Posting
}

// line is the on-disk shape of one term's snapshot entry in inverted.jsonl.
type line struct {
	Term     string             `json:"term"`
	Postings map[string][]int   `json:"postings"` // DocId (as string) -> positions
}
