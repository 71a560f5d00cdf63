package linkgraph

import "github.com/rohmanhakim/docs-crawler/internal/docstore"

// GraphSnapshot is an immutable, copy-on-read view of the graph handed to
// the Ranker. ID is a fresh uuid per Snapshot() call so a ranker refresh
// cycle can log which snapshot its PageRank scores were computed against.
type GraphSnapshot struct {
	ID       string
	Outbound map[docstore.DocId]map[docstore.DocId]struct{}
	Inbound  map[docstore.DocId]map[docstore.DocId]struct{}
}

// line is the on-disk shape of one source URL's outbound edges in
// graph.jsonl. Edges are recorded by URL rather than DocId so the file
// survives a DocId renumbering across runs.
type line struct {
	SourceUrl string   `json:"source_url"`
	TargetUrls []string `json:"target_urls"`
}
