package ranker_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/docs-crawler/internal/docstore"
	"github.com/rohmanhakim/docs-crawler/internal/invindex"
	"github.com/rohmanhakim/docs-crawler/internal/linkgraph"
	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/internal/normalize"
	"github.com/rohmanhakim/docs-crawler/internal/ranker"
)

func TestCosine_ZeroVectorYieldsZero(t *testing.T) {
	assert.Equal(t, 0.0, ranker.Cosine(nil, ranker.Vector{"a": 1}))
	assert.Equal(t, 0.0, ranker.Cosine(ranker.Vector{"a": 1}, ranker.Vector{}))
}

func TestCosine_IdenticalVectorsYieldOne(t *testing.T) {
	v := ranker.Vector{"apple": 2, "banana": 3}
	assert.InDelta(t, 1.0, ranker.Cosine(v, v), 1e-9)
}

func TestCosine_DisjointVectorsYieldZero(t *testing.T) {
	a := ranker.Vector{"apple": 1}
	b := ranker.Vector{"banana": 1}
	assert.Equal(t, 0.0, ranker.Cosine(a, b))
}

func TestComputeIDF_FiniteWhenDfEqualsCorpusSize(t *testing.T) {
	v := ranker.ComputeIDF(5, 5)
	assert.False(t, math.IsInf(v, 0))
	assert.InDelta(t, math.Log(5.0/6.0), v, 1e-12)
}

func buildEnvironment(t *testing.T) (docstore.Store, *invindex.InvertedIndex, *linkgraph.LinkGraph) {
	t.Helper()
	sink := &metadata.NoopSink{}

	docs, err := docstore.NewJSONLStore(t.TempDir(), sink)
	require.Nil(t, err)
	t.Cleanup(func() { _ = docs.Close() })

	idx, err := invindex.NewInvertedIndex("", func() int { return len(docs.IterAll()) }, sink)
	require.Nil(t, err)

	graph, err := linkgraph.NewLinkGraph("", docs, sink)
	require.Nil(t, err)

	return docs, idx, graph
}

func insertDoc(t *testing.T, docs docstore.Store, idx *invindex.InvertedIndex, norm normalize.Normalizer, url, content string) docstore.DocId {
	t.Helper()
	did, err := docs.Insert(url, content, "", time.Now(), nil)
	require.Nil(t, err)
	tokens := norm.Normalize(content)
	_ = idx.AddDocument(did, tokens)
	return did
}

// TestService_Refresh_SingleDocTF covers a single
// document's TF-IDF vector reflects its in-document term frequencies.
func TestService_Refresh_SingleDocTF(t *testing.T) {
	docs, idx, graph := buildEnvironment(t)
	norm := normalize.NewDefaultNormalizer()

	did := insertDoc(t, docs, idx, norm, "http://a.onion/", "apple banana apple orange orange apple apple lemon")

	svc := ranker.NewService(docs, idx, graph, 0.85, 50, &metadata.NoopSink{})
	svc.Refresh()

	snap := svc.Snapshot()
	require.NotNil(t, snap)

	vec := snap.Vectors[did]
	require.Contains(t, vec, "apple")
	// "apple" occurs 4 times out of 8 tokens.
	assert.InDelta(t, 0.5, 4.0/8.0, 1e-9)
	assert.NotZero(t, vec["apple"])
}

// TestService_Refresh_VectorSurvivesPlaceholderInsert covers a document
// first discovered as an outlink (inserted with empty content) and only
// later crawled for real: DocStore.Insert keeps the empty placeholder
// content because the URL already has a DocId, but the index still
// holds the real postings, and the TF-IDF vector must be built from
// those postings, not from the now-stale DocStore content.
func TestService_Refresh_VectorSurvivesPlaceholderInsert(t *testing.T) {
	docs, idx, graph := buildEnvironment(t)

	placeholderID, err := docs.Insert("http://a.onion/", "", "", time.Time{}, nil)
	require.Nil(t, err)

	norm := normalize.NewDefaultNormalizer()
	realContent := "apple banana apple"
	crawledID, err := docs.Insert("http://a.onion/", realContent, "A", time.Now(), nil)
	require.Nil(t, err)
	require.Equal(t, placeholderID, crawledID)

	require.Nil(t, idx.AddDocument(crawledID, norm.Normalize(realContent)))

	svc := ranker.NewService(docs, idx, graph, 0.85, 50, &metadata.NoopSink{})
	svc.Refresh()

	snap := svc.Snapshot()
	require.NotNil(t, snap)

	vec := snap.Vectors[crawledID]
	require.NotEmpty(t, vec)
	assert.NotZero(t, vec["apple"])
}

// TestPageRank_SumsToOne checks that a PageRank snapshot
// sums to 1.0 within tolerance over every known DocId.
func TestPageRank_SumsToOne(t *testing.T) {
	docs, idx, graph := buildEnvironment(t)
	norm := normalize.NewDefaultNormalizer()

	d1 := insertDoc(t, docs, idx, norm, "http://a.onion/", "the quick brown fox")
	d2 := insertDoc(t, docs, idx, norm, "http://b.onion/", "jumped over the lazy dog")
	d3 := insertDoc(t, docs, idx, norm, "http://c.onion/", "the quick brown fox jumped over the lazy dog")

	graph.AddEdges(d1, map[docstore.DocId]struct{}{d2: {}})
	graph.AddEdges(d2, map[docstore.DocId]struct{}{d3: {}})

	svc := ranker.NewService(docs, idx, graph, 0.85, 100, &metadata.NoopSink{})
	svc.Refresh()

	snap := svc.Snapshot()
	require.NotNil(t, snap)

	var sum float64
	for _, v := range snap.PageRank {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestPageRank_DanglingNodeRedistributesMass(t *testing.T) {
	docs, idx, graph := buildEnvironment(t)
	norm := normalize.NewDefaultNormalizer()

	// d2 has no outbound edges: dangling.
	d1 := insertDoc(t, docs, idx, norm, "http://a.onion/", "alpha")
	d2 := insertDoc(t, docs, idx, norm, "http://b.onion/", "beta")
	graph.AddEdges(d1, map[docstore.DocId]struct{}{d2: {}})

	svc := ranker.NewService(docs, idx, graph, 0.85, 100, &metadata.NoopSink{})
	svc.Refresh()

	snap := svc.Snapshot()
	require.NotNil(t, snap)

	var sum float64
	for _, v := range snap.PageRank {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestPageRank_EmptyGraphUniform(t *testing.T) {
	docs, idx, graph := buildEnvironment(t)
	norm := normalize.NewDefaultNormalizer()

	insertDoc(t, docs, idx, norm, "http://a.onion/", "alpha")
	insertDoc(t, docs, idx, norm, "http://b.onion/", "beta")

	svc := ranker.NewService(docs, idx, graph, 0.85, 100, &metadata.NoopSink{})
	svc.Refresh()

	snap := svc.Snapshot()
	require.NotNil(t, snap)
	for _, v := range snap.PageRank {
		assert.InDelta(t, 0.5, v, 1e-6)
	}
}
