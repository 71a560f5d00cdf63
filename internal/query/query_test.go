package query_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/docs-crawler/internal/docstore"
	"github.com/rohmanhakim/docs-crawler/internal/invindex"
	"github.com/rohmanhakim/docs-crawler/internal/linkgraph"
	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/internal/normalize"
	"github.com/rohmanhakim/docs-crawler/internal/query"
	"github.com/rohmanhakim/docs-crawler/internal/ranker"
)

func buildEngine(t *testing.T, docs []struct{ url, content string }) (*query.Engine, []docstore.DocId) {
	t.Helper()
	sink := &metadata.NoopSink{}

	store, err := docstore.NewJSONLStore(t.TempDir(), sink)
	require.Nil(t, err)
	t.Cleanup(func() { _ = store.Close() })

	idx, err := invindex.NewInvertedIndex("", func() int { return len(store.IterAll()) }, sink)
	require.Nil(t, err)

	graph, err := linkgraph.NewLinkGraph("", store, sink)
	require.Nil(t, err)

	norm := normalize.NewDefaultNormalizer()

	ids := make([]docstore.DocId, 0, len(docs))
	for _, d := range docs {
		did, insertErr := store.Insert(d.url, d.content, "", time.Now(), nil)
		require.Nil(t, insertErr)
		tokens := norm.Normalize(d.content)
		require.Nil(t, idx.AddDocument(did, tokens))
		ids = append(ids, did)
	}

	svc := ranker.NewService(store, idx, graph, 0.85, 100, sink)
	svc.Refresh()

	return query.NewEngine(store, idx, norm, svc), ids
}

func TestQuery_RanksMatchingDocumentsOverNonMatching(t *testing.T) {
	engine, ids := buildEngine(t, []struct{ url, content string }{
		{"http://a.onion/", "apple banana apple orange apple"},
		{"http://b.onion/", "submarine rocket telescope"},
		{"http://c.onion/", "violin piano drum"},
	})

	results := engine.Query("apple", 10)
	require.NotEmpty(t, results)
	assert.Equal(t, ids[0], results[0].DocId)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestQuery_UnionIncludesDocsMatchingOnlySomeTerms(t *testing.T) {
	engine, ids := buildEngine(t, []struct{ url, content string }{
		{"http://a.onion/", "apple banana"},
		{"http://b.onion/", "banana cherry"},
	})

	results := engine.Query("apple cherry", 10)

	found := make(map[docstore.DocId]bool)
	for _, r := range results {
		found[r.DocId] = true
	}
	assert.True(t, found[ids[0]])
	assert.True(t, found[ids[1]])
}

func TestQuery_IntersectionModeExcludesPartialMatches(t *testing.T) {
	engine, ids := buildEngine(t, []struct{ url, content string }{
		{"http://a.onion/", "apple banana"},
		{"http://b.onion/", "banana cherry"},
	})
	engine.IntersectionMode = true

	results := engine.Query("apple cherry", 10)
	for _, r := range results {
		assert.NotEqual(t, ids[0], r.DocId)
		assert.NotEqual(t, ids[1], r.DocId)
	}
}

func TestQuery_TopKTruncates(t *testing.T) {
	engine, _ := buildEngine(t, []struct{ url, content string }{
		{"http://a.onion/", "apple one"},
		{"http://b.onion/", "apple two"},
		{"http://c.onion/", "apple three"},
	})

	results := engine.Query("apple", 2)
	assert.Len(t, results, 2)
}

func TestQuery_EmptyQueryYieldsEmptyResult(t *testing.T) {
	engine, _ := buildEngine(t, []struct{ url, content string }{
		{"http://a.onion/", "apple banana"},
	})

	results := engine.Query("the a an", 10)
	assert.Empty(t, results)
}

func TestQuery_TermFreqsCountsOccurrences(t *testing.T) {
	engine, ids := buildEngine(t, []struct{ url, content string }{
		{"http://a.onion/", "apple apple apple banana"},
	})

	results := engine.Query("apple", 10)
	require.Len(t, results, 1)
	assert.Equal(t, ids[0], results[0].DocId)
	assert.Equal(t, 3, results[0].TermFreqs["apple"])
}
