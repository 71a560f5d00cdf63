package invindex_test

import (
	"testing"

	"github.com/rohmanhakim/docs-crawler/internal/docstore"
	"github.com/rohmanhakim/docs-crawler/internal/invindex"
	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/internal/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, corpusSize func() int) *invindex.InvertedIndex {
	t.Helper()
	dir := t.TempDir()
	idx, err := invindex.NewInvertedIndex(dir, corpusSize, &metadata.NoopSink{})
	require.Nil(t, err)
	return idx
}

func TestAddDocument_RecordsPositionsInGivenOrder(t *testing.T) {
	idx := newTestIndex(t, func() int { return 1 })
	n := normalize.NewDefaultNormalizer()
	tokens := n.Normalize("onion market onion forum")

	err := idx.AddDocument(docstore.DocId(1), tokens)
	require.Nil(t, err)

	posting := idx.Posting("onion")
	require.Contains(t, posting, docstore.DocId(1))
	assert.Equal(t, []int{0, 2}, posting[docstore.DocId(1)])
}

func TestAddDocument_RejectsReinsertionOfSameDocId(t *testing.T) {
	idx := newTestIndex(t, func() int { return 1 })
	n := normalize.NewDefaultNormalizer()
	tokens := n.Normalize("market")

	require.Nil(t, idx.AddDocument(docstore.DocId(1), tokens))
	err := idx.AddDocument(docstore.DocId(1), tokens)
	require.NotNil(t, err)

	assert.Equal(t, 1, idx.DocFrequency("market"))
}

func TestDocFrequency_CountsDistinctDocuments(t *testing.T) {
	idx := newTestIndex(t, func() int { return 2 })
	n := normalize.NewDefaultNormalizer()

	require.Nil(t, idx.AddDocument(docstore.DocId(1), n.Normalize("market forum")))
	require.Nil(t, idx.AddDocument(docstore.DocId(2), n.Normalize("market")))

	assert.Equal(t, 2, idx.DocFrequency("market"))
	assert.Equal(t, 1, idx.DocFrequency("forum"))
	assert.Equal(t, 0, idx.DocFrequency("absent"))
}

func TestCorpusSize_DelegatesToInjectedFunc(t *testing.T) {
	idx := newTestIndex(t, func() int { return 42 })
	assert.Equal(t, 42, idx.CorpusSize())
}
