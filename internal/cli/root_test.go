package cmd

import (
	"bytes"
	"net/url"
	"strings"
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

func resetFlags() {
	cfgFile = ""
	seedURLs = []string{}
	maxDepth = 0
	workers = 0
	outputDir = "output"
	dryRun = false
	maxPages = 0
	userAgent = ""
	timeout = 0
	baseDelay = 0
	jitter = 0
	randomSeed = 0
	allowedHosts = []string{}
	allowedPathPrefix = []string{}
	retryMax = 0
	socksEndpoint = ""
	controlEndpoint = ""
	controlPassword = ""
	rankRefresh = 0
	pagerankIters = 0
	damping = 0
	topK = 0
}

func TestParseSeedURLs_EmptyErrors(t *testing.T) {
	_, err := parseSeedURLs(nil)
	require.Error(t, err)
}

func TestParseSeedURLs_Valid(t *testing.T) {
	urls, err := parseSeedURLs([]string{"http://example.onion/"})
	require.NoError(t, err)
	require.Len(t, urls, 1)
	assert.Equal(t, "example.onion", urls[0].Host)
}

func TestInitConfigWithError_MissingSeedsErrors(t *testing.T) {
	t.Cleanup(resetFlags)
	_, err := InitConfigWithError(nil)
	require.Error(t, err)
}

func TestInitConfigWithError_FlagsOverrideDefaults(t *testing.T) {
	t.Cleanup(resetFlags)
	resetFlags()
	workers = 7
	maxDepth = 2
	outputDir = t.TempDir()
	topK = 3

	cfg, err := InitConfigWithError([]url.URL{{Scheme: "http", Host: "a.onion"}})
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Workers())
	assert.Equal(t, 2, cfg.DepthMax())
	assert.Equal(t, 3, cfg.TopK())
}

func buildTestEngine(t *testing.T) *query.Engine {
	t.Helper()
	sink := &metadata.NoopSink{}

	store, err := docstore.NewJSONLStore(t.TempDir(), sink)
	require.NoError(t, err)

	idx, err := invindex.NewInvertedIndex("", func() int { return len(store.IterAll()) }, sink)
	require.NoError(t, err)

	graph, err := linkgraph.NewLinkGraph("", store, sink)
	require.NoError(t, err)

	norm := normalize.NewDefaultNormalizer()
	did, ierr := store.Insert("http://a.onion/", "apple banana apple", "A", time.Now(), nil)
	require.Nil(t, ierr)
	require.NoError(t, idx.AddDocument(did, norm.Normalize("apple banana apple")))

	svc := ranker.NewService(store, idx, graph, 0.85, 20, sink)
	svc.Refresh()

	return query.NewEngine(store, idx, norm, svc)
}

func TestRunRepl_QueryThenExit(t *testing.T) {
	engine := buildTestEngine(t)

	in := strings.NewReader("query apple\nexit\n")
	var out bytes.Buffer

	runRepl(engine, 10, in, &out)

	assert.Contains(t, out.String(), "a.onion")
}

func TestRunRepl_EmptyInputReturns(t *testing.T) {
	engine := buildTestEngine(t)

	in := strings.NewReader("")
	var out bytes.Buffer

	runRepl(engine, 10, in, &out)
	assert.Contains(t, out.String(), ">")
}

func TestPrintResults_EmptyPrintsNoResults(t *testing.T) {
	var out bytes.Buffer
	printResults(&out, nil)
	assert.Equal(t, "No results\n", out.String())
}
