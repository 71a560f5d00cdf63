package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/docs-crawler/internal/config"
	"github.com/rohmanhakim/docs-crawler/internal/crawler"
	"github.com/rohmanhakim/docs-crawler/internal/docstore"
	"github.com/rohmanhakim/docs-crawler/internal/fetcher"
	"github.com/rohmanhakim/docs-crawler/internal/frontier"
	"github.com/rohmanhakim/docs-crawler/internal/htmlanalyzer"
	"github.com/rohmanhakim/docs-crawler/internal/invindex"
	"github.com/rohmanhakim/docs-crawler/internal/linkgraph"
	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/internal/normalize"
	"github.com/rohmanhakim/docs-crawler/internal/ranker"
	"github.com/rohmanhakim/docs-crawler/pkg/failure"
	"github.com/rohmanhakim/docs-crawler/pkg/retry"
	"github.com/rohmanhakim/docs-crawler/pkg/timeutil"
)

type fakeFetcher struct{}

func (fakeFetcher) Init(*http.Client) {}

func (fakeFetcher) Fetch(context.Context, int, fetcher.FetchParam, retry.RetryParam) (fetcher.FetchResult, failure.ClassifiedError) {
	return fetcher.FetchResult{}, nil
}

func (fakeFetcher) RotateIdentity(context.Context) error { return nil }

type fakeAnalyzer struct{}

func (fakeAnalyzer) Extract(u url.URL, _ []byte) (htmlanalyzer.AnalysisResult, failure.ClassifiedError) {
	return htmlanalyzer.NewAnalysisResultForTest("hello world", "title", nil, nil), nil
}

// alwaysFailStore satisfies docstore.Store but rejects every Insert, to
// exercise the Scheduler's store-failure-threshold abort without
// touching a real filesystem.
type alwaysFailStore struct{}

func (alwaysFailStore) Insert(string, string, string, time.Time, map[string]string) (docstore.DocId, failure.ClassifiedError) {
	return 0, &docstore.DocStoreError{Message: "forced failure", Retryable: false, Cause: docstore.ErrCauseWriteFailure}
}
func (alwaysFailStore) GetByID(docstore.DocId) (docstore.Record, bool) { return docstore.Record{}, false }
func (alwaysFailStore) GetID(string) (docstore.DocId, bool)            { return 0, false }
func (alwaysFailStore) IterAll() []docstore.Record                     { return nil }

func testConfig(t *testing.T, seeds int) config.Config {
	t.Helper()
	urls := make([]url.URL, seeds)
	for i := range urls {
		urls[i] = url.URL{Scheme: "http", Host: fmt.Sprintf("seed%d.onion", i)}
	}
	cfg, err := config.WithDefault(urls).
		WithConcurrency(4).
		WithMaxDepth(3).
		WithRankRefreshInterval(time.Hour).
		Build()
	require.Nil(t, err)
	return cfg
}

func TestRun_ReturnsNilOnContextCancel(t *testing.T) {
	cfg := testConfig(t, 1)
	sink := &metadata.NoopSink{}

	docs, derr := docstore.NewJSONLStore(t.TempDir(), sink)
	require.Nil(t, derr)
	index, ierr := invindex.NewInvertedIndex(t.TempDir(), func() int { return len(docs.IterAll()) }, sink)
	require.Nil(t, ierr)
	graph, gerr := linkgraph.NewLinkGraph(t.TempDir(), docs, sink)
	require.Nil(t, gerr)
	fr := frontier.NewFrontier(cfg.URLPredicate(), cfg.DepthMax(), docs)
	fr.Seed(cfg.SeedURLs())
	crawlLog, lerr := crawler.NewCrawlLog(t.TempDir(), sink)
	require.Nil(t, lerr)

	retryParam := retry.NewRetryParam(0, 0, 1, 1, timeutil.NewBackoffParam(time.Millisecond, 2.0, time.Millisecond))
	c := crawler.NewCrawler(fakeFetcher{}, fakeAnalyzer{}, normalize.NewDefaultNormalizer(), docs, index, graph, fr, crawlLog, nil, sink, cfg.Workers(), time.Second, "test-agent", retryParam)
	rankerSvc := ranker.NewService(docs, index, graph, cfg.Damping(), cfg.PagerankIters(), sink)

	s := newFromParts(docs, index, graph, fr, crawlLog, c, rankerSvc, sink, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	require.Nil(t, err)
}

func TestRun_AbortsOnStoreFailureThreshold(t *testing.T) {
	cfg := testConfig(t, storeFailureThreshold+5)
	sink := &metadata.NoopSink{}

	docs := alwaysFailStore{}
	index, ierr := invindex.NewInvertedIndex(t.TempDir(), func() int { return 0 }, sink)
	require.Nil(t, ierr)
	graph, gerr := linkgraph.NewLinkGraph(t.TempDir(), docs, sink)
	require.Nil(t, gerr)
	fr := frontier.NewFrontier(cfg.URLPredicate(), cfg.DepthMax(), docs)
	fr.Seed(cfg.SeedURLs())
	crawlLog, lerr := crawler.NewCrawlLog(t.TempDir(), sink)
	require.Nil(t, lerr)

	retryParam := retry.NewRetryParam(0, 0, 1, 1, timeutil.NewBackoffParam(time.Millisecond, 2.0, time.Millisecond))
	c := crawler.NewCrawler(fakeFetcher{}, fakeAnalyzer{}, normalize.NewDefaultNormalizer(), docs, index, graph, fr, crawlLog, nil, sink, cfg.Workers(), time.Second, "test-agent", retryParam)
	rankerSvc := ranker.NewService(docs, index, graph, cfg.Damping(), cfg.PagerankIters(), sink)

	s := newFromParts(docs, index, graph, fr, crawlLog, c, rankerSvc, sink, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.Run(ctx)
	require.ErrorIs(t, err, ErrStoreFailureThreshold)
}
