package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rohmanhakim/docs-crawler/internal/config"
	"github.com/rohmanhakim/docs-crawler/internal/crawler"
	"github.com/rohmanhakim/docs-crawler/internal/docstore"
	"github.com/rohmanhakim/docs-crawler/internal/fetcher"
	"github.com/rohmanhakim/docs-crawler/internal/frontier"
	"github.com/rohmanhakim/docs-crawler/internal/htmlanalyzer"
	"github.com/rohmanhakim/docs-crawler/internal/invindex"
	"github.com/rohmanhakim/docs-crawler/internal/linkgraph"
	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/internal/metrics"
	"github.com/rohmanhakim/docs-crawler/internal/normalize"
	"github.com/rohmanhakim/docs-crawler/internal/query"
	"github.com/rohmanhakim/docs-crawler/internal/ranker"
	"github.com/rohmanhakim/docs-crawler/pkg/limiter"
	"github.com/rohmanhakim/docs-crawler/pkg/retry"
	"github.com/rohmanhakim/docs-crawler/pkg/timeutil"
)

// ErrStoreFailureThreshold is returned by Run when repeated store
// failures cross the configured threshold before ctx is ever
// cancelled.
var ErrStoreFailureThreshold = errors.New("scheduler: store failure threshold exceeded")

// storeFailureThreshold caps how many durable-write failures the
// Scheduler tolerates across the whole crawl before aborting. The
// Crawler itself keeps running individual URLs past any single
// failure; this is the outer circuit breaker.
const storeFailureThreshold = 50

// Scheduler is the control plane: it builds every stage from a Config,
// seeds the Frontier, runs the Crawler's worker pool and the Ranker's
// periodic refresh concurrently, and tears everything down on
// cancellation or on crossing the store-failure threshold.
type Scheduler struct {
	docs      docstore.Store
	index     *invindex.InvertedIndex
	graph     *linkgraph.LinkGraph
	frontier  *frontier.Frontier
	crawlLog  *crawler.CrawlLog
	crawler   *crawler.Crawler
	rankerSvc *ranker.Service

	metadataSink metadata.MetadataSink
	cfg          config.Config

	abortOnce sync.Once
	abortCh   chan struct{}
}

// New wires up every SPEC_FULL component from cfg: stores rooted at
// cfg.OutputDir(), a SocksFetcher dialing cfg.SocksEndpoint(), the
// bounded Crawler worker pool, and the Ranker refresh service. No
// crawling happens until Run is called.
func New(cfg config.Config, metadataSink metadata.MetadataSink) (*Scheduler, error) {
	if metadataSink == nil {
		rec := metadata.NewRecorder("scheduler")
		metadataSink = &rec
	}
	metadataSink = metrics.NewSink(metadataSink)

	docs, derr := docstore.NewJSONLStore(cfg.OutputDir(), metadataSink)
	if derr != nil {
		return nil, fmt.Errorf("open docstore: %w", derr)
	}

	index, ierr := invindex.NewInvertedIndex(cfg.OutputDir(), func() int { return len(docs.IterAll()) }, metadataSink)
	if ierr != nil {
		return nil, fmt.Errorf("open inverted index: %w", ierr)
	}

	graph, gerr := linkgraph.NewLinkGraph(cfg.OutputDir(), docs, metadataSink)
	if gerr != nil {
		return nil, fmt.Errorf("open link graph: %w", gerr)
	}

	crawlLog, lerr := crawler.NewCrawlLog(cfg.OutputDir(), metadataSink)
	if lerr != nil {
		return nil, fmt.Errorf("open crawl log: %w", lerr)
	}

	fr := frontier.NewFrontier(cfg.URLPredicate(), cfg.DepthMax(), docs)
	if os.Getenv("FRONTIER_BACKEND") == "redis" {
		addr := os.Getenv("FRONTIER_REDIS_ADDR")
		if addr == "" {
			addr = "127.0.0.1:6379"
		}
		fr.SetMirror(frontier.NewRedisMirror(addr, ""))
	}
	fr.Seed(cfg.SeedURLs())

	sf, ferr := fetcher.NewSocksFetcher(metadataSink, cfg.SocksEndpoint(), cfg.ControlEndpoint(), cfg.ControlPassword())
	if ferr != nil {
		return nil, fmt.Errorf("build fetcher: %w", ferr)
	}

	analyzer := htmlanalyzer.NewDomAnalyzer(
		metadataSink,
		htmlanalyzer.NewExtractParam(cfg.LinkDensityThreshold(), cfg.BodySpecificityBias()),
	)

	normalizer := normalize.NewDefaultNormalizer()

	rateLimiter := limiter.NewConcurrentRateLimiter()
	rateLimiter.SetBaseDelay(cfg.BaseDelay())
	rateLimiter.SetJitter(cfg.Jitter())
	rateLimiter.SetRandomSeed(cfg.RandomSeed())

	retryParam := RetryParam(cfg)

	c := crawler.NewCrawler(
		&sf,
		&analyzer,
		normalizer,
		docs,
		index,
		graph,
		fr,
		crawlLog,
		rateLimiter,
		metadataSink,
		cfg.Workers(),
		cfg.RequestTimeout(),
		cfg.UserAgent(),
		retryParam,
	)

	rankerSvc := ranker.NewService(docs, index, graph, cfg.Damping(), cfg.PagerankIters(), metadataSink)

	s := &Scheduler{
		docs:         docs,
		index:        index,
		graph:        graph,
		frontier:     fr,
		crawlLog:     crawlLog,
		crawler:      c,
		rankerSvc:    rankerSvc,
		metadataSink: metadataSink,
		cfg:          cfg,
		abortCh:      make(chan struct{}),
	}

	c.OnStoreFailure(func(count int64) {
		if count >= storeFailureThreshold {
			s.abortOnce.Do(func() { close(s.abortCh) })
		}
	})

	return s, nil
}

// newFromParts builds a Scheduler from already-constructed components,
// bypassing cfg-driven construction of the fetcher/stores. Tests use
// this to wire in fakes without a real SOCKS endpoint.
func newFromParts(
	docs docstore.Store,
	index *invindex.InvertedIndex,
	graph *linkgraph.LinkGraph,
	fr *frontier.Frontier,
	crawlLog *crawler.CrawlLog,
	c *crawler.Crawler,
	rankerSvc *ranker.Service,
	metadataSink metadata.MetadataSink,
	cfg config.Config,
) *Scheduler {
	s := &Scheduler{
		docs:         docs,
		index:        index,
		graph:        graph,
		frontier:     fr,
		crawlLog:     crawlLog,
		crawler:      c,
		rankerSvc:    rankerSvc,
		metadataSink: metadataSink,
		cfg:          cfg,
		abortCh:      make(chan struct{}),
	}
	c.OnStoreFailure(func(count int64) {
		if count >= storeFailureThreshold {
			s.abortOnce.Do(func() { close(s.abortCh) })
		}
	})
	return s
}

// RetryParam translates the Config's retry and backoff knobs into the
// shape the Fetcher expects, mirroring the teacher's own per-cfg
// retry.RetryParam assembly.
func RetryParam(cfg config.Config) retry.RetryParam {
	return retry.NewRetryParam(
		cfg.BaseDelay(),
		cfg.Jitter(),
		cfg.RandomSeed(),
		cfg.RetryMax(),
		timeutil.NewBackoffParam(cfg.BackoffInitialDuration(), cfg.BackoffMultiplier(), cfg.BackoffMaxDuration()),
	)
}

// OpenQueryEngine opens the DocStore, InvertedIndex and LinkGraph
// rooted at cfg.OutputDir() without constructing a Fetcher, Frontier or
// Crawler, runs one Ranker refresh over whatever a prior crawl left
// behind, and returns a ready-to-query Engine. Callers that only want
// to search an existing corpus use this instead of New.
func OpenQueryEngine(cfg config.Config, metadataSink metadata.MetadataSink) (*query.Engine, error) {
	if metadataSink == nil {
		rec := metadata.NewRecorder("query")
		metadataSink = &rec
	}

	docs, derr := docstore.NewJSONLStore(cfg.OutputDir(), metadataSink)
	if derr != nil {
		return nil, fmt.Errorf("open docstore: %w", derr)
	}
	index, ierr := invindex.NewInvertedIndex(cfg.OutputDir(), func() int { return len(docs.IterAll()) }, metadataSink)
	if ierr != nil {
		return nil, fmt.Errorf("open inverted index: %w", ierr)
	}
	graph, gerr := linkgraph.NewLinkGraph(cfg.OutputDir(), docs, metadataSink)
	if gerr != nil {
		return nil, fmt.Errorf("open link graph: %w", gerr)
	}

	rankerSvc := ranker.NewService(docs, index, graph, cfg.Damping(), cfg.PagerankIters(), metadataSink)
	rankerSvc.Refresh()

	return query.NewEngine(docs, index, normalize.NewDefaultNormalizer(), rankerSvc), nil
}

// QueryEngine builds a read-only QueryEngine over the Scheduler's live
// stores, for callers (the CLI's query/repl commands) that want to
// search without running a crawl.
func (s *Scheduler) QueryEngine() *query.Engine {
	return query.NewEngine(s.docs, s.index, normalize.NewDefaultNormalizer(), s.rankerSvc)
}

// Run starts the Crawler's worker pool and the Ranker's periodic
// refresh, and blocks until ctx is cancelled or the store-failure
// threshold is crossed. On either exit path every store is left in a
// durable, flushed state — each store already persists synchronously
// on every write, so there is no buffered data to flush on the way
// out.
func (s *Scheduler) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		go func() {
			if err := metrics.Serve(addr); err != nil && s.metadataSink != nil {
				s.metadataSink.RecordError(time.Now(), "scheduler", "Run", metadata.CauseUnknown, err.Error(), nil)
			}
		}()
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.crawler.Run(runCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.rankerSvc.Run(runCtx, s.cfg.RankRefreshInterval())
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.sampleGauges(runCtx)
	}()

	var aborted bool
	select {
	case <-ctx.Done():
	case <-s.abortCh:
		aborted = true
	}

	cancel()
	wg.Wait()

	s.rankerSvc.Refresh()

	if aborted {
		return ErrStoreFailureThreshold
	}
	return nil
}

// sampleGauges periodically pushes Frontier depth, corpus size and the
// most recent PageRank iteration count into the metrics gauges, until
// ctx is cancelled. Sampling on a ticker keeps the hot crawl path free
// of Prometheus calls.
func (s *Scheduler) sampleGauges(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	sample := func() {
		metrics.SetFrontierDepth(s.frontier.Size())
		metrics.SetCorpusSize(len(s.docs.IterAll()))
		metrics.SetPagerankIterations(s.rankerSvc.LastIterations())
	}

	sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample()
		}
	}
}
