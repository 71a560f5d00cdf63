package crawler

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rohmanhakim/docs-crawler/internal/docstore"
	"github.com/rohmanhakim/docs-crawler/internal/fetcher"
	"github.com/rohmanhakim/docs-crawler/internal/frontier"
	"github.com/rohmanhakim/docs-crawler/internal/htmlanalyzer"
	"github.com/rohmanhakim/docs-crawler/internal/invindex"
	"github.com/rohmanhakim/docs-crawler/internal/linkgraph"
	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/internal/normalize"
	"github.com/rohmanhakim/docs-crawler/pkg/limiter"
	"github.com/rohmanhakim/docs-crawler/pkg/retry"
)

/*
Crawler Responsibilities

Drive one crawl attempt per Url to completion or failure, pipeline:
Fetch -> HtmlAnalyzer.Extract -> Normalize -> DocStore.Insert ->
InvertedIndex.AddDocument -> LinkGraph.AddEdges -> Frontier.Push.

A bounded pool of Workers pops one CrawlToken at a time from the
Frontier; when the Frontier runs dry a worker triggers RestartCycle and
every worker sleeps a short jitter before trying again.
*/

type Crawler struct {
	fetcher      fetcher.Fetcher
	htmlAnalyzer htmlanalyzer.HtmlAnalyzer
	normalizer   normalize.Normalizer

	docs     docstore.Store
	index    *invindex.InvertedIndex
	graph    *linkgraph.LinkGraph
	frontier *frontier.Frontier
	crawlLog *CrawlLog
	limiter  limiter.RateLimiter

	metadataSink metadata.MetadataSink

	workers        int
	requestTimeout time.Duration
	userAgent      string
	retryParam     retry.RetryParam

	storeFailures   int64
	storeFailuresMu sync.Mutex
	onStoreFailure  func(count int64)
}

func NewCrawler(
	f fetcher.Fetcher,
	analyzer htmlanalyzer.HtmlAnalyzer,
	normalizer normalize.Normalizer,
	docs docstore.Store,
	index *invindex.InvertedIndex,
	graph *linkgraph.LinkGraph,
	fr *frontier.Frontier,
	crawlLog *CrawlLog,
	rateLimiter limiter.RateLimiter,
	metadataSink metadata.MetadataSink,
	workers int,
	requestTimeout time.Duration,
	userAgent string,
	retryParam retry.RetryParam,
) *Crawler {
	if workers <= 0 {
		workers = 10
	}
	return &Crawler{
		fetcher:        f,
		htmlAnalyzer:   analyzer,
		normalizer:     normalizer,
		docs:           docs,
		index:          index,
		graph:          graph,
		frontier:       fr,
		crawlLog:       crawlLog,
		limiter:        rateLimiter,
		metadataSink:   metadataSink,
		workers:        workers,
		requestTimeout: requestTimeout,
		userAgent:      userAgent,
		retryParam:     retryParam,
	}
}

// OnStoreFailure registers a callback invoked with the cumulative store
// failure count every time a durable write fails. The Scheduler uses
// this to abort once the count crosses its own threshold.
func (c *Crawler) OnStoreFailure(fn func(count int64)) {
	c.onStoreFailure = fn
}

// Run spawns the worker pool and blocks until ctx is cancelled and every
// worker has drained its current token.
func (c *Crawler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.workerLoop(ctx)
		}()
	}
	wg.Wait()
}

func (c *Crawler) workerLoop(ctx context.Context) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		batch := c.frontier.PopBatch(1)
		if len(batch) == 0 {
			c.frontier.RestartCycle()
			c.crawlLog.ResetCrawledToPending()
			sleepCtx(ctx, time.Duration(50+rng.Intn(150))*time.Millisecond)
			continue
		}

		c.processOne(ctx, batch[0])
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// processOne drives the fetch-analyze-store pipeline for a single CrawlToken.
func (c *Crawler) processOne(ctx context.Context, tok frontier.CrawlToken) {
	target := tok.URL()
	key := target.String()
	depth := tok.Depth()

	if rec, ok := c.crawlLog.Get(key); ok && rec.Status == StatusCrawled {
		return
	}
	c.crawlLog.Set(key, CrawlRecord{LastChecked: time.Now(), Status: StatusInFlight})

	host := target.Hostname()
	if c.limiter != nil {
		sleepCtx(ctx, c.limiter.ResolveDelay(host))
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	start := time.Now()
	result, ferr := c.fetcher.Fetch(fetchCtx, depth, fetcher.NewFetchParam(target, c.userAgent), c.retryParam)
	elapsed := time.Since(start)

	if c.limiter != nil {
		c.limiter.MarkLastFetchAsNow(host)
	}

	if ferr != nil {
		if c.limiter != nil {
			c.limiter.Backoff(host)
		}
		c.crawlLog.Set(key, CrawlRecord{
			LastChecked:  time.Now(),
			ResponseTime: elapsed,
			Outcome:      ferr.Error(),
			Status:       StatusFailed,
		})
		c.frontier.MarkFailed(target)
		return
	}
	if c.limiter != nil {
		c.limiter.ResetBackoff(host)
	}

	analysis, aerr := c.htmlAnalyzer.Extract(target, result.Body())
	if aerr != nil {
		if _, serr := c.docs.Insert(key, "", "", time.Time{}, nil); serr != nil {
			c.recordStoreFailure(serr)
		}
		c.crawlLog.Set(key, CrawlRecord{
			LastChecked:  time.Now(),
			ResponseTime: elapsed,
			Outcome:      aerr.Error(),
			Status:       StatusFailed,
		})
		c.frontier.MarkFailed(target)
		return
	}

	tokens := c.normalizer.Normalize(analysis.Text)

	did, serr := c.docs.Insert(key, analysis.Text, analysis.Title, time.Now(), analysis.Meta)
	if serr != nil {
		c.recordStoreFailure(serr)
		c.crawlLog.Set(key, CrawlRecord{
			LastChecked:  time.Now(),
			ResponseTime: elapsed,
			Outcome:      serr.Error(),
			Status:       StatusFailed,
		})
		c.frontier.MarkFailed(target)
		return
	}

	if ierr := c.index.AddDocument(did, tokens); ierr != nil && !isAlreadyIndexed(ierr) {
		// A genuine write failure (not a benign re-visit) still leaves the
		// crawl marked crawled: the posting list is best-effort.
		c.recordStoreFailure(ierr)
	}

	dsts := make(map[docstore.DocId]struct{}, len(analysis.Outlinks))
	for _, outlink := range analysis.Outlinks {
		if !c.frontier.PredicateAllows(outlink) {
			continue
		}
		vid, verr := c.docs.Insert(outlink.String(), "", "", time.Time{}, nil)
		if verr != nil {
			c.recordStoreFailure(verr)
			continue
		}
		dsts[vid] = struct{}{}
		c.frontier.Push(outlink, depth+1)
	}
	if len(dsts) > 0 {
		c.graph.AddEdges(did, dsts)
	}

	c.crawlLog.Set(key, CrawlRecord{
		LastChecked:  time.Now(),
		ResponseTime: elapsed,
		Outcome:      "ok",
		Status:       StatusCrawled,
	})
}

// isAlreadyIndexed reports whether err is invindex's already-indexed
// sentinel; a re-visit of a DocId already carrying postings is
// expected on RestartCycle, never a fault.
func isAlreadyIndexed(err error) bool {
	var target *invindex.IndexError
	return errors.As(err, &target) && target.Cause == invindex.ErrCauseAlreadyIndexed
}

func (c *Crawler) recordStoreFailure(err error) {
	c.storeFailuresMu.Lock()
	c.storeFailures++
	count := c.storeFailures
	c.storeFailuresMu.Unlock()

	c.metadataSink.RecordError(
		time.Now(),
		"crawler",
		"Crawler.processOne",
		metadata.CauseStorageFailure,
		err.Error(),
		nil,
	)

	if c.onStoreFailure != nil {
		c.onStoreFailure(count)
	}
}
