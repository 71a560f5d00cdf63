package frontier

/*
Frontier Responsibilities
- Hold an ordered queue Q of (Url, depth) pairs awaiting crawl
- Deduplicate by Url: a Url already enqueued or crawled never re-enters Q
- Enforce url_predicate admission and the depth cap
- Repopulate itself from DocStore once Q runs dry, giving the crawl
  re-visit semantics instead of terminating

It knows nothing about fetching, extraction, or storage beyond reading
DocStore.IterAll() on a restart cycle. It is a data structure + policy
module, not a pipeline executor.
*/

import (
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/rohmanhakim/docs-crawler/internal/docstore"
	"github.com/rohmanhakim/docs-crawler/pkg/urlutil"
)

type Frontier struct {
	mu sync.Mutex
	q  FIFOQueue[CrawlToken]

	// seen holds every canonicalized Url currently enqueued or already
	// crawled this cycle; it is cleared on RestartCycle.
	seen Set[string]
	// failed holds canonicalized Urls a caller has marked via MarkFailed.
	// RestartCycle excludes them from repopulation — failed is sticky.
	failed Set[string]

	predicate urlutil.Predicate
	depthMax  int
	docs      docstore.Store

	mirror Mirror
}

// SetMirror attaches a write-through Mirror. Mirror failures are
// swallowed: losing external visibility into the queue must never stop
// a crawl. Pass nil to detach.
func (f *Frontier) SetMirror(m Mirror) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mirror = m
}

func NewFrontier(predicate urlutil.Predicate, depthMax int, docs docstore.Store) *Frontier {
	if predicate == nil {
		predicate = urlutil.IsOnion
	}
	return &Frontier{
		q:         *NewFIFOQueue[CrawlToken](),
		seen:      NewSet[string](),
		failed:    NewSet[string](),
		predicate: predicate,
		depthMax:  depthMax,
		docs:      docs,
	}
}

func seenKey(u url.URL) string {
	return urlutil.Canonicalize(u).String()
}

// Seed enqueues every url at depth 0, ignoring urls already seen.
func (f *Frontier) Seed(urls []url.URL) {
	for _, u := range urls {
		f.Push(u, 0)
	}
}

// Push admits u at depth if it passes the url_predicate, is within
// depthMax, and has not already been seen or marked failed. It reports
// whether the url was enqueued.
func (f *Frontier) Push(u url.URL, depth int) bool {
	if !f.predicate(u) || depth > f.depthMax {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := seenKey(u)
	if f.seen.Contains(key) || f.failed.Contains(key) {
		return false
	}

	f.seen.Add(key)
	f.q.Enqueue(NewCrawlToken(u, depth))
	if f.mirror != nil {
		_ = f.mirror.Push(key)
	}
	return true
}

// PredicateAllows reports whether u passes the configured url_predicate,
// without consulting or mutating Seen/failed state.
func (f *Frontier) PredicateAllows(u url.URL) bool {
	return f.predicate(u)
}

// MarkFailed excludes u from future RestartCycle repopulation. The
// crawler calls this once a Url's retry budget is exhausted.
func (f *Frontier) MarkFailed(u url.URL) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := seenKey(u)
	f.failed.Add(key)
	if f.mirror != nil {
		_ = f.mirror.MarkFailed(key)
	}
}

// PopBatch shuffles the current queue contents with a per-call,
// wall-clock-seeded Fisher-Yates shuffle and pops up to n tokens.
func (f *Frontier) PopBatch(n int) []CrawlToken {
	if n <= 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	size := f.q.Size()
	if size == 0 {
		return nil
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	remaining := make([]CrawlToken, 0, size)
	for {
		tok, ok := f.q.Dequeue()
		if !ok {
			break
		}
		remaining = append(remaining, tok)
	}
	rng.Shuffle(len(remaining), func(i, j int) {
		remaining[i], remaining[j] = remaining[j], remaining[i]
	})

	if n > len(remaining) {
		n = len(remaining)
	}
	batch := remaining[:n]
	for _, tok := range remaining[n:] {
		f.q.Enqueue(tok)
	}
	return batch
}

// Size reports the number of tokens currently queued.
func (f *Frontier) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.q.Size()
}

// RestartCycle repopulates Q from every Url DocStore knows about, at
// depth 0, once Q has run dry. Urls marked failed are excluded; every
// other Url — including ones already crawled — becomes eligible again,
// giving the system re-visit semantics rather than a terminal state.
func (f *Frontier) RestartCycle() {
	f.mu.Lock()
	if f.q.Size() > 0 {
		f.mu.Unlock()
		return
	}
	f.seen = NewSet[string]()
	f.mu.Unlock()

	if f.docs == nil {
		return
	}
	for _, rec := range f.docs.IterAll() {
		parsed, err := url.Parse(rec.Url)
		if err != nil {
			continue
		}
		f.Push(*parsed, 0)
	}
}
