// Package metrics exposes the crawl/index/rank pipeline as Prometheus
// gauges and counters. It is additive observability: nothing here
// influences retry, continuation, or abort decisions, mirroring the
// observational-only discipline metadata.Recorder already follows.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rohmanhakim/docs-crawler/internal/metadata"
)

var (
	fetchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "darksearch_fetches_total",
		Help: "Total pages fetched, successful or not.",
	})
	errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "darksearch_errors_total",
		Help: "Total classified errors recorded, by cause.",
	}, []string{"cause"})
	artifactsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "darksearch_artifacts_total",
		Help: "Total durable snapshot artifacts written (docstore, index, graph, crawl log, ranker).",
	})
	frontierDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "darksearch_frontier_depth",
		Help: "Number of CrawlTokens currently queued in the Frontier.",
	})
	corpusSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "darksearch_corpus_size",
		Help: "Number of documents currently in the DocStore.",
	})
	pagerankIterations = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "darksearch_pagerank_iterations",
		Help: "Power-iteration steps the most recent PageRank pass ran before stopping.",
	})
)

func init() {
	prometheus.MustRegister(fetchesTotal, errorsTotal, artifactsTotal, frontierDepth, corpusSize, pagerankIterations)
}

// Sink wraps an inner metadata.MetadataSink, recording
// every event as a Prometheus metric before delegating. inner may be
// nil, in which case only the metrics are recorded.
type Sink struct {
	inner metadata.MetadataSink
}

var _ metadata.MetadataSink = (*Sink)(nil)

func NewSink(inner metadata.MetadataSink) *Sink {
	return &Sink{inner: inner}
}

func (s *Sink) RecordFetch(url string, status int, duration time.Duration, contentType string, retryCount, depth int) {
	fetchesTotal.Inc()
	if s.inner != nil {
		s.inner.RecordFetch(url, status, duration, contentType, retryCount, depth)
	}
}

func (s *Sink) RecordError(at time.Time, packageName, action string, cause metadata.ErrorCause, message string, attrs []metadata.Attribute) {
	errorsTotal.WithLabelValues(cause.String()).Inc()
	if s.inner != nil {
		s.inner.RecordError(at, packageName, action, cause, message, attrs)
	}
}

func (s *Sink) RecordArtifact(kind metadata.ArtifactKind, path string, attrs []metadata.Attribute) {
	artifactsTotal.Inc()
	if s.inner != nil {
		s.inner.RecordArtifact(kind, path, attrs)
	}
}

// SetFrontierDepth, SetCorpusSize and SetPagerankIterations update the
// sampled gauges. The Scheduler calls these from its own 5-second
// sampling ticker rather than on every mutation, to keep the hot crawl
// path free of Prometheus calls.
func SetFrontierDepth(n int)      { frontierDepth.Set(float64(n)) }
func SetCorpusSize(n int)         { corpusSize.Set(float64(n)) }
func SetPagerankIterations(n int) { pagerankIterations.Set(float64(n)) }

// Serve starts an HTTP server exposing /metrics on addr and blocks
// until it fails or the caller's process exits. Callers that want a
// metrics endpoint run this in its own goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}
	return server.ListenAndServe()
}
