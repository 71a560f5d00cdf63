package metadata

/*
Metadata Collected
- Fetch timestamps
- HTTP status codes
- Crawl depth
- Error causes
- Crawl-cycle aggregate stats

Logging Goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- URLs (as values, not objects with behavior)
- Status codes
- Durations
- Identifiers (DocId, term, crawl ID)

Metadata recording is observational only. It must never be consulted to
decide retry, continuation, or abort — those decisions belong to the
Scheduler/Crawler alone.
*/

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// MetadataSink is the narrow write surface every pipeline stage is handed.
// Implementations must be safe for concurrent use by the worker pool.
type MetadataSink interface {
	RecordFetch(url string, status int, duration time.Duration, contentType string, retryCount int, depth int)
	RecordError(at time.Time, packageName, action string, cause ErrorCause, message string, attrs []Attribute)
	RecordArtifact(kind ArtifactKind, path string, attrs []Attribute)
}

// CrawlFinalizer records the terminal summary of a completed crawl cycle,
// exactly once per cycle, after the cycle has already ended.
type CrawlFinalizer interface {
	RecordFinalCrawlStats(totalPages, totalErrors, totalIndexed int, duration time.Duration)
}

// Recorder is the default MetadataSink/CrawlFinalizer: a structured logrus
// sink plus a small set of atomic counters an operator can read without
// grepping logs.
type Recorder struct {
	logger *logrus.Entry

	fetches      int64
	errors       int64
	artifacts    int64
	lastCycle    atomic.Value // crawlStats
}

func NewRecorder(component string) Recorder {
	base := logrus.New()
	return Recorder{
		logger: base.WithField("component", component),
	}
}

func (r *Recorder) RecordFetch(url string, status int, duration time.Duration, contentType string, retryCount int, depth int) {
	atomic.AddInt64(&r.fetches, 1)
	r.logger.WithFields(logrus.Fields{
		"url":          url,
		"status":       status,
		"duration_ms":  duration.Milliseconds(),
		"content_type": contentType,
		"retry_count":  retryCount,
		"depth":        depth,
	}).Info("fetch")
}

func (r *Recorder) RecordError(at time.Time, packageName, action string, cause ErrorCause, message string, attrs []Attribute) {
	atomic.AddInt64(&r.errors, 1)
	fields := logrus.Fields{
		"package": packageName,
		"action":  action,
		"cause":   cause.String(),
		"at":      at.Format(time.RFC3339),
	}
	for _, a := range attrs {
		fields[string(a.Key)] = a.Value
	}
	r.logger.WithFields(fields).Error(message)
}

func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	atomic.AddInt64(&r.artifacts, 1)
	fields := logrus.Fields{
		"kind": string(kind),
		"path": path,
	}
	for _, a := range attrs {
		fields[string(a.Key)] = a.Value
	}
	r.logger.WithFields(fields).Info("artifact")
}

func (r *Recorder) RecordFinalCrawlStats(totalPages, totalErrors, totalIndexed int, duration time.Duration) {
	stats := crawlStats{
		totalPages:   totalPages,
		totalErrors:  totalErrors,
		totalIndexed: totalIndexed,
		durationMs:   duration.Milliseconds(),
	}
	r.lastCycle.Store(stats)
	r.logger.WithFields(logrus.Fields{
		"total_pages":   totalPages,
		"total_errors":  totalErrors,
		"total_indexed": totalIndexed,
		"duration_ms":   stats.durationMs,
	}).Info("crawl cycle complete")
}

// FetchCount, ErrorCount and ArtifactCount expose the running totals for
// tests. The /metrics endpoint keeps its own counters in internal/metrics
// and does not read these.
func (r *Recorder) FetchCount() int64    { return atomic.LoadInt64(&r.fetches) }
func (r *Recorder) ErrorCount() int64    { return atomic.LoadInt64(&r.errors) }
func (r *Recorder) ArtifactCount() int64 { return atomic.LoadInt64(&r.artifacts) }

// NoopSink discards every event. Test packages across the module embed it
// to satisfy MetadataSink/CrawlFinalizer without asserting on log output.
type NoopSink struct{}

func (NoopSink) RecordFetch(string, int, time.Duration, string, int, int)                {}
func (NoopSink) RecordError(time.Time, string, string, ErrorCause, string, []Attribute)  {}
func (NoopSink) RecordArtifact(ArtifactKind, string, []Attribute)                        {}
func (NoopSink) RecordFinalCrawlStats(int, int, int, time.Duration)                      {}
