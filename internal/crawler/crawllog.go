package crawler

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/pkg/failure"
	"github.com/rohmanhakim/docs-crawler/pkg/fileutil"
)

// CrawlLog tracks each Url's crawl status, persisted to crawl_log.jsonl
// and rewritten wholesale every compactionGap updates — the same
// rewrite-and-rename discipline invindex and linkgraph use for their
// own periodic snapshots.
type CrawlLog struct {
	mu      sync.RWMutex
	records map[string]CrawlRecord

	metadataSink  metadata.MetadataSink
	outputDir     string
	compactionMu  sync.Mutex
	updatesSince  int
	compactionGap int
}

func NewCrawlLog(outputDir string, metadataSink metadata.MetadataSink) (*CrawlLog, failure.ClassifiedError) {
	l := &CrawlLog{
		records:       make(map[string]CrawlRecord),
		metadataSink:  metadataSink,
		outputDir:     outputDir,
		compactionGap: 20,
	}
	if err := l.loadExisting(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *CrawlLog) Get(url string) (CrawlRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[url]
	return rec, ok
}

func (l *CrawlLog) Set(url string, rec CrawlRecord) {
	l.mu.Lock()
	l.records[url] = rec
	l.mu.Unlock()
	l.maybeCompact()
}

// ResetCrawledToPending implements the transition a RestartCycle
// triggers: every crawled Url becomes pending again; failed stays failed.
func (l *CrawlLog) ResetCrawledToPending() {
	l.mu.Lock()
	for url, rec := range l.records {
		if rec.Status == StatusCrawled {
			rec.Status = StatusPending
			l.records[url] = rec
		}
	}
	l.mu.Unlock()
	l.maybeCompact()
}

func (l *CrawlLog) maybeCompact() {
	l.compactionMu.Lock()
	l.updatesSince++
	due := l.updatesSince >= l.compactionGap
	if due {
		l.updatesSince = 0
	}
	l.compactionMu.Unlock()

	if due {
		l.compact()
	}
}

func (l *CrawlLog) compact() {
	if l.outputDir == "" {
		return
	}
	if err := fileutil.EnsureDir(l.outputDir); err != nil {
		return
	}

	path := filepath.Join(l.outputDir, "crawl_log.jsonl")
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		l.recordWriteFailure(err)
		return
	}

	writer := bufio.NewWriter(f)
	l.mu.RLock()
	for url, rec := range l.records {
		body, marshalErr := json.Marshal(line{
			Url:            url,
			LastChecked:    rec.LastChecked.Unix(),
			ResponseTimeMs: rec.ResponseTime.Milliseconds(),
			Outcome:        rec.Outcome,
			Status:         string(rec.Status),
		})
		if marshalErr != nil {
			continue
		}
		_, _ = writer.Write(body)
		_, _ = writer.WriteString("\n")
	}
	l.mu.RUnlock()

	if err := writer.Flush(); err != nil {
		_ = f.Close()
		l.recordWriteFailure(err)
		return
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		l.recordWriteFailure(err)
		return
	}
	_ = f.Close()
	_ = os.Rename(tmpPath, path)

	l.metadataSink.RecordArtifact(metadata.ArtifactCrawlLogSegment, path, nil)
}

func (l *CrawlLog) recordWriteFailure(err error) {
	l.metadataSink.RecordError(
		time.Now(),
		"crawler",
		"CrawlLog.compact",
		metadata.CauseStorageFailure,
		err.Error(),
		nil,
	)
}

func (l *CrawlLog) loadExisting() failure.ClassifiedError {
	if l.outputDir == "" {
		return nil
	}
	path := filepath.Join(l.outputDir, "crawl_log.jsonl")
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ln line
		if err := json.Unmarshal(raw, &ln); err != nil {
			l.recordCorruptLine(path)
			continue
		}
		l.records[ln.Url] = CrawlRecord{
			LastChecked:  time.Unix(ln.LastChecked, 0),
			ResponseTime: time.Duration(ln.ResponseTimeMs) * time.Millisecond,
			Outcome:      ln.Outcome,
			Status:       CrawlStatus(ln.Status),
		}
	}
	return nil
}

func (l *CrawlLog) recordCorruptLine(path string) {
	l.metadataSink.RecordError(
		time.Now(),
		"crawler",
		"CrawlLog.loadExisting",
		metadata.CauseInvariantViolation,
		"discarding corrupt crawl log line",
		[]metadata.Attribute{metadata.NewAttr(metadata.AttrPath, path)},
	)
}
