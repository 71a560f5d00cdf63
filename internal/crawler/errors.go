package crawler

import (
	"fmt"

	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/pkg/failure"
)

type CrawlErrorCause string

const (
	ErrCauseFetchFailed    CrawlErrorCause = "fetch failed"
	ErrCauseContentInvalid CrawlErrorCause = "content invalid"
	ErrCauseStoreFailure   CrawlErrorCause = "store failure"
)

type CrawlError struct {
	Message   string
	Retryable bool
	Cause     CrawlErrorCause
}

func (e *CrawlError) Error() string {
	return fmt.Sprintf("crawler error: %s", e.Cause)
}

func (e *CrawlError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func mapCrawlErrorToMetadataCause(err *CrawlError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseFetchFailed:
		return metadata.CauseRetryFailure
	case ErrCauseContentInvalid:
		return metadata.CauseContentInvalid
	case ErrCauseStoreFailure:
		return metadata.CauseStorageFailure
	default:
		return metadata.CauseUnknown
	}
}
