package docstore

import (
	"fmt"

	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/pkg/failure"
)

type DocStoreErrorCause string

const (
	ErrCauseWriteFailure         DocStoreErrorCause = "write failure"
	ErrCauseDiskFull             DocStoreErrorCause = "disk full"
	ErrCauseHashComputationFailed DocStoreErrorCause = "hash computation failed"
	ErrCauseCorruptLog           DocStoreErrorCause = "corrupt log"
)

type DocStoreError struct {
	Message   string
	Retryable bool
	Cause     DocStoreErrorCause
	Path      string
}

func (e *DocStoreError) Error() string {
	return fmt.Sprintf("docstore error: %s", e.Cause)
}

func (e *DocStoreError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// mapDocStoreErrorToMetadataCause maps docstore-local error semantics to
// the canonical metadata.ErrorCause table. Observational only.
func mapDocStoreErrorToMetadataCause(err *DocStoreError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseDiskFull, ErrCauseWriteFailure:
		return metadata.CauseStorageFailure
	case ErrCauseCorruptLog:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
