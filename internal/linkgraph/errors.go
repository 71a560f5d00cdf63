package linkgraph

import (
	"fmt"

	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/pkg/failure"
)

type GraphErrorCause string

const (
	ErrCauseWriteFailure    GraphErrorCause = "snapshot write failure"
	ErrCauseCorruptSnapshot GraphErrorCause = "corrupt snapshot"
)

type GraphError struct {
	Message   string
	Retryable bool
	Cause     GraphErrorCause
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("linkgraph error: %s", e.Cause)
}

func (e *GraphError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func mapGraphErrorToMetadataCause(err *GraphError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseWriteFailure:
		return metadata.CauseStorageFailure
	case ErrCauseCorruptSnapshot:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
