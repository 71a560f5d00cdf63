package invindex

import (
	"fmt"

	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/pkg/failure"
)

type IndexErrorCause string

const (
	ErrCauseAlreadyIndexed IndexErrorCause = "doc already indexed"
	ErrCauseWriteFailure   IndexErrorCause = "snapshot write failure"
	ErrCauseCorruptSnapshot IndexErrorCause = "corrupt snapshot"
)

type IndexError struct {
	Message   string
	Retryable bool
	Cause     IndexErrorCause
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("invindex error: %s", e.Cause)
}

func (e *IndexError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func mapIndexErrorToMetadataCause(err *IndexError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseAlreadyIndexed:
		return metadata.CauseInvariantViolation
	case ErrCauseWriteFailure:
		return metadata.CauseStorageFailure
	case ErrCauseCorruptSnapshot:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
