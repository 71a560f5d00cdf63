package htmlanalyzer

import (
	"fmt"

	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/pkg/failure"
)

type AnalysisErrorCause string

const (
	ErrCauseNotHTML   AnalysisErrorCause = "not html"
	ErrCauseNoContent AnalysisErrorCause = "no meaningful content"
)

type AnalysisError struct {
	Message   string
	Retryable bool
	Cause     AnalysisErrorCause
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("htmlanalyzer error: %s", e.Cause)
}

func (e *AnalysisError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// mapAnalysisErrorToMetadataCause maps analyzer-local error semantics to the
// canonical metadata.ErrorCause table. Observational only.
func mapAnalysisErrorToMetadataCause(err *AnalysisError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseNotHTML, ErrCauseNoContent:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
