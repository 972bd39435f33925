package sanitizer

import (
	"fmt"

	"github.com/fetchward/crawlkit/internal"
	"github.com/fetchward/crawlkit/internal/metadata"
)

type SanitizationErrorCause string

const (
	ErrCauseBrokenDOM           = "broken dom"
	ErrCauseUnparseableHTML     = "unparseable html"
	ErrCauseCompetingRoots      = "competing document roots"
	ErrCauseNoStructuralAnchor  = "no structural anchor"
	ErrCauseMultipleH1NoRoot    = "multiple h1 without primary root"
	ErrCauseImpliedMultipleDocs = "implied multiple documents"
	ErrCauseAmbiguousDOM        = "structurally ambiguous dom"
)

type SanitizationError struct {
	Message   string
	Retryable bool
	Cause     SanitizationErrorCause
}

func (e *SanitizationError) Error() string {
	return fmt.Sprintf("sanitization error: %s", e.Cause)
}

func (e *SanitizationError) Severity() internal.Severity {
	if e.Retryable {
		return internal.SeverityRecoverable
	}
	return internal.SeverityFatal
}

// mapSanitizationErrorToMetadataCause maps sanitizer-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapSanitizationErrorToMetadataCause(err SanitizationError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseBrokenDOM:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
