package politeness

import (
	"fmt"

	"github.com/fetchward/crawlkit/internal/metadata"
	"github.com/fetchward/crawlkit/pkg/failure"
)

type PolitenessErrorCause string

const (
	ErrCauseAcquireCancelled PolitenessErrorCause = "acquire cancelled"
)

type PolitenessError struct {
	Message   string
	Retryable bool
	Cause     PolitenessErrorCause
}

func (e *PolitenessError) Error() string {
	return fmt.Sprintf("politeness error: %s: %s", e.Cause, e.Message)
}

func (e *PolitenessError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *PolitenessError) IsRetryable() bool {
	return e.Retryable
}

func mapPolitenessErrorToMetadataCause(err *PolitenessError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseAcquireCancelled:
		return metadata.CauseUnknown
	default:
		return metadata.CauseUnknown
	}
}
