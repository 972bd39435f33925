package queue

import (
	"fmt"

	"github.com/fetchward/crawlkit/internal/metadata"
	"github.com/fetchward/crawlkit/pkg/failure"
)

type QueueErrorCause string

const (
	ErrCauseDBOpenFailed QueueErrorCause = "database open failed"
	ErrCauseSchemaFailed QueueErrorCause = "schema migration failed"
	ErrCauseQueryFailed  QueueErrorCause = "query failed"
	ErrCauseScanFailed   QueueErrorCause = "row scan failed"
	ErrCauseUnknownURL   QueueErrorCause = "unknown url"

	// Retained for the bloom-filter dedup snapshot (dedup.go), which is
	// still a flat file independent of the queue's SQL backing store.
	ErrCauseSnapshotWriteFailed QueueErrorCause = "snapshot write failed"
	ErrCauseSnapshotReadFailed  QueueErrorCause = "snapshot read failed"
	ErrCauseSnapshotCorrupt     QueueErrorCause = "snapshot corrupt"
)

type QueueError struct {
	Message   string
	Retryable bool
	Cause     QueueErrorCause
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("queue error: %s: %s", e.Cause, e.Message)
}

func (e *QueueError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *QueueError) IsRetryable() bool {
	return e.Retryable
}

// mapQueueErrorToMetadataCause maps queue-local error semantics to the
// canonical metadata.ErrorCause table. Observational only; must never
// drive control flow.
func mapQueueErrorToMetadataCause(err *QueueError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseDBOpenFailed, ErrCauseSchemaFailed, ErrCauseQueryFailed, ErrCauseScanFailed:
		return metadata.CauseStorageFailure
	case ErrCauseSnapshotWriteFailed, ErrCauseSnapshotReadFailed, ErrCauseSnapshotCorrupt:
		return metadata.CauseStorageFailure
	case ErrCauseUnknownURL:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
