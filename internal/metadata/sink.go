package metadata

import "time"

/*
MetadataSink is the narrow recording surface every pipeline component
depends on. It is the crawler's only "logging" contract: structured
event recording, not a logging framework. Implementations may fan
events out to counters, an in-memory history, or (downstream, outside
this module) a real structured-log backend -- components never know
which.
*/
type MetadataSink interface {
	RecordFetch(fetchUrl string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int)
	RecordAssetFetch(fetchUrl string, httpStatus int, duration time.Duration, retryCount int)
	RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, details string, attrs []Attribute)
	RecordArtifact(kind ArtifactKind, path string, attrs []Attribute)
	RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration)
}

// CrawlFinalizer is the narrow surface the Checkpoint/Shutdown
// Controller and CLI summary use to record the terminal crawl summary,
// without needing the full MetadataSink surface.
type CrawlFinalizer interface {
	RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration)
}

// NoopSink discards every event. Used by tests and callers that have no
// interest in observability, and as a safe zero-value default.
type NoopSink struct{}

func (NoopSink) RecordFetch(string, int, time.Duration, string, int, int)     {}
func (NoopSink) RecordAssetFetch(string, int, time.Duration, int)             {}
func (NoopSink) RecordError(time.Time, string, string, ErrorCause, string, []Attribute) {}
func (NoopSink) RecordArtifact(ArtifactKind, string, []Attribute)             {}
func (NoopSink) RecordFinalCrawlStats(int, int, int, time.Duration)           {}
