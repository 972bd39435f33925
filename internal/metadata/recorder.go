package metadata

import (
	"sync"
	"time"
)

/*
Metadata Collected
- Fetch timestamps
- HTTP status codes
- Content hashes
- Crawl depth

Logging Goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- URLs (as values, not objects with behavior)
- Hashes
- Status codes
- Durations
- Identifiers (page ID, crawl ID)
*/

// Recorder is the production MetadataSink: an in-process, mutex-guarded
// event history plus the terminal crawlStats summary, queryable by the
// checkpoint controller and the CLI's final summary print. It holds no
// file descriptors and does no I/O of its own.
type Recorder struct {
	mu              sync.Mutex
	fetchEvents     []FetchEvent
	errorRecords    []ErrorRecord
	artifactRecords []ArtifactRecord
	stats           crawlStats
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) RecordFetch(fetchUrl string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fetchEvents = append(r.fetchEvents, FetchEvent{
		fetchUrl:    fetchUrl,
		httpStatus:  httpStatus,
		duration:    duration,
		contentType: contentType,
		retryCount:  retryCount,
		crawlDepth:  crawlDepth,
	})
}

func (r *Recorder) RecordAssetFetch(fetchUrl string, httpStatus int, duration time.Duration, retryCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fetchEvents = append(r.fetchEvents, FetchEvent{
		fetchUrl:   fetchUrl,
		httpStatus: httpStatus,
		duration:   duration,
		retryCount: retryCount,
	})
}

func (r *Recorder) RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, details string, attrs []Attribute) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errorRecords = append(r.errorRecords, ErrorRecord{
		packageName: packageName,
		action:      action,
		cause:       cause,
		errorString: details,
		observedAt:  observedAt,
		attrs:       attrs,
	})
	r.stats.totalErrors++
}

func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.artifactRecords = append(r.artifactRecords, ArtifactRecord{kind: kind, paths: path})
	if kind == ArtifactAsset {
		r.stats.totalAssets++
	}
}

// RecordFinalCrawlStats sets the terminal summary. Per crawlStats's own
// contract this is computed by the scheduler after termination and
// recorded exactly once; callers that call it more than once simply
// overwrite the previous summary.
func (r *Recorder) RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats = crawlStats{
		totalPages:  totalPages,
		totalErrors: totalErrors,
		totalAssets: totalAssets,
		durationMs:  duration.Milliseconds(),
	}
}

// FetchEvents returns a snapshot of every recorded fetch/asset-fetch
// event, in recording order.
func (r *Recorder) FetchEvents() []FetchEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]FetchEvent, len(r.fetchEvents))
	copy(out, r.fetchEvents)
	return out
}

// ErrorRecords returns a snapshot of every recorded error, in recording
// order.
func (r *Recorder) ErrorRecords() []ErrorRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ErrorRecord, len(r.errorRecords))
	copy(out, r.errorRecords)
	return out
}

// ArtifactRecords returns a snapshot of every recorded artifact.
func (r *Recorder) ArtifactRecords() []ArtifactRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ArtifactRecord, len(r.artifactRecords))
	copy(out, r.artifactRecords)
	return out
}

// Stats returns the most recently recorded final crawl summary.
func (r *Recorder) Stats() crawlStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.stats
}

var _ MetadataSink = (*Recorder)(nil)
var _ MetadataSink = (*NoopSink)(nil)
