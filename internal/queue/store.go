package queue

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fetchward/crawlkit/pkg/failure"
	"github.com/fetchward/crawlkit/pkg/fileutil"
	"github.com/fetchward/crawlkit/pkg/urlutil"
)

// canonicalKeyFromRaw parses rawURL and returns its canonical dedup
// key. An unparseable URL falls back to the raw string itself so a
// malformed seed or discovered link still gets a stable (if
// non-canonicalized) key rather than being silently dropped.
func canonicalKeyFromRaw(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return urlutil.CanonicalKey(*parsed)
}

/*
Store is the scheduler-facing contract for the durable URL frontier: one
record per canonicalized URL, carrying the status/priority/timer state
that the worker pool claims work from and reports outcomes back into.

SQLStore is the sole production implementation. It keeps no resident
state of its own -- every call is a statement against a single SQLite
connection -- so a crash loses nothing beyond whatever the last
committed statement was, unlike a periodically-flushed in-memory
snapshot. The crawl_queue table and its readiness predicate mirror the
schema the original site-crawler's SQLite-backed ingestion pipeline
used.
*/

type Store interface {
	Upsert(rawURL string, attrs UpsertAttrs) (Record, failure.ClassifiedError)
	Get(rawURL string) (Record, bool)
	ClaimNext(workerID string, now time.Time) (Record, bool)
	CompleteSuccess(rawURL string, now time.Time, contentHash, etag, lastModified string, httpStatus int, nextCrawl time.Time, interval time.Duration) failure.ClassifiedError
	CompleteNotModified(rawURL string, now time.Time, nextCrawl time.Time, interval time.Duration) failure.ClassifiedError
	CompleteTransientFailure(rawURL string, now time.Time, reason string, retryAfter time.Time) failure.ClassifiedError
	CompletePermanentFailure(rawURL string, now time.Time, reason string, exclude bool) failure.ClassifiedError
	CompleteExcluded(rawURL string, reason string) failure.ClassifiedError
	ReclaimStale(staleThreshold time.Duration, now time.Time) int
	Stats() Stats
	Flush() failure.ClassifiedError
	Close() failure.ClassifiedError
}

// SQLStore is a SQLite-backed frontier. The pool is capped at a single
// open connection: ClaimNext's select-then-mark-in_flight is two
// statements that must behave as one atomic claim, and the easiest way
// to get that right over database/sql is to let the connection pool
// itself serialize every caller onto the one connection a transaction
// holds, rather than hand-rolling an additional mutex on top of SQL.
type SQLStore struct {
	db    *sql.DB
	path  string
	dedup *Dedup
}

// NewSQLStore constructs a store bound to dbPath but does not open the
// database; call Open before use.
func NewSQLStore(dbPath string) *SQLStore {
	return &SQLStore{path: dbPath}
}

// WithDedup attaches a bloom filter that Upsert adds every key to.
// Upsert still runs its SQL statement on every call; the filter does
// not skip any database work. Optional: an SQLStore with no Dedup
// attached behaves the same apart from the filter bookkeeping.
func (s *SQLStore) WithDedup(d *Dedup) *SQLStore {
	s.dedup = d
	return s
}

// Open creates the database file and its directory if they do not
// already exist, and ensures the crawl_queue schema is present. Safe to
// call against a database from a previous run: all work resumes from
// whatever state the table already holds.
func (s *SQLStore) Open() failure.ClassifiedError {
	if dir := filepath.Dir(s.path); dir != "." {
		if cErr := fileutil.EnsureDir(dir); cErr != nil {
			return cErr
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", s.path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return &QueueError{Message: err.Error(), Retryable: false, Cause: ErrCauseDBOpenFailed}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return &QueueError{Message: err.Error(), Retryable: false, Cause: ErrCauseDBOpenFailed}
	}

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return &QueueError{Message: err.Error(), Retryable: false, Cause: ErrCauseSchemaFailed}
	}

	s.db = db
	return nil
}

// Upsert admits rawURL into the frontier if unseen, or merges attrs
// into an existing record. Per the frontier's additive discipline:
// priority only ever increases, depth is only ever lowered, and a
// visited/excluded URL is never regressed back to pending. Both
// branches are expressed as a single upsert statement so a concurrent
// Upsert for the same key cannot race between an existence check and
// the write that follows it.
func (s *SQLStore) Upsert(rawURL string, attrs UpsertAttrs) (Record, failure.ClassifiedError) {
	key := canonicalKeyFromRaw(rawURL)

	if s.dedup != nil && !s.dedup.Seen(key) {
		s.dedup.Add(key)
	}

	now := time.Now()
	row := s.db.QueryRowContext(context.Background(), `
		INSERT INTO crawl_queue (key, url, host, status, priority, depth, first_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			priority = MAX(crawl_queue.priority, excluded.priority),
			depth    = MIN(crawl_queue.depth, excluded.depth)
		RETURNING `+recordColumns,
		key, rawURL, attrs.Host, StatusPending, attrs.Priority, attrs.Depth, now,
	)

	rec, err := scanRecord(row)
	if err != nil {
		return Record{}, &QueueError{Message: err.Error(), Retryable: true, Cause: ErrCauseScanFailed}
	}
	return rec, nil
}

// Get returns a snapshot of the record for rawURL, if known.
func (s *SQLStore) Get(rawURL string) (Record, bool) {
	key := canonicalKeyFromRaw(rawURL)

	row := s.db.QueryRowContext(context.Background(),
		`SELECT `+recordColumns+` FROM crawl_queue WHERE key = ?`, key)

	rec, err := scanRecord(row)
	if err != nil {
		return Record{}, false
	}
	return rec, true
}

// ClaimNext selects the highest-priority, earliest-ready pending (or
// due-for-revisit) record, marks it in_flight under workerID, and
// returns it. Ties break by earliest nextCrawl, then earliest
// firstSeen, which keeps the result deterministic for tests. The select
// and the update run inside one transaction; with the pool capped to a
// single connection (see Open), no other caller can observe or claim
// the same row in between.
func (s *SQLStore) ClaimNext(workerID string, now time.Time) (Record, bool) {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, false
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, claimQuery, now, now, now)
	rec, err := scanRecord(row)
	if err != nil {
		return Record{}, false
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE crawl_queue SET status = ?, owner = ?, claimed_at = ? WHERE key = ?`,
		StatusInFlight, workerID, now, canonicalKeyFromRaw(rec.url),
	); err != nil {
		return Record{}, false
	}

	if err := tx.Commit(); err != nil {
		return Record{}, false
	}

	rec.status = StatusInFlight
	rec.owner = workerID
	rec.claimedAt = now
	return rec, true
}

// CompleteSuccess transitions an in_flight record to visited, stamping
// the fetch result and the next revisit schedule computed by the
// caller's revisit policy.
func (s *SQLStore) CompleteSuccess(rawURL string, now time.Time, contentHash, etag, lastModified string, httpStatus int, nextCrawl time.Time, interval time.Duration) failure.ClassifiedError {
	return s.exec(rawURL, `
		UPDATE crawl_queue SET
			status = ?, last_crawl = ?, next_crawl = ?, retry_after = NULL, retry_count = 0,
			content_hash = ?, etag = ?, last_modified = ?, http_status = ?,
			failure_reason = '', interval_ns = ?, owner = '', claimed_at = NULL
		WHERE key = ?`,
		StatusVisited, now, nullableTime(nextCrawl), contentHash, etag, lastModified, httpStatus, interval,
	)
}

// CompleteNotModified transitions an in_flight record back to visited
// without touching its content hash, for a conditional GET that
// returned 304.
func (s *SQLStore) CompleteNotModified(rawURL string, now time.Time, nextCrawl time.Time, interval time.Duration) failure.ClassifiedError {
	return s.exec(rawURL, `
		UPDATE crawl_queue SET
			status = ?, last_crawl = ?, next_crawl = ?, retry_after = NULL, retry_count = 0,
			http_status = 304, failure_reason = '', interval_ns = ?, owner = '', claimed_at = NULL
		WHERE key = ?`,
		StatusVisited, now, nullableTime(nextCrawl), interval,
	)
}

// CompleteTransientFailure returns an in_flight record to pending,
// incrementing retryCount and setting retryAfter so it is not reclaimed
// before the backoff elapses.
func (s *SQLStore) CompleteTransientFailure(rawURL string, now time.Time, reason string, retryAfter time.Time) failure.ClassifiedError {
	return s.exec(rawURL, `
		UPDATE crawl_queue SET
			status = ?, last_crawl = ?, retry_count = retry_count + 1, retry_after = ?,
			failure_reason = ?, owner = '', claimed_at = NULL
		WHERE key = ?`,
		StatusPending, now, nullableTime(retryAfter), reason,
	)
}

// CompletePermanentFailure moves an in_flight record to a terminal
// state. Failed and excluded records are both terminal -- ClaimNext
// never selects either again -- but they mean different things to a
// caller reading the frontier back: failed is "this crawl tried and
// could not fetch it", excluded is "policy says this was never
// eligible in the first place" (e.g. a redirect landed off the host
// allowlist). exclude selects which terminal status is recorded.
func (s *SQLStore) CompletePermanentFailure(rawURL string, now time.Time, reason string, exclude bool) failure.ClassifiedError {
	status := StatusFailed
	if exclude {
		status = StatusExcluded
	}
	return s.exec(rawURL, `
		UPDATE crawl_queue SET
			status = ?, last_crawl = ?, failure_reason = ?, owner = '', claimed_at = NULL
		WHERE key = ?`,
		status, now, reason,
	)
}

// CompleteExcluded marks a record excluded (robots disallow, host/path
// policy reject) without ever having been fetched or counting against
// retry bookkeeping.
func (s *SQLStore) CompleteExcluded(rawURL string, reason string) failure.ClassifiedError {
	return s.exec(rawURL, `
		UPDATE crawl_queue SET status = ?, failure_reason = ?, owner = '', claimed_at = NULL
		WHERE key = ?`,
		StatusExcluded, reason,
	)
}

// exec runs a parameterized UPDATE against the row for rawURL. args are
// the statement's own bind parameters, in order; the row's key is
// always the final WHERE parameter and is appended here so call sites
// never repeat canonicalKeyFromRaw themselves.
func (s *SQLStore) exec(rawURL, query string, args ...any) failure.ClassifiedError {
	key := canonicalKeyFromRaw(rawURL)
	result, err := s.db.ExecContext(context.Background(), query, append(args, key)...)
	if err != nil {
		return &QueueError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return &QueueError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
	}
	if affected == 0 {
		return &QueueError{
			Message:   fmt.Sprintf("no record for url %q", rawURL),
			Retryable: false,
			Cause:     ErrCauseUnknownURL,
		}
	}
	return nil
}

// ReclaimStale resets any in_flight record whose claimedAt predates
// now-staleThreshold back to pending, as if the claiming worker had
// crashed. Called on startup (resume) and may also be run periodically
// by the checkpoint controller. Returns the number of records reclaimed.
func (s *SQLStore) ReclaimStale(staleThreshold time.Duration, now time.Time) int {
	cutoff := now.Add(-staleThreshold)
	result, err := s.db.ExecContext(context.Background(), `
		UPDATE crawl_queue SET status = ?, owner = '', claimed_at = NULL
		WHERE status = ? AND (claimed_at IS NULL OR claimed_at <= ?)`,
		StatusPending, StatusInFlight, cutoff,
	)
	if err != nil {
		return 0
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0
	}
	return int(affected)
}

// Stats returns a point-in-time health snapshot across all records.
func (s *SQLStore) Stats() Stats {
	ctx := context.Background()
	st := Stats{ByStatus: make(map[Status]int), ByPriority: make(map[int]int)}

	if rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM crawl_queue GROUP BY status`); err == nil {
		defer rows.Close()
		for rows.Next() {
			var status Status
			var count int
			if rows.Scan(&status, &count) == nil {
				st.ByStatus[status] = count
				if status == StatusInFlight {
					st.InFlight = count
				}
			}
		}
	}

	if rows, err := s.db.QueryContext(ctx, `SELECT priority, COUNT(*) FROM crawl_queue GROUP BY priority`); err == nil {
		defer rows.Close()
		for rows.Next() {
			var priority, count int
			if rows.Scan(&priority, &count) == nil {
				st.ByPriority[priority] = count
			}
		}
	}

	_ = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM crawl_queue`).Scan(&st.Total)
	return st
}

// Flush checkpoints the write-ahead log into the main database file.
// Every statement above is already committed the moment it returns, so
// Flush's durability guarantee is about bounding WAL file growth and
// making the main on-disk database file itself (rather than the WAL
// sidecar) current for any out-of-process reader -- not, as with a
// snapshot-based store, the difference between a write surviving a
// crash or not.
func (s *SQLStore) Flush() failure.ClassifiedError {
	if _, err := s.db.ExecContext(context.Background(), `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return &QueueError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
	}
	return nil
}

// Close checkpoints and releases the database connection.
func (s *SQLStore) Close() failure.ClassifiedError {
	if cErr := s.Flush(); cErr != nil {
		_ = s.db.Close()
		return cErr
	}
	if err := s.db.Close(); err != nil {
		return &QueueError{Message: err.Error(), Retryable: false, Cause: ErrCauseQueryFailed}
	}
	return nil
}

// rowScanner abstracts over *sql.Row and *sql.Row returned from both
// QueryRowContext and a transaction's QueryRowContext.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one crawl_queue row (column order: recordColumns)
// into a Record. Nullable timer columns come back as sql.NullTime so a
// never-set nextCrawl/retryAfter/claimedAt round-trips as the zero
// time.Time, which the rest of the package treats as "unset".
func scanRecord(row rowScanner) (Record, error) {
	var (
		key, rawURL, host, status, contentHash, etag, lastModified, failureReason, owner string
		priority, depth, retryCount, httpStatus                                          int
		intervalNS                                                                       int64
		firstSeen                                                                        time.Time
		lastCrawl, nextCrawl, retryAfter, claimedAt                                       sql.NullTime
	)

	err := row.Scan(
		&key, &rawURL, &host, &status, &priority, &depth, &firstSeen, &lastCrawl,
		&nextCrawl, &retryAfter, &retryCount, &contentHash, &etag, &lastModified,
		&httpStatus, &failureReason, &intervalNS, &owner, &claimedAt,
	)
	if err != nil {
		return Record{}, err
	}

	return Record{
		url: rawURL, host: host, status: Status(status), priority: priority, depth: depth,
		firstSeen: firstSeen, lastCrawl: lastCrawl.Time, nextCrawl: nextCrawl.Time,
		retryAfter: retryAfter.Time, retryCount: retryCount, contentHash: contentHash,
		etag: etag, lastModified: lastModified, httpStatus: httpStatus,
		failureReason: failureReason, interval: time.Duration(intervalNS),
		owner: owner, claimedAt: claimedAt.Time,
	}, nil
}

// nullableTime converts a zero time.Time into a SQL NULL, so "unset"
// keeps meaning exactly that in storage rather than the SQLite epoch.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
