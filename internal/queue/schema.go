package queue

// schema creates the crawl_queue table on first open. Column names and
// the readiness predicate embedded in claimQuery below mirror the
// crawl_queue table the original site-crawler ingestion pipeline used:
// one row per canonicalized URL, with status/priority/timer columns
// driving both claim order and revisit scheduling.
const schema = `
CREATE TABLE IF NOT EXISTS crawl_queue (
	key            TEXT PRIMARY KEY,
	url            TEXT NOT NULL,
	host           TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'pending',
	priority       INTEGER NOT NULL DEFAULT 0,
	depth          INTEGER NOT NULL DEFAULT 0,
	first_seen     DATETIME NOT NULL,
	last_crawl     DATETIME,
	next_crawl     DATETIME,
	retry_after    DATETIME,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	content_hash   TEXT NOT NULL DEFAULT '',
	etag           TEXT NOT NULL DEFAULT '',
	last_modified  TEXT NOT NULL DEFAULT '',
	http_status    INTEGER NOT NULL DEFAULT 0,
	failure_reason TEXT NOT NULL DEFAULT '',
	interval_ns    INTEGER NOT NULL DEFAULT 0,
	owner          TEXT NOT NULL DEFAULT '',
	claimed_at     DATETIME
);
CREATE INDEX IF NOT EXISTS idx_crawl_queue_status ON crawl_queue(status);
CREATE INDEX IF NOT EXISTS idx_crawl_queue_priority ON crawl_queue(priority);
`

const recordColumns = `key, url, host, status, priority, depth, first_seen, last_crawl,
	next_crawl, retry_after, retry_count, content_hash, etag, last_modified,
	http_status, failure_reason, interval_ns, owner, claimed_at`

// claimQuery selects the single best ready row without locking it; the
// caller runs this inside a transaction and follows it with an UPDATE,
// relying on the store's single-connection pool (see Open) to make the
// pair atomic. The due-date predicate is the OR of "pending past its
// gate" and "visited past its revisit date"; there is no separate
// Go-side readiness check.
const claimQuery = `
SELECT ` + recordColumns + ` FROM crawl_queue
WHERE (status = 'pending' AND (retry_after IS NULL OR retry_after <= ?) AND (next_crawl IS NULL OR next_crawl <= ?))
   OR (status = 'visited' AND next_crawl IS NOT NULL AND next_crawl <= ?)
ORDER BY priority DESC,
         COALESCE(next_crawl, first_seen) ASC,
         first_seen ASC
LIMIT 1
`
