package queue

import (
	"os"
	"sync"

	bloom "github.com/bits-and-blooms/bloom/v3"
	"github.com/edsrzf/mmap-go"

	"github.com/fetchward/crawlkit/pkg/failure"
)

/*
Dedup is an optional bloom filter kept beside SQLStore's authoritative
table. It answers "definitely never seen" in constant time: a negative
test is always right, while a positive one can be false and only the
table can confirm it. SQLStore.Upsert adds every key it admits to the
filter but does not consult it to skip its SQL statement, so the table
stays the single source of truth.

The on-disk form is read back via a read-only mmap on startup, which
costs nothing until the filter is actually queried; writes go through a
plain marshal-then-os.WriteFile on Flush rather than writing through
the mapping, since partial in-place mmap writes under concurrent reads
are a correctness hazard a frontier of this size doesn't need to take
on.
*/
type Dedup struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	path   string
	file   *os.File
	region mmap.MMap
	dirty  bool
}

// NewDedup constructs a Dedup sized for expectedItems URLs at the given
// false-positive rate. The filter starts empty; call Load to hydrate
// from a prior snapshot.
func NewDedup(path string, expectedItems uint, falsePositiveRate float64) *Dedup {
	return &Dedup{
		filter: bloom.NewWithEstimates(expectedItems, falsePositiveRate),
		path:   path,
	}
}

// Load hydrates the filter from a persisted snapshot via a read-only
// mmap, if one exists. A missing file is not an error: the filter
// simply starts empty, as on a fresh crawl.
func (d *Dedup) Load() failure.ClassifiedError {
	d.mu.Lock()
	defer d.mu.Unlock()

	file, err := os.Open(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &QueueError{Message: err.Error(), Retryable: false, Cause: ErrCauseSnapshotReadFailed}
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return &QueueError{Message: err.Error(), Retryable: false, Cause: ErrCauseSnapshotReadFailed}
	}
	if info.Size() == 0 {
		_ = file.Close()
		return nil
	}

	region, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		_ = file.Close()
		return &QueueError{Message: err.Error(), Retryable: false, Cause: ErrCauseSnapshotReadFailed}
	}

	filter := &bloom.BloomFilter{}
	if err := filter.UnmarshalBinary(region); err != nil {
		_ = region.Unmap()
		_ = file.Close()
		return &QueueError{Message: err.Error(), Retryable: false, Cause: ErrCauseSnapshotCorrupt}
	}

	d.file = file
	d.region = region
	d.filter = filter
	return nil
}

// Seen reports whether key has definitely, or possibly, been added
// before. false means "definitely new"; true means "possibly seen" and
// callers must fall back to an authoritative check.
func (d *Dedup) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.filter.TestString(key)
}

// Add records key as seen.
func (d *Dedup) Add(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.filter.AddString(key)
	d.dirty = true
}

// Flush persists the filter to disk if it has changed since the last
// flush. The previous read-only mapping, if any, is released first
// since the file is about to be replaced.
func (d *Dedup) Flush() failure.ClassifiedError {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.dirty {
		return nil
	}

	data, err := d.filter.MarshalBinary()
	if err != nil {
		return &QueueError{Message: err.Error(), Retryable: false, Cause: ErrCauseSnapshotWriteFailed}
	}

	if err := os.WriteFile(d.path, data, 0644); err != nil {
		return &QueueError{Message: err.Error(), Retryable: true, Cause: ErrCauseSnapshotWriteFailed}
	}

	d.dirty = false
	return nil
}

// Close releases the read-only mapping opened by Load, if any. It does
// not flush; callers that mutated the filter must Flush explicitly.
func (d *Dedup) Close() failure.ClassifiedError {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.region != nil {
		if err := d.region.Unmap(); err != nil {
			return &QueueError{Message: err.Error(), Retryable: false, Cause: ErrCauseSnapshotReadFailed}
		}
		d.region = nil
	}
	if d.file != nil {
		if err := d.file.Close(); err != nil {
			return &QueueError{Message: err.Error(), Retryable: false, Cause: ErrCauseSnapshotReadFailed}
		}
		d.file = nil
	}
	return nil
}
