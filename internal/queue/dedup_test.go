package queue_test

import (
	"path/filepath"
	"testing"

	"github.com/fetchward/crawlkit/internal/queue"
)

func TestDedup_SeenAfterAdd(t *testing.T) {
	d := queue.NewDedup(filepath.Join(t.TempDir(), "dedup.bloom"), 1000, 0.01)

	if d.Seen("https://example.com/a") {
		t.Fatal("expected unseen key to report not seen")
	}
	d.Add("https://example.com/a")
	if !d.Seen("https://example.com/a") {
		t.Fatal("expected added key to report seen")
	}
}

func TestDedup_SurvivesFlushAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dedup.bloom")

	d1 := queue.NewDedup(path, 1000, 0.01)
	d1.Add("https://example.com/a")
	if err := d1.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := d1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	d2 := queue.NewDedup(path, 1000, 0.01)
	if err := d2.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !d2.Seen("https://example.com/a") {
		t.Fatal("expected previously-flushed key to survive reload")
	}
	if err := d2.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestDedup_LoadMissingFileIsNotError(t *testing.T) {
	d := queue.NewDedup(filepath.Join(t.TempDir(), "missing.bloom"), 1000, 0.01)
	if err := d.Load(); err != nil {
		t.Fatalf("expected no error loading a nonexistent snapshot, got %v", err)
	}
}
