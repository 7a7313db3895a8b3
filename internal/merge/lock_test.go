package merge

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLockAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merge.lock")
	lock, err := Acquire(path, time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, statErr := fileStat(path); statErr != nil {
		t.Fatalf("expected lock file to exist: %v", statErr)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, statErr := fileStat(path); statErr == nil {
		t.Fatal("expected lock file to be removed after release")
	}
}

func TestLockConcurrentAcquireFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merge.lock")
	lock1, err := Acquire(path, time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock1.Release()

	_, err = Acquire(path, 100*time.Millisecond)
	if err == nil {
		t.Fatal("expected second acquire to fail while first is held")
	}
}

func TestLockReleaseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merge.lock")
	lock, err := Acquire(path, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("second release should be a no-op, got: %v", err)
	}
}

func TestStaleLockIsReclaimed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merge.lock")
	lock, err := Acquire(path, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	// Simulate an abandoned lock by backdating its mtime past the
	// staleness threshold rather than sleeping for real minutes.
	old := time.Now().Add(-staleLockTimeout - time.Minute)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}
	_ = lock // not released: after the reclaim its Release would delete the new holder's file

	reclaimed, err := Acquire(path, time.Second)
	if err != nil {
		t.Fatalf("expected stale lock to be reclaimed, got error: %v", err)
	}
	defer reclaimed.Release()
}

func fileStat(path string) (bool, error) {
	_, err := os.Stat(path)
	return err == nil, err
}
