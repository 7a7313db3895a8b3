// Package merge implements progressive merge (C6): single-writer merging
// of completed stage branches into the merge point, serialized by a
// file-based lock at .work/merge.lock.
package merge

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cosmix/loom-sub004/internal/errs"
)

const staleLockTimeout = 5 * time.Minute

// Lock is a file-based mutual-exclusion lock created with O_CREAT|O_EXCL,
// mirroring the create-new-or-fail semantics needed so a crashed holder's
// lock ages into staleness rather than blocking forever.
type Lock struct {
	path string
	held bool
}

// Acquire polls every 100ms until the lock is obtained or timeout elapses.
// A lock file whose mtime is older than 5 minutes is treated as
// abandoned (its owner likely crashed) and is reclaimed by deleting and
// retrying the create.
func Acquire(path string, timeout time.Duration) (*Lock, error) {
	deadline := time.Now().Add(timeout)
	pollInterval := 100 * time.Millisecond

	for {
		lock, err := tryAcquire(path)
		if err == nil {
			return lock, nil
		}
		if time.Now().After(deadline) {
			return nil, &errs.LockContentionError{Path: path}
		}
		time.Sleep(pollInterval)
	}
}

func tryAcquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			if isStale(path) {
				os.Remove(path)
				return tryAcquire(path)
			}
			return nil, fmt.Errorf("merge: lock held by another process")
		}
		return nil, fmt.Errorf("merge: acquire lock %s: %w", path, err)
	}
	defer f.Close()

	fmt.Fprintf(f, "pid=%d\n", os.Getpid())
	fmt.Fprintf(f, "timestamp=%s\n", time.Now().UTC().Format(time.RFC3339))
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("merge: sync lock file: %w", err)
	}
	return &Lock{path: path, held: true}, nil
}

func isStale(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) > staleLockTimeout
}

// Release deletes the lock file. Idempotent: calling it twice or after the
// file has already vanished is not an error.
func (l *Lock) Release() error {
	if l == nil || !l.held {
		return nil
	}
	l.held = false
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("merge: release lock %s: %w", l.path, err)
	}
	return nil
}

// Holder returns the pid recorded in an existing lock file, for status
// reporting and diagnostics.
func Holder(path string) (int, time.Time, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, time.Time{}, err
	}
	var pid int
	var ts time.Time
	for _, line := range strings.Split(string(data), "\n") {
		if v, ok := strings.CutPrefix(line, "pid="); ok {
			pid, _ = strconv.Atoi(v)
		}
		if v, ok := strings.CutPrefix(line, "timestamp="); ok {
			ts, _ = time.Parse(time.RFC3339, v)
		}
	}
	return pid, ts, nil
}
