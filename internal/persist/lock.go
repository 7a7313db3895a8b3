package persist

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// LockedRead reads file contents under a shared (read) lock. Multiple
// concurrent readers are allowed; an exclusive writer blocks them out.
func LockedRead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("persist: open %s: %w", path, err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH); err != nil {
		return nil, fmt.Errorf("persist: acquire shared lock on %s: %w", path, err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("persist: read %s: %w", path, err)
	}
	return data, nil
}

// LockedWrite writes content to path under an exclusive lock.
//
// The sequence is open (no truncate) -> lock -> truncate -> write -> flush.
// Truncating only after the exclusive lock is held prevents the TOCTOU race
// where a concurrent reader observes an empty file between truncation and
// write completion.
func LockedWrite(path string, content []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("persist: open %s for writing: %w", path, err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("persist: acquire exclusive lock on %s: %w", path, err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("persist: truncate %s: %w", path, err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("persist: seek %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if _, err := w.Write(content); err != nil {
		return fmt.Errorf("persist: write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("persist: flush %s: %w", path, err)
	}
	return f.Sync()
}
