// Package lockfile implements the lockfile + rename update used for every
// mutable file in a repository: the op heads record and directory-remote
// bookmarks. A writer creates "<path>.lock" exclusively, writes the new
// content into it and renames it over path.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrTimeout is returned when a lock cannot be acquired within the wait
// limit.
var ErrTimeout = errors.New("timeout waiting for lock")

var (
	retryDelay = 5 * time.Millisecond
	waitLimit  = 2 * time.Second
)

// Lock is a held lock on a file. Callers must either Commit or Release it.
type Lock struct {
	path     string
	lockPath string
	f        *os.File
}

// Acquire creates path+".lock" exclusively, retrying until the wait limit.
// Parent directories are created as needed.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("lock %q: mkdir: %w", path, err)
	}
	lockPath := path + ".lock"
	deadline := time.Now().Add(waitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return &Lock{path: path, lockPath: lockPath, f: f}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("lock %q: %w", path, err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock %q: %w", lockPath, ErrTimeout)
		}
		time.Sleep(retryDelay)
	}
}

// Path returns the file guarded by the lock.
func (l *Lock) Path() string { return l.path }

// Read returns the current content of the guarded file, or nil when it does
// not exist yet.
func (l *Lock) Read() ([]byte, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock %q: read: %w", l.path, err)
	}
	return data, nil
}

// Commit writes data as the new content of the guarded file and releases the
// lock. The update is atomic: readers see either the old or the new file.
func (l *Lock) Commit(data []byte) error {
	if l.f == nil {
		return fmt.Errorf("lock %q: already released", l.path)
	}
	f := l.f
	l.f = nil
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(l.lockPath)
		return fmt.Errorf("lock %q: write: %w", l.path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(l.lockPath)
		return fmt.Errorf("lock %q: sync: %w", l.path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(l.lockPath)
		return fmt.Errorf("lock %q: close: %w", l.path, err)
	}
	if err := os.Rename(l.lockPath, l.path); err != nil {
		os.Remove(l.lockPath)
		return fmt.Errorf("lock %q: rename: %w", l.path, err)
	}
	return nil
}

// Release drops the lock without changing the guarded file. It is a no-op
// after Commit.
func (l *Lock) Release() error {
	if l.f == nil {
		return nil
	}
	_ = l.f.Close()
	l.f = nil
	if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lock %q: remove: %w", l.path, err)
	}
	return nil
}

// Update runs fn on the current content under the lock and commits what it
// returns. When fn fails the file is left untouched.
func Update(path string, fn func(old []byte) ([]byte, error)) error {
	l, err := Acquire(path)
	if err != nil {
		return err
	}
	defer l.Release()
	old, err := l.Read()
	if err != nil {
		return err
	}
	next, err := fn(old)
	if err != nil {
		return err
	}
	return l.Commit(next)
}
