// Package filelock serializes access to the state files agentflow shares
// between runs: checkpoints, performance history and the knowledge base.
package filelock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileLock is an advisory cross-process lock backed by flock(2).
type FileLock struct {
	flock *flock.Flock
	path  string
}

// NewFileLock returns a lock on path. The file is created on first Lock.
func NewFileLock(path string) *FileLock {
	return &FileLock{
		flock: flock.New(path),
		path:  path,
	}
}

// Lock blocks until the exclusive lock is held.
func (fl *FileLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(fl.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory for %s: %w", fl.path, err)
	}
	if err := fl.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", fl.path, err)
	}
	return nil
}

// TryLock acquires the lock without blocking and reports whether it succeeded.
func (fl *FileLock) TryLock() (bool, error) {
	acquired, err := fl.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to try lock on %s: %w", fl.path, err)
	}
	return acquired, nil
}

// Unlock releases the lock.
func (fl *FileLock) Unlock() error {
	if err := fl.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock on %s: %w", fl.path, err)
	}
	return nil
}

// AtomicWrite replaces path with data via a sibling temp file and rename, so
// a reader sees either the old or the new content and never a torn write.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}
	committed = true
	return nil
}

func lockFor(path string) *FileLock {
	return NewFileLock(path + ".lock")
}

// LockAndWrite writes data atomically while holding path's ".lock" sibling.
func LockAndWrite(path string, data []byte) error {
	lock := lockFor(path)
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	return AtomicWrite(path, data)
}

// Update performs a locked read-modify-write of path. fn receives the current
// content, or nil when the file does not exist yet, and returns the new content.
func Update(path string, fn func(current []byte) ([]byte, error)) error {
	lock := lockFor(path)
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	current, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	return AtomicWrite(path, next)
}

// WriteJSON encodes v with indentation and writes it with LockAndWrite.
func WriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return LockAndWrite(path, data)
}

// ReadJSON decodes path into v under the lock. It returns os.ErrNotExist
// (wrapped) when the file is missing.
func ReadJSON(path string, v interface{}) error {
	lock := lockFor(path)
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
