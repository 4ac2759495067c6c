// Package filestore provides the locked, atomic JSON document primitives
// shared by the memory stores.
//
// Every mutation follows the same cycle: take an advisory lock on
// "<path>.lock", reload the document from disk, mutate, and replace the
// document through a temp file and rename. Readers never observe a
// partially written document, and two processes cannot interleave a
// read-modify-write on the same file.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockRetryDelay = 25 * time.Millisecond

	// maxDocumentSize bounds a single JSON document read.
	maxDocumentSize = 64 * 1024 * 1024
)

var (
	// ErrLockTimeout is returned when the advisory lock could not be taken in time.
	ErrLockTimeout = errors.New("timed out waiting for file lock")

	// ErrDocumentTooLarge is returned when a document exceeds maxDocumentSize.
	ErrDocumentTooLarge = errors.New("document too large")
)

// LockPath returns the advisory lock file guarding path.
func LockPath(path string) string {
	return path + ".lock"
}

// WithLock runs fn while holding the exclusive advisory lock for path.
// It waits at most timeout for the lock and honours ctx cancellation.
func WithLock(ctx context.Context, path string, timeout time.Duration, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fl := flock.New(LockPath(path))
	locked, err := fl.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: %s", ErrLockTimeout, path)
		}
		return fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrLockTimeout, path)
	}
	defer fl.Unlock()

	return fn()
}

// ReadJSON decodes the document at path into v.
// It reports false without error when the file does not exist.
func ReadJSON(path string, v any) (bool, error) {
	data, err := ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return true, nil
}

// ReadFile reads path, refusing documents larger than maxDocumentSize.
func ReadFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxDocumentSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrDocumentTooLarge, path, info.Size())
	}
	return os.ReadFile(path)
}

// WriteJSON encodes v with two-space indentation and replaces path atomically.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return WriteFileAtomic(path, append(data, '\n'), 0600)
}

// WriteFileAtomic writes data to a temp file in the target directory,
// fsyncs it and renames it over path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename %s: %w", path, err)
	}
	return nil
}

// Update runs a locked read-modify-write cycle on the JSON document at path.
// doc is decoded from disk (left untouched when the file is missing) and
// passed to mutate. The document is written back only when mutate reports
// a change and returns no error.
func Update(ctx context.Context, path string, timeout time.Duration, doc any, mutate func(exists bool) (bool, error)) error {
	return WithLock(ctx, path, timeout, func() error {
		exists, err := ReadJSON(path, doc)
		if err != nil {
			return err
		}
		changed, err := mutate(exists)
		if err != nil || !changed {
			return err
		}
		return WriteJSON(path, doc)
	})
}
