// Package fileutil provides filesystem helpers for robust file operations.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrEmptyPath indicates an empty file path was provided.
var ErrEmptyPath = errors.New("path is empty")

// PrivateDirMode is the permission mode for directories holding key material.
const PrivateDirMode os.FileMode = 0o700

// PrivateFileMode is the permission mode for files holding key material.
const PrivateFileMode os.FileMode = 0o600

// WriteAtomic writes data to path atomically with the provided permissions.
// It writes to a temp file in the same directory, fsyncs, then renames, so a
// crash mid-write never leaves a half-written file at path.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	if path == "" {
		return ErrEmptyPath
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)

	tmpFile, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tmpPath := tmpFile.Name()
	closed := false
	defer func() {
		if !closed {
			_ = tmpFile.Close()
		}
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := tmpFile.Chmod(perm); err != nil {
		return fmt.Errorf("setting temp file permissions: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	closed = true

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	// Best effort directory sync for rename durability.
	if dirFile, err := os.Open(dir); err == nil { //nolint:gosec // G304: dir is derived from validated path
		_ = dirFile.Sync()
		_ = dirFile.Close()
	}

	return nil
}

// EnsurePrivateDir creates dir (and parents) with owner-only permissions.
func EnsurePrivateDir(dir string) error {
	if dir == "" {
		return ErrEmptyPath
	}
	return os.MkdirAll(dir, PrivateDirMode)
}

// AppendLine appends a single line to path, creating it with restrictive
// permissions if needed. Used for the JSONL history and audit logs.
func AppendLine(path string, line []byte) error {
	if path == "" {
		return ErrEmptyPath
	}
	if err := EnsurePrivateDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, PrivateFileMode) //nolint:gosec // G304: path is from validated internal store
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending log line: %w", err)
	}
	return nil
}
