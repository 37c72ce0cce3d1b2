package content

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// LocalStore keeps content in a directory tree on the local file system.
type LocalStore struct {
	root string
}

// NewLocalStore creates a store rooted at root. The directory is created on demand.
func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve content root: %w", err)
	}
	return &LocalStore{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *LocalStore) Root() string { return s.root }

// PutIfAbsent writes data under key unless the key is already present and
// returns the absolute file path. The file's modification time is set to modTime
// when it is non-zero. Concurrent writers of one key race on a hard link, so
// exactly one of them succeeds and the rest get ErrExists.
func (s *LocalStore) PutIfAbsent(ctx context.Context, key string, data []byte, modTime time.Time) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dst := filepath.Join(s.root, filepath.FromSlash(key))
	if _, err := os.Stat(dst); err == nil {
		return dst, ErrExists
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return "", fmt.Errorf("chmod %s: %w", key, err)
	}
	if !modTime.IsZero() {
		if err := os.Chtimes(tmpName, modTime, modTime); err != nil {
			return "", fmt.Errorf("set times %s: %w", key, err)
		}
	}

	if err := os.Link(tmpName, dst); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return dst, ErrExists
		}
		return "", fmt.Errorf("publish %s: %w", key, err)
	}
	return dst, nil
}

// Delete removes key. A missing key is not an error.
func (s *LocalStore) Delete(_ context.Context, key string) error {
	if !validKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	dst := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// HealthCheck verifies that the root directory exists or can be created.
func (s *LocalStore) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("content root %s: %w", s.root, err)
	}
	return nil
}
