// Package local implements store.Store over the filesystem, rooted under a
// configured directory (server.receive_directory / server.send_directory).
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/nexfin/pesitd/pkg/store"
)

// Store is a filesystem-backed store.Store. All paths passed to its methods
// are treated as already resolved (absolute, or relative to the process
// working directory) by the virtual-file registry; Store does not itself
// enforce a jail root.
type Store struct{}

// New creates a filesystem-backed store.
func New() *Store { return &Store{} }

func mapOSError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %v", store.ErrPermission, err)
	case errors.Is(err, syscall.ENOSPC):
		return fmt.Errorf("%w: %v", store.ErrNoSpace, err)
	default:
		return err
	}
}

func (s *Store) Writer(_ context.Context, path string, appendMode bool) (io.WriteCloser, error) {
	flags := os.O_WRONLY | os.O_CREATE
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, mapOSError(err)
	}
	return f, nil
}

func (s *Store) Reader(_ context.Context, path string, offset int64) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, mapOSError(err)
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, mapOSError(err)
		}
	}
	return f, nil
}

func (s *Store) Size(_ context.Context, path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, mapOSError(err)
	}
	return fi.Size(), nil
}

func (s *Store) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, mapOSError(err)
}

func (s *Store) IsReadable(_ context.Context, path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return false, nil
		}
		return false, mapOSError(err)
	}
	f.Close()
	return true, nil
}

func (s *Store) MkdirAll(_ context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return mapOSError(err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return mapOSError(err)
	}
	return nil
}

var _ store.Store = (*Store)(nil)

// JoinUnderRoot is a helper for resolving a registry-relative filename
// against a configured receive/send directory, guarding against path
// traversal outside root.
func JoinUnderRoot(root, name string) (string, error) {
	joined := filepath.Join(root, name)
	cleanRoot := filepath.Clean(root)
	if joined != cleanRoot && !pathHasPrefix(joined, cleanRoot) {
		return "", fmt.Errorf("local: resolved path %q escapes root %q", joined, cleanRoot)
	}
	return joined, nil
}

func pathHasPrefix(path, prefix string) bool {
	rel, err := filepath.Rel(prefix, path)
	if err != nil {
		return false
	}
	return rel != ".." && !hasDotDotPrefix(rel)
}

func hasDotDotPrefix(rel string) bool {
	return len(rel) >= 2 && rel[0] == '.' && rel[1] == '.'
}
