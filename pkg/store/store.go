// Package store abstracts the physical storage backend a PeSIT server reads
// from and writes to: local filesystem directories (receive/send
// directories, spec §6) or an S3-compatible bucket. The data-transfer engine
// (C5) is storage-agnostic beyond this interface.
//
// Unlike a content-addressable store, a PeSIT store is path-addressable:
// the virtual-file registry resolves a PI_12 name to a physical path, and
// the store operates directly on that path.
package store

import (
	"context"
	"errors"
	"io"
)

// Sentinel errors a Store implementation must return (possibly wrapped) so
// callers can map them to wire diagnostics without depending on a specific
// backend's error types.
var (
	ErrNotFound   = errors.New("store: path not found")
	ErrPermission = errors.New("store: permission denied")
	ErrNoSpace    = errors.New("store: insufficient space")
)

// Store is the storage connector consulted by CREATE/SELECT/OPEN/CLOSE and
// the data-transfer engine.
type Store interface {
	// Writer opens path for writing. If appendMode is true and the path
	// already exists, writes continue from its current end (used to resume
	// a transfer after an acknowledged sync-point); otherwise the path is
	// created or truncated.
	Writer(ctx context.Context, path string, appendMode bool) (io.WriteCloser, error)

	// Reader opens path for reading starting at the given byte offset.
	Reader(ctx context.Context, path string, offset int64) (io.ReadCloser, error)

	// Size returns the current size of path in bytes.
	Size(ctx context.Context, path string) (int64, error)

	// Exists reports whether path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// IsReadable reports whether path exists and the server can open it for
	// reading (used by SELECT to validate a send-direction request).
	IsReadable(ctx context.Context, path string) (bool, error)

	// MkdirAll ensures every directory component of dir exists.
	MkdirAll(ctx context.Context, dir string) error

	// Delete removes path. It is idempotent: deleting a non-existent path
	// returns nil.
	Delete(ctx context.Context, path string) error
}
