package transfer

import (
	"context"
	"errors"
)

// ErrMaxRetriesExceeded is returned by Retry once a transfer chain has
// already retried MaxRetries times.
var ErrMaxRetriesExceeded = errors.New("transfer: max retries exceeded")

// ErrNotFound is returned when a transfer id has no record.
var ErrNotFound = errors.New("transfer: record not found")

// Tracker is the API surface C4-C7 consume to maintain durable transfer
// state. Implementations must never let a storage failure propagate back
// into the protocol path: callers treat Tracker errors as logged-and-
// swallowed, per spec §4.7 ("degraded-durability mode does not abort live
// transfers"); this package itself returns errors honestly, and it is the
// caller's responsibility (see pkg/adapter/pesit) to apply that policy.
type Tracker interface {
	// Create allocates a new transfer record in INITIATED status and
	// returns its id.
	Create(ctx context.Context, sessionID, serverID, nodeID, partnerID, filename string, direction Direction, remoteAddr string) (transferID string, err error)

	// Start marks a transfer IN_PROGRESS once the local path is resolved
	// and, for receive, the declared size (if any) is known.
	Start(ctx context.Context, transferID string, size int64, localPath string) error

	// Progress records bytes transferred so far (monotonically increasing
	// within a transfer).
	Progress(ctx context.Context, transferID string, bytes int64) error

	// RecordSync persists a newly acknowledged sync-point as the resume
	// point; bytesAtSync is the cumulative byte count committed as of that
	// checkpoint.
	RecordSync(ctx context.Context, transferID string, syncNumber uint32, bytesAtSync int64) error

	// Complete marks a transfer COMPLETED, optionally with a verification
	// checksum.
	Complete(ctx context.Context, transferID string, checksum string) error

	// Fail marks a transfer FAILED with a diagnostic code and message.
	Fail(ctx context.Context, transferID string, code string, message string) error

	// Interrupt marks a transfer INTERRUPTED, preserving the last recorded
	// sync-point as the resume point, making it eligible for Retry.
	Interrupt(ctx context.Context, transferID string, reason string) error

	// Cancel marks a transfer CANCELLED; it is not eligible for Retry.
	Cancel(ctx context.Context, transferID string, reason string) error

	// Retry creates a new transfer record chained to transferID via
	// ParentID, inheriting BytesAtLastSync as its resume point, and
	// increments the chain's retry count. Returns ErrMaxRetriesExceeded
	// once the chain has retried MaxRetries times.
	Retry(ctx context.Context, transferID string) (newTransferID string, err error)

	// MarkInterruptedForNode transitions every IN_PROGRESS or PAUSED
	// transfer owned by nodeID to INTERRUPTED. Called once at startup to
	// reap sessions lost to a crash of that node.
	MarkInterruptedForNode(ctx context.Context, nodeID string) error

	// Get returns the current record for transferID.
	Get(ctx context.Context, transferID string) (*Record, error)
}
