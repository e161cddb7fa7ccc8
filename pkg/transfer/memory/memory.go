// Package memory implements transfer.Tracker in-process, for standalone
// deployments and tests where durability across restarts is not required.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexfin/pesitd/pkg/transfer"
)

// Tracker is an in-memory transfer.Tracker guarded by a single mutex; it is
// not intended for heavy concurrent write load, only for the single-node
// default deployment.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*transfer.Record
}

// New creates an empty in-memory tracker.
func New() *Tracker {
	return &Tracker{records: make(map[string]*transfer.Record)}
}

var _ transfer.Tracker = (*Tracker)(nil)

func (t *Tracker) Create(_ context.Context, sessionID, serverID, nodeID, partnerID, filename string, direction transfer.Direction, remoteAddr string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	id := uuid.New().String()
	t.records[id] = &transfer.Record{
		ID:         id,
		SessionID:  sessionID,
		ServerID:   serverID,
		NodeID:     nodeID,
		PartnerID:  partnerID,
		RemoteAddr: remoteAddr,
		Filename:   filename,
		Direction:  direction,
		Status:     transfer.StatusInitiated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return id, nil
}

func (t *Tracker) Start(_ context.Context, transferID string, size int64, localPath string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.mustGet(transferID)
	if err != nil {
		return err
	}
	r.SizeBytes = size
	r.LocalPath = localPath
	r.Status = transfer.StatusInProgress
	r.StartedAt = time.Now()
	r.UpdatedAt = r.StartedAt
	return nil
}

func (t *Tracker) Progress(_ context.Context, transferID string, bytes int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.mustGet(transferID)
	if err != nil {
		return err
	}
	r.BytesTransferred = bytes
	r.UpdatedAt = time.Now()
	return nil
}

func (t *Tracker) RecordSync(_ context.Context, transferID string, syncNumber uint32, bytesAtSync int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.mustGet(transferID)
	if err != nil {
		return err
	}
	r.LastSyncNumber = syncNumber
	r.LastSyncOffset = bytesAtSync
	r.BytesAtLastSync = bytesAtSync
	r.UpdatedAt = time.Now()
	return nil
}

func (t *Tracker) Complete(_ context.Context, transferID string, checksum string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.mustGet(transferID)
	if err != nil {
		return err
	}
	r.Status = transfer.StatusCompleted
	r.Checksum = checksum
	now := time.Now()
	r.CompletedAt = now
	r.UpdatedAt = now
	return nil
}

func (t *Tracker) Fail(_ context.Context, transferID string, code string, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.mustGet(transferID)
	if err != nil {
		return err
	}
	r.Status = transfer.StatusFailed
	r.ErrorCode = code
	r.ErrorMessage = message
	r.UpdatedAt = time.Now()
	return nil
}

func (t *Tracker) Interrupt(_ context.Context, transferID string, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.mustGet(transferID)
	if err != nil {
		return err
	}
	r.Status = transfer.StatusInterrupted
	r.ErrorMessage = reason
	r.UpdatedAt = time.Now()
	return nil
}

func (t *Tracker) Cancel(_ context.Context, transferID string, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.mustGet(transferID)
	if err != nil {
		return err
	}
	r.Status = transfer.StatusCancelled
	r.ErrorMessage = reason
	r.UpdatedAt = time.Now()
	return nil
}

func (t *Tracker) Retry(_ context.Context, transferID string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent, err := t.mustGet(transferID)
	if err != nil {
		return "", err
	}
	if parent.Status == transfer.StatusCancelled {
		return "", fmt.Errorf("transfer %s is cancelled and cannot be retried", transferID)
	}
	if parent.RetryCount >= transfer.MaxRetries {
		return "", transfer.ErrMaxRetriesExceeded
	}

	now := time.Now()
	id := uuid.New().String()
	child := &transfer.Record{
		ID:              id,
		ParentID:        parent.ID,
		SessionID:       parent.SessionID,
		ServerID:        parent.ServerID,
		NodeID:          parent.NodeID,
		PartnerID:       parent.PartnerID,
		RemoteAddr:      parent.RemoteAddr,
		Filename:        parent.Filename,
		LocalPath:       parent.LocalPath,
		Direction:       parent.Direction,
		Status:          transfer.StatusRetryPending,
		SizeBytes:       parent.SizeBytes,
		BytesAtLastSync: parent.BytesAtLastSync,
		LastSyncNumber:  parent.LastSyncNumber,
		LastSyncOffset:  parent.LastSyncOffset,
		RetryCount:      parent.RetryCount + 1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	t.records[id] = child
	return id, nil
}

func (t *Tracker) MarkInterruptedForNode(_ context.Context, nodeID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for _, r := range t.records {
		if r.NodeID != nodeID {
			continue
		}
		if r.Status == transfer.StatusInProgress || r.Status == transfer.StatusPaused {
			r.Status = transfer.StatusInterrupted
			r.ErrorMessage = "node restarted"
			r.UpdatedAt = now
		}
	}
	return nil
}

func (t *Tracker) Get(_ context.Context, transferID string) (*transfer.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.mustGet(transferID)
	if err != nil {
		return nil, err
	}
	cp := *r
	return &cp, nil
}

// mustGet must be called with t.mu held.
func (t *Tracker) mustGet(transferID string) (*transfer.Record, error) {
	r, ok := t.records[transferID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", transfer.ErrNotFound, transferID)
	}
	return r, nil
}
