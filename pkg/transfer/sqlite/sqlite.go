// Package sqlite implements transfer.Tracker durably over gorm with a
// SQLite backend, for deployments that need transfer history and resume
// state to survive a process restart.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nexfin/pesitd/pkg/transfer"
)

// transferModel is the GORM row shape for a transfer.Record.
type transferModel struct {
	ID       string `gorm:"primaryKey"`
	ParentID string `gorm:"index"`

	SessionID  string
	ServerID   string
	NodeID     string `gorm:"index"`
	PartnerID  string `gorm:"index"`
	RemoteAddr string

	Filename  string
	LocalPath string
	Direction string
	Status    string `gorm:"index"`

	SizeBytes        int64
	BytesTransferred int64

	LastSyncNumber  uint32
	LastSyncOffset  int64
	BytesAtLastSync int64

	ErrorCode    string
	ErrorMessage string
	RetryCount   int
	Checksum     string

	CreatedAt   time.Time
	StartedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time
}

func (transferModel) TableName() string { return "transfer_records" }

func toRecord(m *transferModel) *transfer.Record {
	return &transfer.Record{
		ID:               m.ID,
		ParentID:         m.ParentID,
		SessionID:        m.SessionID,
		ServerID:         m.ServerID,
		NodeID:           m.NodeID,
		PartnerID:        m.PartnerID,
		RemoteAddr:       m.RemoteAddr,
		Filename:         m.Filename,
		LocalPath:        m.LocalPath,
		Direction:        transfer.Direction(m.Direction),
		Status:           transfer.Status(m.Status),
		SizeBytes:        m.SizeBytes,
		BytesTransferred: m.BytesTransferred,
		LastSyncNumber:   m.LastSyncNumber,
		LastSyncOffset:   m.LastSyncOffset,
		BytesAtLastSync:  m.BytesAtLastSync,
		ErrorCode:        m.ErrorCode,
		ErrorMessage:     m.ErrorMessage,
		RetryCount:       m.RetryCount,
		Checksum:         m.Checksum,
		CreatedAt:        m.CreatedAt,
		StartedAt:        m.StartedAt,
		UpdatedAt:        m.UpdatedAt,
		CompletedAt:      m.CompletedAt,
	}
}

// Tracker is a gorm/SQLite-backed transfer.Tracker.
type Tracker struct {
	db *gorm.DB
}

// Open creates (or opens) the SQLite database at path and ensures the
// transfer_records table exists, mirroring the control-plane store's
// WAL + busy-timeout pragma choice for safe concurrent access from several
// session tasks.
func Open(path string) (*Tracker, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: create database directory: %w", err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}

	if err := db.AutoMigrate(&transferModel{}); err != nil {
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	return &Tracker{db: db}, nil
}

var _ transfer.Tracker = (*Tracker)(nil)

func (t *Tracker) Create(ctx context.Context, sessionID, serverID, nodeID, partnerID, filename string, direction transfer.Direction, remoteAddr string) (string, error) {
	now := time.Now()
	m := &transferModel{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		ServerID:   serverID,
		NodeID:     nodeID,
		PartnerID:  partnerID,
		RemoteAddr: remoteAddr,
		Filename:   filename,
		Direction:  string(direction),
		Status:     string(transfer.StatusInitiated),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := t.db.WithContext(ctx).Create(m).Error; err != nil {
		return "", fmt.Errorf("sqlite: create transfer record: %w", err)
	}
	return m.ID, nil
}

func (t *Tracker) Start(ctx context.Context, transferID string, size int64, localPath string) error {
	now := time.Now()
	return t.update(ctx, transferID, map[string]any{
		"size_bytes": size,
		"local_path": localPath,
		"status":     string(transfer.StatusInProgress),
		"started_at": now,
		"updated_at": now,
	})
}

func (t *Tracker) Progress(ctx context.Context, transferID string, bytes int64) error {
	return t.update(ctx, transferID, map[string]any{
		"bytes_transferred": bytes,
		"updated_at":        time.Now(),
	})
}

func (t *Tracker) RecordSync(ctx context.Context, transferID string, syncNumber uint32, bytesAtSync int64) error {
	return t.update(ctx, transferID, map[string]any{
		"last_sync_number":   syncNumber,
		"last_sync_offset":   bytesAtSync,
		"bytes_at_last_sync": bytesAtSync,
		"updated_at":         time.Now(),
	})
}

func (t *Tracker) Complete(ctx context.Context, transferID string, checksum string) error {
	now := time.Now()
	return t.update(ctx, transferID, map[string]any{
		"status":       string(transfer.StatusCompleted),
		"checksum":     checksum,
		"completed_at": now,
		"updated_at":   now,
	})
}

func (t *Tracker) Fail(ctx context.Context, transferID string, code string, message string) error {
	return t.update(ctx, transferID, map[string]any{
		"status":        string(transfer.StatusFailed),
		"error_code":    code,
		"error_message": message,
		"updated_at":    time.Now(),
	})
}

func (t *Tracker) Interrupt(ctx context.Context, transferID string, reason string) error {
	return t.update(ctx, transferID, map[string]any{
		"status":        string(transfer.StatusInterrupted),
		"error_message": reason,
		"updated_at":    time.Now(),
	})
}

func (t *Tracker) Cancel(ctx context.Context, transferID string, reason string) error {
	return t.update(ctx, transferID, map[string]any{
		"status":        string(transfer.StatusCancelled),
		"error_message": reason,
		"updated_at":    time.Now(),
	})
}

func (t *Tracker) Retry(ctx context.Context, transferID string) (string, error) {
	var childID string
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var parent transferModel
		if err := tx.Where("id = ?", transferID).First(&parent).Error; err != nil {
			return convertNotFound(err, transferID)
		}
		if parent.Status == string(transfer.StatusCancelled) {
			return fmt.Errorf("transfer %s is cancelled and cannot be retried", transferID)
		}
		if parent.RetryCount >= transfer.MaxRetries {
			return transfer.ErrMaxRetriesExceeded
		}

		now := time.Now()
		child := &transferModel{
			ID:              uuid.New().String(),
			ParentID:        parent.ID,
			SessionID:       parent.SessionID,
			ServerID:        parent.ServerID,
			NodeID:          parent.NodeID,
			PartnerID:       parent.PartnerID,
			RemoteAddr:      parent.RemoteAddr,
			Filename:        parent.Filename,
			LocalPath:       parent.LocalPath,
			Direction:       parent.Direction,
			Status:          string(transfer.StatusRetryPending),
			SizeBytes:       parent.SizeBytes,
			BytesAtLastSync: parent.BytesAtLastSync,
			LastSyncNumber:  parent.LastSyncNumber,
			LastSyncOffset:  parent.LastSyncOffset,
			RetryCount:      parent.RetryCount + 1,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Create(child).Error; err != nil {
			return err
		}
		childID = child.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return childID, nil
}

func (t *Tracker) MarkInterruptedForNode(ctx context.Context, nodeID string) error {
	return t.db.WithContext(ctx).
		Model(&transferModel{}).
		Where("node_id = ? AND status IN ?", nodeID, []string{string(transfer.StatusInProgress), string(transfer.StatusPaused)}).
		Updates(map[string]any{
			"status":        string(transfer.StatusInterrupted),
			"error_message": "node restarted",
			"updated_at":    time.Now(),
		}).Error
}

func (t *Tracker) Get(ctx context.Context, transferID string) (*transfer.Record, error) {
	var m transferModel
	if err := t.db.WithContext(ctx).Where("id = ?", transferID).First(&m).Error; err != nil {
		return nil, convertNotFound(err, transferID)
	}
	return toRecord(&m), nil
}

func (t *Tracker) update(ctx context.Context, transferID string, fields map[string]any) error {
	result := t.db.WithContext(ctx).Model(&transferModel{}).Where("id = ?", transferID).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("sqlite: update transfer %s: %w", transferID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", transfer.ErrNotFound, transferID)
	}
	return nil
}

func convertNotFound(err error, transferID string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", transfer.ErrNotFound, transferID)
	}
	return err
}
