// Package transfer implements the durable transfer tracker (C8): the
// record of every file transfer's start, progress, checkpoints, failure,
// and resume state, kept independent of any live session so a transfer can
// be resumed after the session or the process that ran it is gone.
package transfer

import "time"

// Direction is the data-flow direction of a transfer relative to this server.
type Direction string

const (
	DirectionReceive Direction = "receive" // peer sends, we write
	DirectionSend    Direction = "send"    // peer reads, we read and send
)

// Status is the lifecycle state of a TransferRecord.
type Status string

const (
	StatusInitiated    Status = "INITIATED"
	StatusInProgress   Status = "IN_PROGRESS"
	StatusPaused       Status = "PAUSED"
	StatusInterrupted  Status = "INTERRUPTED"
	StatusRetryPending Status = "RETRY_PENDING"
	StatusCompleted    Status = "COMPLETED"
	StatusFailed       Status = "FAILED"
	StatusCancelled    Status = "CANCELLED"
)

// Record is the durable record of one file transfer, owned exclusively by
// the tracker (spec §3 "TransferRecord").
type Record struct {
	ID       string
	ParentID string // set when this record is a retry of an earlier one

	SessionID  string
	ServerID   string
	NodeID     string
	PartnerID  string
	RemoteAddr string

	Filename  string
	LocalPath string
	Direction Direction
	Status    Status

	SizeBytes        int64 // 0 if unknown ahead of transfer
	BytesTransferred int64

	LastSyncNumber   uint32
	LastSyncOffset   int64
	BytesAtLastSync  int64
	RestartRequested bool

	ErrorCode    string
	ErrorMessage string
	RetryCount   int
	Checksum     string

	CreatedAt   time.Time
	StartedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time
}

// MaxRetries is the default retry budget per transfer chain (spec §4.7).
const MaxRetries = 3
