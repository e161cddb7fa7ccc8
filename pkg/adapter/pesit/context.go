// Package server implements the PeSIT Hors-SIT server-side protocol engine:
// the TCP accept loop (C9), connection negotiation (C3), file selection and
// lifecycle (C4), the data-transfer engine (C5), the FSM dispatch that
// drives all of it from incoming FPDUs (C6), the message sub-protocol
// (C10), and diagnostic mapping (C11).
//
// The package is named server, not pesit, to avoid a stutter with the
// wire-codec package it builds on (pkg/pesit).
package server

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/nexfin/pesitd/pkg/pesit"
	"github.com/nexfin/pesitd/pkg/registry"
	"github.com/nexfin/pesitd/pkg/transfer"
)

// SessionContext holds everything the FSM needs for one live connection
// (spec §3 "SessionContext"). It is created on accept and discarded on
// disconnect; exactly one session task owns it, so it carries no locking of
// its own beyond the fields the adapter touches for cancellation.
type SessionContext struct {
	SessionID  string
	RemoteAddr string

	ServerID        string
	PartnerID       string
	ServerConnID    byte
	PeerConnID      byte
	ProtocolVersion int

	Access registry.AccessType

	SyncEnabled      bool
	SyncIntervalKB   uint32
	SyncWindow       byte
	ResyncEnabled    bool
	CRCEnabled       bool
	MaxEntitySize    uint32

	EBCDIC bool

	State ServerState

	Transfer *TransferContext

	// MsgBuffer accumulates MSGDM/MSGMM/MSGFM segments across frames
	// (spec §4.8).
	MsgBuffer []byte

	cancelled atomic.Bool
}

// ServerState is an alias of pesit.ServerState kept local so this package's
// doc comments and dispatch tables read naturally; the wire/state space
// itself is owned by pkg/pesit.
type ServerState = pesit.ServerState

// Cancel marks the session for cooperative cancellation; checked between
// frame reads and between entity emissions in a long READ (spec §5).
func (s *SessionContext) Cancel() { s.cancelled.Store(true) }

// Cancelled reports whether Cancel has been called.
func (s *SessionContext) Cancelled() bool { return s.cancelled.Load() }

// TransferContext holds the state of one file transfer within a session
// (spec §3 "TransferContext"). It exists iff SessionContext.State is one of
// the states pesit.ServerState.HasTransferContext reports true for.
type TransferContext struct {
	TrackerID  string // durable id from pkg/transfer
	PeerID     string // peer-supplied PI_13 transfer id, echoed back
	Virtual    string // PI_12 virtual filename
	Physical   string // resolved physical path
	Direction  transfer.Direction

	RecordFormat byte // PI_31
	RecordLength int  // PI_32, also the article length ceiling
	MaxEntity    int  // negotiated PI_25 for this transfer

	FileSizeReservationKB int64

	BytesTransferred   int64
	RecordsTransferred int64

	SyncPointNumber    uint32
	BytesSinceLastSync int64
	CommittedOffset    int64

	RestartPoint uint32
	RestartFlag  bool
	Compression  bool

	Writer io.WriteCloser
	Reader io.ReadCloser
	SourceSize int64

	StartedAt time.Time
}

// Close releases whatever stream the transfer holds open, tolerating a nil
// stream so callers can call it unconditionally on every exit path (spec §9
// "scoped-acquisition semantics ensure it is closed on every exit path").
func (t *TransferContext) Close() {
	if t == nil {
		return
	}
	if t.Writer != nil {
		_ = t.Writer.Close()
		t.Writer = nil
	}
	if t.Reader != nil {
		_ = t.Reader.Close()
		t.Reader = nil
	}
}
