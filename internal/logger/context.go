package logger

import (
	"context"
	"time"
)

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds session-scoped logging fields, threaded through a
// session task's context.Context so every log line it emits carries
// enough information to correlate with a wire capture or transfer record.
type LogContext struct {
	SessionID  string // server-assigned session identifier
	RemoteAddr string // client remote address
	Partner    string // negotiated partner id (PI_03)
	State      string // current FSM state name
	TransferID string // PI_13, when a transfer is open
	StartTime  time.Time
}

// WithContext returns a new context carrying lc.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext, or nil if none is present.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a LogContext for a freshly accepted connection.
func NewLogContext(sessionID, remoteAddr string) *LogContext {
	return &LogContext{SessionID: sessionID, RemoteAddr: remoteAddr, StartTime: time.Now()}
}

// Clone copies the LogContext.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithState returns a copy with State set.
func (lc *LogContext) WithState(state string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.State = state
	}
	return clone
}

// WithPartner returns a copy with Partner set.
func (lc *LogContext) WithPartner(partner string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Partner = partner
	}
	return clone
}

// WithTransfer returns a copy with TransferID set.
func (lc *LogContext) WithTransfer(transferID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TransferID = transferID
	}
	return clone
}

// DurationMs returns the elapsed time since StartTime in milliseconds.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
