package metrics

// Recorder records server-side lifecycle events for sessions, transfers,
// sync-points and aborts. Implementations must treat a nil receiver as a
// no-op; the protocol path additionally skips the call when the Recorder
// interface value itself is nil.
type Recorder interface {
	RecordSessionAccepted()
	RecordSessionRejected(reason string)
	RecordSessionClosed()
	SetActiveSessions(count int)

	RecordTransferStarted(direction string)
	RecordTransferCompleted(direction string, bytes int64)
	RecordTransferFailed(direction string, diagClass byte)
	RecordTransferInterrupted(direction string)
	RecordTransferRetried(direction string)

	RecordSyncPoint(direction string)
	RecordAbort(diagClass byte, diagCode uint16)
}

var _ Recorder = (*PrometheusRecorder)(nil)
