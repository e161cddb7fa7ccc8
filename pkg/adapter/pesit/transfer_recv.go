package server

import (
	"context"
	"time"

	"github.com/nexfin/pesitd/internal/logger"
	"github.com/nexfin/pesitd/pkg/pesit"
)

// handleWrite acknowledges the peer's intent to stream DTF entities; the
// output stream itself was already opened at OPEN (spec §4.4, §4.5.1).
func (s *Session) handleWrite(f pesit.FPDU) error {
	if s.ctx.Transfer == nil || s.ctx.Transfer.Writer == nil {
		return pesit.NewError(pesit.D3_311, "WRITE with no open output stream")
	}
	if err := s.reply(pesit.ACK_WRITE, nil); err != nil {
		return err
	}
	s.ctx.State = pesit.TDE02B_RECEIVING_DATA
	return nil
}

// handleDTF implements the receive side of the data-transfer engine
// (spec §4.5.1): validate article sizes, append article bytes to the
// output stream, and track bytes since the last sync-point.
func (s *Session) handleDTF(f pesit.FPDU) error {
	t := s.ctx.Transfer
	if t == nil || t.Writer == nil {
		return pesit.NewError(pesit.D3_311, "DTF with no open output stream")
	}

	articles, err := articlesOf(f, t.RecordLength)
	if err != nil {
		return pesit.NewError(pesit.D2_220, err.Error())
	}

	if len(f.Payload) > t.MaxEntity && t.MaxEntity > 0 {
		return pesit.NewError(pesit.D2_226, "entity exceeds negotiated maximum")
	}

	for _, a := range articles {
		if _, err := t.Writer.Write(a); err != nil {
			return mapStoreError(err)
		}
		t.BytesTransferred += int64(len(a))
		t.BytesSinceLastSync += int64(len(a))
		t.RecordsTransferred++
	}

	if s.ctx.SyncEnabled && t.SyncPointNumber > 0 {
		intervalBytes := int64(s.ctx.SyncIntervalKB) * 1024
		if intervalBytes > 0 && t.BytesSinceLastSync > intervalBytes {
			logger.Debug("bytes since last sync exceed negotiated interval; sender controls SYN placement", append(s.logCtx(), logger.KeyBytes, t.BytesSinceLastSync)...)
		}
	}

	if err := s.adapter.Tracker.Progress(context.Background(), t.TrackerID, t.BytesTransferred); err != nil {
		logger.Warn("tracker progress failed", logger.KeyError, err)
	}
	return nil
}

// articlesOf extracts the article payloads carried by a DTF-family FPDU,
// validating each against the negotiated record length (article length
// ceiling) per spec §3's multi-article invariant.
func articlesOf(f pesit.FPDU, recordLength int) ([][]byte, error) {
	if f.Type != pesit.DTF {
		// DTFDA/DTFMA/DTFFA carry exactly one raw, unprefixed article
		// fragment (spec §3).
		if recordLength > 0 && len(f.Payload) > recordLength {
			return nil, errArticleTooLong
		}
		return [][]byte{f.Payload}, nil
	}
	if f.IDSrc <= 1 {
		if recordLength > 0 && len(f.Payload) > recordLength {
			return nil, errArticleTooLong
		}
		return [][]byte{f.Payload}, nil
	}
	articles, err := pesit.ExtractArticles(f.Payload, int(f.IDSrc))
	if err != nil {
		return nil, err
	}
	if recordLength > 0 {
		for _, a := range articles {
			if len(a) > recordLength {
				return nil, errArticleTooLong
			}
		}
	}
	return articles, nil
}

var errArticleTooLong = articleLengthError{}

type articleLengthError struct{}

func (articleLengthError) Error() string { return "pesit: article length exceeds negotiated record length" }

// handleSyn commits the pending bytes as a durable checkpoint and replies
// ACK_SYN echoing the sync-point number (spec §4.5.1). Only an acknowledged
// SYN is a valid resume point.
func (s *Session) handleSyn(f pesit.FPDU) error {
	t := s.ctx.Transfer
	if t == nil {
		return pesit.NewError(pesit.D3_311, "SYN with no active transfer")
	}
	syncNum, ok := getUint32(f.Params, pesit.PI_20)
	if !ok {
		return pesit.NewError(pesit.D2_222, "SYN missing PI_20")
	}
	if syncNum <= t.SyncPointNumber && t.SyncPointNumber != 0 {
		return pesit.NewError(pesit.D3_311, "sync-point numbers must be strictly increasing")
	}

	t.SyncPointNumber = syncNum
	t.CommittedOffset = t.BytesTransferred
	t.BytesSinceLastSync = 0

	if err := s.adapter.Tracker.RecordSync(context.Background(), t.TrackerID, syncNum, t.CommittedOffset); err != nil {
		logger.Warn("tracker record_sync failed", logger.KeyError, err)
	}
	if s.adapter.Metrics != nil {
		s.adapter.Metrics.RecordSyncPoint(string(t.Direction))
	}

	return s.reply(pesit.ACK_SYN, func(r *pesit.FPDU) {
		r.Params.AddUint32(pesit.PI_20, syncNum)
	})
}

// handleDTFEnd closes the incoming segment; no response is sent (spec
// §4.5.1).
func (s *Session) handleDTFEnd(f pesit.FPDU) error {
	s.ctx.State = pesit.TDE07_WRITE_END
	return nil
}

// handleTransEnd completes a successful receive: ack with byte/record
// counts and record COMPLETED via the tracker (spec §4.5.1).
func (s *Session) handleTransEnd(f pesit.FPDU) error {
	t := s.ctx.Transfer
	if t == nil {
		return pesit.NewError(pesit.D3_311, "TRANS_END with no active transfer")
	}
	if t.Writer != nil {
		if err := t.Writer.Close(); err != nil {
			return mapStoreError(err)
		}
		t.Writer = nil
	}
	s.conn.SetReadTimeout(time.Duration(s.adapter.Config.ReadTimeoutMS) * time.Millisecond)

	if err := s.adapter.Tracker.Complete(context.Background(), t.TrackerID, ""); err != nil {
		logger.Warn("tracker complete failed", logger.KeyError, err)
	}
	if s.adapter.Metrics != nil {
		s.adapter.Metrics.RecordTransferCompleted(string(t.Direction), t.BytesTransferred)
	}

	if err := s.reply(pesit.ACK_TRANS_END, func(r *pesit.FPDU) {
		r.Params.AddUint32(pesit.PI_42, uint32(t.BytesTransferred))
		r.Params.AddUint32(pesit.PI_20, uint32(t.RecordsTransferred))
	}); err != nil {
		return err
	}
	s.ctx.State = pesit.OF02_TRANSFER_READY
	return nil
}

// handleReceivingIDT implements an interruption requested mid-receive
// (spec §4.5.1): flush, ack, and either set the restart flag and mark the
// transfer INTERRUPTED (PI_19 == 4, resync) or mark it FAILED.
func (s *Session) handleReceivingIDT(f pesit.FPDU) error {
	return s.handleIDT(f)
}

// handleIdleIDT handles IDT arriving while OF02_TRANSFER_READY (between
// WRITE/READ phases), which the transfer-ready state also admits per
// spec §4.5.1.
func (s *Session) handleIdleIDT(f pesit.FPDU) error {
	return s.handleIDT(f)
}

func (s *Session) handleIDT(f pesit.FPDU) error {
	t := s.ctx.Transfer
	reason, _ := getUint8(f.Params, pesit.PI_19)

	if t != nil && t.Writer != nil {
		if err := t.Writer.Close(); err != nil {
			return mapStoreError(err)
		}
		t.Writer = nil
	}
	s.conn.SetReadTimeout(time.Duration(s.adapter.Config.ReadTimeoutMS) * time.Millisecond)

	if err := s.reply(pesit.ACK_IDT, nil); err != nil {
		return err
	}

	if t != nil {
		ctx := context.Background()
		if reason == 4 {
			t.RestartFlag = true
			if err := s.adapter.Tracker.Interrupt(ctx, t.TrackerID, "resync requested (PI_19=4)"); err != nil {
				logger.Warn("tracker interrupt failed", logger.KeyError, err)
			}
		} else {
			if err := s.adapter.Tracker.Fail(ctx, t.TrackerID, pesit.D3_311.String(), "interrupted, no resync"); err != nil {
				logger.Warn("tracker fail failed", logger.KeyError, err)
			}
		}
		if s.adapter.Metrics != nil {
			s.adapter.Metrics.RecordTransferInterrupted(string(t.Direction))
		}
	}

	s.ctx.State = pesit.OF02_TRANSFER_READY
	return nil
}
