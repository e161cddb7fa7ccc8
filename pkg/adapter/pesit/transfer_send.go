package server

import (
	"context"
	"io"
	"time"

	"github.com/nexfin/pesitd/internal/logger"
	"github.com/nexfin/pesitd/pkg/pesit"
)

// dtfHeaderOverhead approximates the bytes consumed by frame/DTF headers
// outside the article payload itself, used by articlesPerEntity planning
// (spec §4.5.2).
const dtfHeaderOverhead = 6

// handleRead implements the send side of the data-transfer engine
// (spec §4.5.2 / §4.5.3): seek to any requested restart checkpoint, ack,
// then stream the source file as a sequence of entities, emitting
// sync-points and waiting for their ACKs along the way, finishing with
// DTF_END and a wait for the peer's TRANS_END. The whole exchange runs
// inside this one handler because the protocol is fully request/response
// serialized (spec §5: "no pipelining").
func (s *Session) handleRead(f pesit.FPDU) error {
	t := s.ctx.Transfer
	if t == nil || t.Reader == nil {
		return pesit.NewError(pesit.D3_311, "READ with no open input stream")
	}

	restartPoint, _ := getUint32(f.Params, pesit.PI_18)
	if restartPoint > 0 {
		if int64(restartPoint) > t.SourceSize {
			return pesit.NewError(pesit.D2_226, "restart point exceeds file size")
		}
		_ = t.Reader.Close()
		r, err := s.adapter.Store.Reader(context.Background(), t.Physical, int64(restartPoint))
		if err != nil {
			return mapStoreError(err)
		}
		t.Reader = r
		t.BytesTransferred = int64(restartPoint)
	}

	if err := s.reply(pesit.ACK_READ, nil); err != nil {
		return err
	}
	s.ctx.State = pesit.TDL02B_SENDING_DATA

	if err := s.streamEntities(t); err != nil {
		return err
	}

	if err := s.reply(pesit.DTF_END, nil); err != nil {
		return err
	}
	s.ctx.State = pesit.TDL07_READ_END

	return s.awaitTransEnd(t)
}

// articlesPerEntity implements spec §4.5.2's entity-planning formula.
func articlesPerEntity(maxEntity, recordLength int) int {
	if recordLength <= 0 {
		recordLength = 1
	}
	n := (maxEntity - dtfHeaderOverhead) / (2 + recordLength)
	if n < 1 {
		n = 1
	}
	return n
}

// streamEntities reads the source in record-length articles, groups them
// into entities bounded by articlesPerEntity, and emits a SYN (awaiting its
// ACK) whenever the next entity would push bytes-since-last-sync past the
// negotiated interval.
func (s *Session) streamEntities(t *TransferContext) error {
	recordLength := t.RecordLength
	if recordLength <= 0 {
		recordLength = t.MaxEntity - dtfHeaderOverhead
	}
	perEntity := articlesPerEntity(t.MaxEntity, recordLength)
	intervalBytes := int64(s.ctx.SyncIntervalKB) * 1024

	buf := make([]byte, recordLength)
	var pending [][]byte
	pendingLen := 0

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		var entityBytes int64
		for _, a := range pending {
			entityBytes += int64(len(a))
		}
		if s.ctx.SyncEnabled && intervalBytes > 0 && t.BytesSinceLastSync > 0 && t.BytesSinceLastSync+entityBytes > intervalBytes {
			if err := s.emitSyncAndAwaitAck(t); err != nil {
				return err
			}
		}
		if err := s.sendEntity(pending); err != nil {
			return err
		}
		for _, a := range pending {
			t.BytesTransferred += int64(len(a))
			t.BytesSinceLastSync += int64(len(a))
			t.RecordsTransferred++
		}
		pending = pending[:0]
		pendingLen = 0
		return nil
	}

	for {
		if s.ctx.Cancelled() {
			return pesit.NewError(pesit.D3_311, "session cancelled during READ")
		}
		n, err := t.Reader.Read(buf)
		if n > 0 {
			article := append([]byte(nil), buf[:n]...)
			pending = append(pending, article)
			pendingLen++
			if pendingLen >= perEntity {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if err == io.EOF {
			return flush()
		}
		if err != nil {
			return mapStoreError(err)
		}
	}
}

// sendEntity emits one DTF (single-article, id_src=1) or a multi-article
// DTF (id_src=article_count) per spec §4.5.2.
func (s *Session) sendEntity(articles [][]byte) error {
	if len(articles) == 1 {
		f := pesit.NewResponse(pesit.DTF, s.ctx.PeerConnID, s.ctx.ServerConnID)
		f.IDSrc = 1
		f.Payload = articles[0]
		return s.conn.WriteFPDU(f)
	}
	payload, err := pesit.EncodeArticles(articles)
	if err != nil {
		return err
	}
	f := pesit.NewResponse(pesit.DTF, s.ctx.PeerConnID, byte(len(articles)))
	f.Payload = payload
	return s.conn.WriteFPDU(f)
}

// emitSyncAndAwaitAck sends SYN and blocks for the peer's matching ACK_SYN,
// enforcing "at most one outstanding SYN" (spec §4.5.2). A timeout or a
// mismatched/unexpected reply is a protocol error.
func (s *Session) emitSyncAndAwaitAck(t *TransferContext) error {
	next := t.SyncPointNumber + 1
	syn := pesit.NewResponse(pesit.SYN, s.ctx.PeerConnID, s.ctx.ServerConnID)
	syn.Params.AddUint32(pesit.PI_20, next)
	if err := s.conn.WriteFPDU(syn); err != nil {
		return err
	}

	reply, err := s.conn.ReadFPDU()
	if err != nil {
		return pesit.NewError(pesit.D3_311, "timed out awaiting ACK_SYN: "+err.Error())
	}
	if reply.Type != pesit.ACK_SYN {
		return pesit.NewError(pesit.D3_311, "expected ACK_SYN, got "+reply.Type.String())
	}
	acked, _ := getUint32(reply.Params, pesit.PI_20)
	if acked != next {
		return pesit.NewError(pesit.D3_311, "ACK_SYN number mismatch")
	}

	t.SyncPointNumber = next
	t.CommittedOffset = t.BytesTransferred
	t.BytesSinceLastSync = 0

	if err := s.adapter.Tracker.RecordSync(context.Background(), t.TrackerID, next, t.CommittedOffset); err != nil {
		logger.Warn("tracker record_sync failed", logger.KeyError, err)
	}
	if s.adapter.Metrics != nil {
		s.adapter.Metrics.RecordSyncPoint(string(t.Direction))
	}
	return nil
}

// awaitTransEnd blocks for the peer's TRANS_END following our DTF_END,
// acks it, and returns to OF02_TRANSFER_READY (spec §4.5.2).
func (s *Session) awaitTransEnd(t *TransferContext) error {
	f, err := s.conn.ReadFPDU()
	if err != nil {
		return pesit.NewError(pesit.D3_311, "timed out awaiting TRANS_END: "+err.Error())
	}
	if f.Type == pesit.ABORT {
		s.conn.SetReadTimeout(time.Duration(s.adapter.Config.ReadTimeoutMS) * time.Millisecond)
		s.handlePeerAbort(f)
		return nil
	}
	if f.Type != pesit.TRANS_END {
		return pesit.NewError(pesit.D3_311, "expected TRANS_END, got "+f.Type.String())
	}

	if t.Reader != nil {
		_ = t.Reader.Close()
		t.Reader = nil
	}
	s.conn.SetReadTimeout(time.Duration(s.adapter.Config.ReadTimeoutMS) * time.Millisecond)
	if err := s.adapter.Tracker.Complete(context.Background(), t.TrackerID, ""); err != nil {
		logger.Warn("tracker complete failed", logger.KeyError, err)
	}
	if s.adapter.Metrics != nil {
		s.adapter.Metrics.RecordTransferCompleted(string(t.Direction), t.BytesTransferred)
	}

	if err := s.reply(pesit.ACK_TRANS_END, nil); err != nil {
		return err
	}
	s.ctx.State = pesit.OF02_TRANSFER_READY
	return nil
}
