package server

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/nexfin/pesitd/internal/logger"
	"github.com/nexfin/pesitd/pkg/pesit"
)

// Session runs the per-connection FSM (C6): it owns the framed transport
// and the SessionContext, and processes exactly one FPDU at a time to
// completion before reading the next (spec §5 "no pipelining").
type Session struct {
	adapter *Adapter
	conn    connIO
	ctx     *SessionContext
}

// connIO is the subset of *transport.Conn a Session needs, so tests can
// substitute a scripted fake (fakeConn in testing_test.go) for a real
// transport.Conn.
type connIO interface {
	RemoteAddr() net.Addr
	Close() error
	DetectEBCDIC() error
	SendRawACK0() error
	ReadFPDU() (pesit.FPDU, error)
	WriteFPDU(pesit.FPDU) error
	SetEBCDIC(bool)
	IsEBCDIC() bool
	SetReadTimeout(time.Duration)
}

func (s *Session) logCtx() []any {
	return []any{logger.KeySessionID, s.ctx.SessionID, logger.KeyRemoteAddr, s.ctx.RemoteAddr, logger.KeyState, s.ctx.State.String()}
}

// serve drives the session to completion: EBCDIC detection, then a strict
// read-dispatch-respond loop until the connection ends.
func (s *Session) serve() {
	defer s.conn.Close()
	defer func() {
		if s.ctx.Transfer != nil {
			s.failActiveTransfer("session ended")
			s.ctx.Transfer.Close()
		}
	}()

	if err := s.conn.DetectEBCDIC(); err != nil {
		logger.Debug("EBCDIC prologue detection failed, assuming ASCII", logger.KeyError, err)
	} else if s.conn.IsEBCDIC() {
		s.ctx.EBCDIC = true
		if err := s.conn.SendRawACK0(); err != nil {
			logger.Warn("failed to send EBCDIC ACK0", logger.KeyError, err)
			return
		}
		logger.Debug("EBCDIC session detected", s.logCtx()...)
	}

	for {
		if s.ctx.Cancelled() {
			s.sendAbort(pesit.D3_311)
			return
		}

		f, err := s.conn.ReadFPDU()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("session read ended", append(s.logCtx(), logger.KeyError, err)...)
			}
			return
		}

		if f.Type == pesit.ABORT {
			s.handlePeerAbort(f)
			continue
		}

		if err := s.dispatch(f); err != nil {
			diag := pesit.AsDiag(err)
			logger.Warn("aborting session", append(s.logCtx(), logger.KeyType, f.Type.String(), logger.KeyDiag, diag.String(), logger.KeyError, err)...)
			s.failActiveTransfer(diag.String())
			s.sendAbort(diag)
			if s.adapter.Metrics != nil {
				s.adapter.Metrics.RecordAbort(diag.Class, diag.Code)
			}
			s.ctx.State = pesit.ERROR
			return
		}
	}
}

// dispatch looks up the handler registered for (state, type) and runs it.
// An FPDU type not admitted by the current state is the universal
// unsupported-transition law: ABORT D3-311 (spec §4.6, §8 property 2).
func (s *Session) dispatch(f pesit.FPDU) error {
	handlers, ok := fsmTable[s.ctx.State]
	if !ok {
		return pesit.NewError(pesit.D3_311, "no transitions defined for state "+s.ctx.State.String())
	}
	h, ok := handlers[f.Type]
	if !ok {
		return pesit.NewError(pesit.D3_311, "unsupported FPDU "+f.Type.String()+" in state "+s.ctx.State.String())
	}
	return h(s, f)
}

// handlePeerAbort implements the universal law "ABORT from the peer is
// admitted in every state and yields (CN01_REPOS, ∅, cancel-any-transfer)".
func (s *Session) handlePeerAbort(f pesit.FPDU) {
	diag := pesit.Diag{}
	if p, ok := f.Params.Get(pesit.PI_02); ok {
		if d, err := pesit.DiagFromBytes(p.Value); err == nil {
			diag = d
		}
	}
	logger.Info("peer ABORT", append(s.logCtx(), logger.KeyDiag, diag.String())...)
	s.failActiveTransfer("peer ABORT " + diag.String())
	if s.ctx.Transfer != nil {
		s.ctx.Transfer.Close()
		s.ctx.Transfer = nil
	}
	s.ctx.State = pesit.CN01_REPOS
}

func (s *Session) failActiveTransfer(reason string) {
	if s.ctx.Transfer == nil || s.ctx.Transfer.TrackerID == "" {
		return
	}
	ctx := context.Background()
	if err := s.adapter.Tracker.Interrupt(ctx, s.ctx.Transfer.TrackerID, reason); err != nil {
		// Tracker errors are logged and swallowed (spec §4.7): a degraded
		// durability backend must never abort an otherwise-live transfer.
		logger.Warn("tracker interrupt failed", logger.KeyTransferID, s.ctx.Transfer.TrackerID, logger.KeyError, err)
	}
}

func (s *Session) sendAbort(d pesit.Diag) {
	f := pesit.NewResponse(pesit.ABORT, s.ctx.PeerConnID, s.ctx.ServerConnID)
	f.Params.Add(pesit.PI_02, d.Bytes())
	if err := s.conn.WriteFPDU(f); err != nil {
		logger.Debug("failed to send ABORT", logger.KeyError, err)
	}
}

// reply builds a bare response addressed back to the peer, echoing
// id_dst/id_src per the spec §3 invariant, and writes it.
func (s *Session) reply(t pesit.FpduType, build func(*pesit.FPDU)) error {
	f := pesit.NewResponse(t, s.ctx.PeerConnID, s.ctx.ServerConnID)
	if build != nil {
		build(&f)
	}
	return s.conn.WriteFPDU(f)
}

// readTimeoutForSize extends the base read timeout proportionally to an
// expected transfer size (spec §5: "base + ceil(size / 50MB) x 60s, capped
// at 30 minutes"). Exposed for the data-transfer engine to apply around
// long-running WRITE/READ phases.
func readTimeoutForSize(base time.Duration, size int64) time.Duration {
	const (
		chunk = 50 * 1024 * 1024
		per   = 60 * time.Second
		cap_  = 30 * time.Minute
	)
	if size <= 0 {
		return base
	}
	extra := time.Duration((size+chunk-1)/chunk) * per
	t := base + extra
	if t > cap_ {
		return cap_
	}
	return t
}
