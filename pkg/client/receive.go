package client

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nexfin/pesitd/internal/logger"
	"github.com/nexfin/pesitd/pkg/pesit"
)

// ReceiveRequest describes one inbound (client-as-sink) file transfer.
type ReceiveRequest struct {
	Virtual      string // PI_12, the remote virtual filename
	LocalPath    string
	RecordLength int // used only to validate incoming article sizes, 0 disables the check
}

// recvState tracks the mutable bookkeeping of one receive pass, mirroring
// pkg/adapter/pesit.TransferContext's receive-relevant fields.
type recvState struct {
	bytesTransferred   int64
	recordsTransferred int64
	syncPointNumber    uint32
	bytesSinceLastSync int64
	committedOffset    int64
}

// resyncRequested is returned by receiveOnce when the peer sends IDT with
// PI_19 == 4 mid-transfer, signalling that the caller should truncate the
// local file to the committed checkpoint and retry (spec §4.5.3).
type resyncRequested struct {
	checkpoint int64
}

func (resyncRequested) Error() string { return "client: peer requested resync" }

// Receive drives a full receive-direction session, transparently handling
// the IDT-triggered restart loop: on a resync request it truncates the
// local file to the last committed sync-point, reconnects, and reissues
// the receive with PI_18 set to that checkpoint, up to cfg.RetryCount
// attempts (spec §4.5.3, §4.7 "retry chains... fails after retry_count >=
// max").
func Receive(ctx context.Context, cfg Config, req ReceiveRequest) error {
	var restartPoint uint32
	attempts := 0

	for {
		c, err := Dial(ctx, cfg)
		if err != nil {
			return err
		}

		err = c.receiveOnce(req, restartPoint)
		closeErr := c.Close()
		if err == nil {
			if closeErr != nil {
				logger.Warn("client: close after receive", logger.KeyError, closeErr)
			}
			return nil
		}

		var rr resyncRequested
		if !asResyncRequested(err, &rr) {
			return err
		}

		attempts++
		if attempts > cfg.RetryCount {
			return fmt.Errorf("client: receive %s: exceeded retry budget (%d): %w", req.Virtual, cfg.RetryCount, err)
		}
		restartPoint = uint32(rr.checkpoint)
		logger.Info("client: resync requested, retrying", "virtual", req.Virtual, "checkpoint", rr.checkpoint, "attempt", attempts)
		if cfg.RetryDelayMS > 0 {
			select {
			case <-time.After(time.Duration(cfg.RetryDelayMS) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := truncateTo(req.LocalPath, rr.checkpoint); err != nil {
			return err
		}
	}
}

func asResyncRequested(err error, target *resyncRequested) bool {
	rr, ok := err.(resyncRequested)
	if !ok {
		return false
	}
	*target = rr
	return true
}

func truncateTo(path string, offset int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("client: truncate %s: %w", path, err)
	}
	defer f.Close()
	if err := f.Truncate(offset); err != nil {
		return fmt.Errorf("client: truncate %s: %w", path, err)
	}
	return nil
}

// receiveOnce drives CONNECT -> SELECT -> OPEN -> READ -> consume DTFs ->
// TRANS_END -> CLOSE -> DESELECT -> RELEASE over a single connection. It
// returns resyncRequested if the peer interrupted the transfer mid-stream
// asking for a resync.
func (c *Client) receiveOnce(req ReceiveRequest, restartPoint uint32) error {
	if err := c.connect(); err != nil {
		return err
	}

	sourceSize, err := c.selectFile(req.Virtual, restartPoint)
	if err != nil {
		return err
	}

	dst, err := openDestination(req.LocalPath, restartPoint > 0)
	if err != nil {
		return err
	}
	defer dst.Close()

	if err := c.openForRead(sourceSize); err != nil {
		return err
	}
	if err := c.readAck(restartPoint); err != nil {
		return err
	}

	st := &recvState{bytesTransferred: int64(restartPoint)}
	if err := c.consumeDataPhase(dst, req.RecordLength, st); err != nil {
		return err
	}

	if err := c.sendTransEnd(st); err != nil {
		return err
	}
	if err := c.closeFile(); err != nil {
		return err
	}
	if err := c.deselect(); err != nil {
		return err
	}
	return c.release()
}

func openDestination(path string, appendMode bool) (*os.File, error) {
	flags := os.O_WRONLY | os.O_CREATE
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("client: open %s: %w", path, err)
	}
	return f, nil
}

func (c *Client) selectFile(virtual string, restartPoint uint32) (int64, error) {
	f := c.req(pesit.SELECT)
	f.Params.AddGroup(pesit.Group{ID: pesit.PGI_09, Params: []pesit.Parameter{{ID: pesit.PI_12, Value: []byte(virtual)}}})
	if restartPoint > 0 {
		f.Params.AddUint32(pesit.PI_18, restartPoint)
	}
	if err := c.conn.WriteFPDU(f); err != nil {
		return 0, err
	}
	resp, err := c.conn.ReadFPDU()
	if err != nil {
		return 0, err
	}
	switch resp.Type {
	case pesit.ACK_SELECT:
		var sizeKB uint32
		if g, ok := resp.Params.GetGroup(pesit.PGI_40); ok {
			sizeKB, _ = getUint32FromGroup(g, pesit.PI_42)
		}
		return int64(sizeKB) * 1024, nil
	case pesit.ABORT:
		return 0, diagError(resp)
	default:
		return 0, pesit.NewError(pesit.D3_311, "unexpected reply to SELECT: "+resp.Type.String())
	}
}

func getUint32FromGroup(g pesit.Group, id pesit.PI) (uint32, bool) {
	p, ok := g.Get(id)
	if !ok {
		return 0, false
	}
	v, err := p.Uint32()
	if err != nil {
		return 0, false
	}
	return v, true
}

func (c *Client) openForRead(sourceSize int64) error {
	if err := c.conn.WriteFPDU(c.req(pesit.OPEN)); err != nil {
		return err
	}
	resp, err := c.conn.ReadFPDU()
	if err != nil {
		return err
	}
	if resp.Type != pesit.ACK_OPEN {
		return pesit.NewError(pesit.D3_311, "expected ACK_OPEN, got "+resp.Type.String())
	}
	c.conn.SetReadTimeout(readTimeoutForSize(c.baseReadTimeout(), sourceSize))
	return nil
}

func (c *Client) readAck(restartPoint uint32) error {
	f := c.req(pesit.READ)
	if restartPoint > 0 {
		f.Params.AddUint32(pesit.PI_18, restartPoint)
	}
	if err := c.conn.WriteFPDU(f); err != nil {
		return err
	}
	resp, err := c.conn.ReadFPDU()
	if err != nil {
		return err
	}
	if resp.Type != pesit.ACK_READ {
		return pesit.NewError(pesit.D3_311, "expected ACK_READ, got "+resp.Type.String())
	}
	return nil
}

// consumeDataPhase reads DTF-family frames until DTF_END, appending article
// bytes to dst, acknowledging SYN checkpoints, and surfacing an IDT resync
// request to the caller (spec §4.5.1, consumed from the sink's side).
func (c *Client) consumeDataPhase(dst *os.File, recordLength int, st *recvState) error {
	for {
		f, err := c.conn.ReadFPDU()
		if err != nil {
			return pesit.NewError(pesit.D3_311, "timed out awaiting data: "+err.Error())
		}

		switch f.Type {
		case pesit.DTF, pesit.DTFDA, pesit.DTFMA, pesit.DTFFA:
			articles, err := articlesOf(f, recordLength)
			if err != nil {
				return pesit.NewError(pesit.D2_220, err.Error())
			}
			for _, a := range articles {
				if _, err := dst.Write(a); err != nil {
					return fmt.Errorf("client: write destination: %w", err)
				}
				st.bytesTransferred += int64(len(a))
				st.bytesSinceLastSync += int64(len(a))
				st.recordsTransferred++
			}

		case pesit.SYN:
			if err := c.ackSyn(f, st); err != nil {
				return err
			}

		case pesit.IDT:
			return c.handleInterrupt(f, st)

		case pesit.DTF_END:
			return nil

		case pesit.ABORT:
			return diagError(f)

		default:
			return pesit.NewError(pesit.D3_311, "unexpected FPDU during data phase: "+f.Type.String())
		}
	}
}

func articlesOf(f pesit.FPDU, recordLength int) ([][]byte, error) {
	if f.Type != pesit.DTF || f.IDSrc <= 1 {
		if recordLength > 0 && len(f.Payload) > recordLength {
			return nil, fmt.Errorf("article length exceeds negotiated record length")
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
				return nil, fmt.Errorf("article length exceeds negotiated record length")
			}
		}
	}
	return articles, nil
}

func (c *Client) ackSyn(f pesit.FPDU, st *recvState) error {
	syncNum, ok := getUint32(f.Params, pesit.PI_20)
	if !ok {
		return pesit.NewError(pesit.D2_222, "SYN missing PI_20")
	}
	if syncNum <= st.syncPointNumber && st.syncPointNumber != 0 {
		return pesit.NewError(pesit.D3_311, "sync-point numbers must be strictly increasing")
	}
	st.syncPointNumber = syncNum
	st.committedOffset = st.bytesTransferred
	st.bytesSinceLastSync = 0

	ack := c.req(pesit.ACK_SYN)
	ack.Params = synAckParams(syncNum)
	return c.conn.WriteFPDU(ack)
}

func synAckParams(syncNum uint32) pesit.ParamArea {
	var p pesit.ParamArea
	p.AddUint32(pesit.PI_20, syncNum)
	return p
}

// handleInterrupt acknowledges an IDT and, for a resync request (PI_19 ==
// 4), returns resyncRequested so Receive's retry loop can truncate and
// reconnect (spec §4.5.3).
func (c *Client) handleInterrupt(f pesit.FPDU, st *recvState) error {
	reason, _ := getUint8(f.Params, pesit.PI_19)
	if err := c.conn.WriteFPDU(c.req(pesit.ACK_IDT)); err != nil {
		return err
	}
	if reason == 4 {
		return resyncRequested{checkpoint: st.committedOffset}
	}
	return pesit.NewError(pesit.D3_311, "transfer interrupted, no resync")
}

// sendTransEnd sends TRANS_END carrying byte/record counts and awaits the
// source's ACK_TRANS_END (spec §4.5.1/§4.5.3: "on DTF_END send TRANS_END").
func (c *Client) sendTransEnd(st *recvState) error {
	f := c.req(pesit.TRANS_END)
	f.Params.AddUint32(pesit.PI_42, uint32(st.bytesTransferred))
	f.Params.AddUint32(pesit.PI_20, uint32(st.recordsTransferred))
	if err := c.conn.WriteFPDU(f); err != nil {
		return err
	}

	resp, err := c.conn.ReadFPDU()
	if err != nil {
		return pesit.NewError(pesit.D3_311, "timed out awaiting ACK_TRANS_END: "+err.Error())
	}
	c.restoreBaseTimeout()
	if resp.Type == pesit.ABORT {
		return diagError(resp)
	}
	if resp.Type != pesit.ACK_TRANS_END {
		return pesit.NewError(pesit.D3_311, "expected ACK_TRANS_END, got "+resp.Type.String())
	}
	return nil
}
