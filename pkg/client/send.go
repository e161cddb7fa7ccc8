package client

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/nexfin/pesitd/internal/logger"
	"github.com/nexfin/pesitd/pkg/pesit"
)

// dtfHeaderOverhead mirrors pkg/adapter/pesit's entity-planning constant
// (spec §4.5.2).
const dtfHeaderOverhead = 6

// SendRequest describes one outbound (client-as-source) file transfer.
type SendRequest struct {
	Virtual      string // PI_12, the remote virtual filename
	LocalPath    string
	TransferID   string // PI_13
	RecordFormat byte   // PI_31
	RecordLength int    // PI_32
}

// sendState tracks the mutable bookkeeping of one streaming pass, mirroring
// pkg/adapter/pesit.TransferContext's send-relevant fields.
type sendState struct {
	maxEntity          int
	recordLength       int
	bytesTransferred   int64
	recordsTransferred int64
	syncPointNumber    uint32
	bytesSinceLastSync int64
}

// Send drives a full send-direction session: CONNECT, CREATE (with PI_25
// downward renegotiation on rejection), OPEN, WRITE, streamed DTFs, and the
// termination handshake (spec §4.5.3).
func (c *Client) Send(ctx context.Context, req SendRequest) error {
	if err := c.connect(); err != nil {
		return err
	}

	f, err := os.Open(req.LocalPath)
	if err != nil {
		return fmt.Errorf("client: open %s: %w", req.LocalPath, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("client: stat %s: %w", req.LocalPath, err)
	}

	maxEntity, err := c.createWithRenegotiation(req, fi.Size())
	if err != nil {
		return err
	}

	if err := c.openForWrite(fi.Size()); err != nil {
		return err
	}

	if err := c.writeAck(); err != nil {
		return err
	}

	st := &sendState{maxEntity: maxEntity, recordLength: req.RecordLength}
	if err := c.streamEntities(f, st); err != nil {
		return err
	}

	if err := c.conn.WriteFPDU(c.req(pesit.DTF_END)); err != nil {
		return err
	}

	if err := c.awaitTransEnd(); err != nil {
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

// createWithRenegotiation sends CREATE and, on a rejection diagnostic,
// halves PI_25 and retries down to record_length + header_overhead (spec
// §4.5.3: "on diagnostic != 0, halve PI_25 and retry, minimum
// record_length + header_overhead").
func (c *Client) createWithRenegotiation(req SendRequest, size int64) (int, error) {
	floor := req.RecordLength + dtfHeaderOverhead
	entity := int(c.cfg.MaxEntitySize)
	if entity < floor {
		entity = floor
	}

	for {
		ack, err := c.sendCreate(req, size, entity)
		if err == nil {
			if negotiated, ok := getUint32(ack.Params, pesit.PI_25); ok && negotiated > 0 {
				return int(negotiated), nil
			}
			return entity, nil
		}

		pe, ok := err.(*pesit.Error)
		if !ok || pe.Code == pesit.D0_000 {
			return 0, err
		}
		if entity <= floor {
			return 0, fmt.Errorf("client: CREATE rejected at minimum entity size %d: %w", floor, err)
		}
		entity /= 2
		if entity < floor {
			entity = floor
		}
		logger.Debug("renegotiating entity size after CREATE rejection", logger.KeyDiag, pe.Code.String(), "entity", entity)
	}
}

func (c *Client) sendCreate(req SendRequest, size int64, entity int) (pesit.FPDU, error) {
	f := c.req(pesit.CREATE)
	f.Params.AddGroup(pesit.Group{ID: pesit.PGI_09, Params: []pesit.Parameter{{ID: pesit.PI_12, Value: []byte(req.Virtual)}}})
	if req.TransferID != "" {
		f.Params.AddString(pesit.PI_13, req.TransferID, c.cfg.EBCDIC)
	}
	f.Params.AddUint32(pesit.PI_25, uint32(entity))
	f.Params.AddGroup(pesit.Group{ID: pesit.PGI_30, Params: []pesit.Parameter{
		{ID: pesit.PI_31, Value: []byte{req.RecordFormat}},
		{ID: pesit.PI_32, Value: uint16Bytes(uint16(req.RecordLength))},
	}})
	if size >= 0 {
		f.Params.AddUint32(pesit.PI_42, uint32((size+1023)/1024))
	}

	if err := c.conn.WriteFPDU(f); err != nil {
		return pesit.FPDU{}, err
	}
	resp, err := c.conn.ReadFPDU()
	if err != nil {
		return pesit.FPDU{}, err
	}
	switch resp.Type {
	case pesit.ACK_CREATE:
		if d, ok := resp.Params.Get(pesit.PI_02); ok {
			diag, derr := pesit.DiagFromBytes(d.Value)
			if derr == nil && diag != pesit.D0_000 {
				return resp, pesit.NewError(diag, "CREATE rejected")
			}
		}
		return resp, nil
	case pesit.ABORT:
		return pesit.FPDU{}, diagError(resp)
	default:
		return pesit.FPDU{}, pesit.NewError(pesit.D3_311, "unexpected reply to CREATE: "+resp.Type.String())
	}
}

func (c *Client) openForWrite(size int64) error {
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
	c.conn.SetReadTimeout(readTimeoutForSize(c.baseReadTimeout(), size))
	return nil
}

func (c *Client) writeAck() error {
	if err := c.conn.WriteFPDU(c.req(pesit.WRITE)); err != nil {
		return err
	}
	resp, err := c.conn.ReadFPDU()
	if err != nil {
		return err
	}
	if resp.Type != pesit.ACK_WRITE {
		return pesit.NewError(pesit.D3_311, "expected ACK_WRITE, got "+resp.Type.String())
	}
	return nil
}

// articlesPerEntity mirrors pkg/adapter/pesit's entity-planning formula
// (spec §4.5.2).
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

// streamEntities reads src in record-length articles, groups them into
// entities, and emits SYN/awaits ACK_SYN at the negotiated interval,
// mirroring pkg/adapter/pesit's server-source implementation of §4.5.2.
func (c *Client) streamEntities(src io.Reader, st *sendState) error {
	recordLength := st.recordLength
	if recordLength <= 0 {
		recordLength = st.maxEntity - dtfHeaderOverhead
	}
	perEntity := articlesPerEntity(st.maxEntity, recordLength)
	intervalBytes := int64(c.syncIntervalKB) * 1024

	buf := make([]byte, recordLength)
	var pending [][]byte

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		var entityBytes int64
		for _, a := range pending {
			entityBytes += int64(len(a))
		}
		if c.syncEnabled && intervalBytes > 0 && st.bytesSinceLastSync > 0 && st.bytesSinceLastSync+entityBytes > intervalBytes {
			if err := c.emitSyncAndAwaitAck(st); err != nil {
				return err
			}
		}
		if err := c.sendEntity(pending); err != nil {
			return err
		}
		for _, a := range pending {
			st.bytesTransferred += int64(len(a))
			st.bytesSinceLastSync += int64(len(a))
			st.recordsTransferred++
		}
		pending = pending[:0]
		return nil
	}

	for {
		n, err := src.Read(buf)
		if n > 0 {
			article := append([]byte(nil), buf[:n]...)
			pending = append(pending, article)
			if len(pending) >= perEntity {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if err == io.EOF {
			return flush()
		}
		if err != nil {
			return fmt.Errorf("client: read source: %w", err)
		}
	}
}

// sendEntity emits one DTF (single-article, id_src=1) or a multi-article DTF
// (id_src=article_count) per spec §4.5.2, mirroring pkg/adapter/pesit's
// server-source implementation.
func (c *Client) sendEntity(articles [][]byte) error {
	if len(articles) == 1 {
		f := pesit.NewResponse(pesit.DTF, c.peerConnID, 1)
		f.Payload = articles[0]
		return c.conn.WriteFPDU(f)
	}
	payload, err := pesit.EncodeArticles(articles)
	if err != nil {
		return err
	}
	f := pesit.NewResponse(pesit.DTF, c.peerConnID, byte(len(articles)))
	f.Payload = payload
	return c.conn.WriteFPDU(f)
}

func (c *Client) emitSyncAndAwaitAck(st *sendState) error {
	next := st.syncPointNumber + 1
	syn := c.req(pesit.SYN)
	syn.Params.AddUint32(pesit.PI_20, next)
	if err := c.conn.WriteFPDU(syn); err != nil {
		return err
	}

	reply, err := c.conn.ReadFPDU()
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

	st.syncPointNumber = next
	st.bytesSinceLastSync = 0
	return nil
}

// awaitTransEnd waits for the sink's TRANS_END following our DTF_END and
// replies ACK_TRANS_END, completing the data phase (spec §4.5.2/§4.5.3).
func (c *Client) awaitTransEnd() error {
	f, err := c.conn.ReadFPDU()
	if err != nil {
		return pesit.NewError(pesit.D3_311, "timed out awaiting TRANS_END: "+err.Error())
	}
	if f.Type == pesit.ABORT {
		c.restoreBaseTimeout()
		return diagError(f)
	}
	if f.Type != pesit.TRANS_END {
		return pesit.NewError(pesit.D3_311, "expected TRANS_END, got "+f.Type.String())
	}
	c.restoreBaseTimeout()
	return c.conn.WriteFPDU(c.req(pesit.ACK_TRANS_END))
}

func (c *Client) closeFile() error {
	if err := c.conn.WriteFPDU(c.req(pesit.CLOSE)); err != nil {
		return err
	}
	resp, err := c.conn.ReadFPDU()
	if err != nil {
		return err
	}
	if resp.Type != pesit.ACK_CLOSE {
		return pesit.NewError(pesit.D3_311, "expected ACK_CLOSE, got "+resp.Type.String())
	}
	return nil
}

func (c *Client) deselect() error {
	if err := c.conn.WriteFPDU(c.req(pesit.DESELECT)); err != nil {
		return err
	}
	resp, err := c.conn.ReadFPDU()
	if err != nil {
		return err
	}
	if resp.Type != pesit.ACK_DESELECT {
		return pesit.NewError(pesit.D3_311, "expected ACK_DESELECT, got "+resp.Type.String())
	}
	return nil
}

func uint16Bytes(v uint16) []byte {
	return []byte{byte(v >> 8), byte(v)}
}
