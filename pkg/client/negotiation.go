package client

import (
	"github.com/nexfin/pesitd/internal/logger"
	"github.com/nexfin/pesitd/pkg/pesit"
)

// connect sends CONNECT and parses the peer's ACONNECT/RCONNECT, recording
// the negotiated protocol version and sync-point parameters (spec §4.3,
// §4.5.3 "CONNECT -> parse ACONNECT").
func (c *Client) connect() error {
	req := c.req(pesit.CONNECT)
	req.Params.AddString(pesit.PI_03, c.cfg.RequesterID, c.cfg.EBCDIC)
	req.Params.AddString(pesit.PI_04, c.cfg.ServerID, c.cfg.EBCDIC)
	if c.cfg.Password != "" {
		req.Params.AddString(pesit.PI_05, c.cfg.Password, c.cfg.EBCDIC)
	}
	req.Params.AddUint8(pesit.PI_06, uint8(c.cfg.ProtocolVersion))
	req.Params.AddUint8(pesit.PI_22, c.cfg.AccessType)
	if c.cfg.SyncEnabled {
		req.Params.AddUint16(pesit.PI_07, uint16(c.cfg.SyncIntervalKB))
	}
	if c.cfg.ResyncEnabled {
		req.Params.AddUint8(pesit.PI_23, 1)
	}

	if err := c.conn.WriteFPDU(req); err != nil {
		return err
	}

	resp, err := c.conn.ReadFPDU()
	if err != nil {
		return err
	}
	c.peerConnID = resp.IDSrc

	switch resp.Type {
	case ACONNECT:
		version, _ := getUint8(resp.Params, pesit.PI_06)
		c.negotiatedVersion = int(version)
		if _, ok := resp.Params.Get(pesit.PI_07); ok {
			c.syncEnabled = true
			if kb, ok := getUint16(resp.Params, pesit.PI_07); ok {
				c.syncIntervalKB = uint32(kb)
			}
		}
		logger.Info("client connected", "address", c.cfg.Address, "partner", c.cfg.ServerID)
		return nil
	case RCONNECT:
		return diagError(resp)
	default:
		return pesit.NewError(pesit.D3_311, "unexpected reply to CONNECT: "+resp.Type.String())
	}
}

// ACONNECT/RCONNECT aliases keep call sites readable without re-importing
// pesit at every use.
const (
	ACONNECT = pesit.ACONNECT
	RCONNECT = pesit.RCONNECT
)

// release sends RELEASE and waits for RELCONF, the normal termination
// handshake (spec §4.3, §4.5.3).
func (c *Client) release() error {
	if err := c.conn.WriteFPDU(c.req(pesit.RELEASE)); err != nil {
		return err
	}
	resp, err := c.conn.ReadFPDU()
	if err != nil {
		return err
	}
	if resp.Type != pesit.RELCONF {
		return pesit.NewError(pesit.D3_311, "expected RELCONF, got "+resp.Type.String())
	}
	return nil
}

// diagError extracts the PI_02 diagnostic from a rejection FPDU and wraps
// it as a *pesit.Error.
func diagError(f pesit.FPDU) error {
	p, ok := f.Params.Get(pesit.PI_02)
	if !ok {
		return pesit.NewError(pesit.D3_311, f.Type.String()+" carried no diagnostic")
	}
	d, err := pesit.DiagFromBytes(p.Value)
	if err != nil {
		return pesit.NewError(pesit.D3_311, "malformed diagnostic: "+err.Error())
	}
	return pesit.NewError(d, f.Type.String())
}

func getUint8(p pesit.ParamArea, id pesit.PI) (uint8, bool) {
	param, ok := p.Get(id)
	if !ok {
		return 0, false
	}
	v, err := param.Uint8()
	if err != nil {
		return 0, false
	}
	return v, true
}

func getUint16(p pesit.ParamArea, id pesit.PI) (uint16, bool) {
	param, ok := p.Get(id)
	if !ok {
		return 0, false
	}
	v, err := param.Uint16()
	if err != nil {
		return 0, false
	}
	return v, true
}

func getUint32(p pesit.ParamArea, id pesit.PI) (uint32, bool) {
	param, ok := p.Get(id)
	if !ok {
		return 0, false
	}
	v, err := param.Uint32()
	if err != nil {
		return 0, false
	}
	return v, true
}
