// Package client implements the PeSIT Hors-SIT client driver (C7): the
// requester side of a Hors-SIT session, orchestrating the same state
// sequences pkg/adapter/pesit answers on the server side, plus the
// client-only concerns of PI_25 downward renegotiation and IDT-triggered
// restart (spec §4.5.3).
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/nexfin/pesitd/internal/logger"
	"github.com/nexfin/pesitd/pkg/pesit"
	"github.com/nexfin/pesitd/pkg/transfer"
	"github.com/nexfin/pesitd/pkg/transport"
)

// connIO is the subset of *transport.Conn the driver needs, mirroring
// pkg/adapter/pesit's connIO so tests can substitute a scripted fake
// without a real socket.
type connIO interface {
	RemoteAddr() net.Addr
	Close() error
	SetEBCDIC(bool)
	IsEBCDIC() bool
	SetReadTimeout(time.Duration)
	ReadFPDU() (pesit.FPDU, error)
	WriteFPDU(pesit.FPDU) error
}

// Config carries everything a Client needs to dial and negotiate a session.
type Config struct {
	Address  string // host:port of the PeSIT listener
	TLS      *tls.Config
	DialTimeout time.Duration

	RequesterID string // PI_03, our identity
	ServerID    string // PI_04, expected peer identity
	Password    string // PI_05
	AccessType  byte   // PI_22

	ProtocolVersion int // PI_06
	MaxEntitySize   uint32
	SyncEnabled     bool
	SyncIntervalKB  uint32
	ResyncEnabled   bool

	ReadTimeoutMS int
	RetryCount    int
	RetryDelayMS  int

	EBCDIC bool // force EBCDIC encoding, for partners that require it
}

// Client is one PeSIT session from the requester's side. It is not safe for
// concurrent use: like the server's Session, exactly one goroutine drives
// it through a strictly serialized request/response sequence (spec §5).
type Client struct {
	cfg  Config
	conn connIO

	ownConnID  byte
	peerConnID byte

	negotiatedVersion int
	syncEnabled       bool
	syncIntervalKB    uint32

	Tracker transfer.Tracker // optional; nil disables durable tracking
}

// Dial opens a TCP (optionally TLS) connection to cfg.Address and wraps it
// for framed PeSIT I/O, but does not yet send CONNECT.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	d := net.Dialer{Timeout: cfg.DialTimeout}
	raw, err := d.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", cfg.Address, err)
	}

	readTimeout := time.Duration(cfg.ReadTimeoutMS) * time.Millisecond
	tc := transport.New(raw, readTimeout)
	if cfg.TLS != nil {
		if err := tc.UpgradeTLS(cfg.TLS); err != nil {
			_ = raw.Close()
			return nil, err
		}
	}
	tc.SetEBCDIC(cfg.EBCDIC)

	c := &Client{cfg: cfg, conn: tc, ownConnID: 1}
	logger.Debug("client dialed", "address", cfg.Address)
	return c, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) baseReadTimeout() time.Duration {
	return time.Duration(c.cfg.ReadTimeoutMS) * time.Millisecond
}

// readTimeoutForSize mirrors pkg/adapter/pesit's extension formula (spec
// §5): base + ceil(size / 50MB) x 60s, capped at 30 minutes.
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

func (c *Client) restoreBaseTimeout() {
	c.conn.SetReadTimeout(c.baseReadTimeout())
}

// req builds a bare request FPDU addressed to the peer connection learned
// at CONNECT time, echoing the id_dst/id_src convention pkg/adapter/pesit's
// reply helper uses on the other side (spec §3).
func (c *Client) req(t pesit.FpduType) pesit.FPDU {
	return pesit.FPDU{Type: t, IDDst: c.peerConnID, IDSrc: c.ownConnID}
}
