package client

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/nexfin/pesitd/pkg/pesit"
)

// fakeConn is a connIO double driven by a scripted queue of inbound FPDUs,
// recording everything written back, mirroring pkg/adapter/pesit's test
// double so handler tests don't need a real socket.
type fakeConn struct {
	inbox    []pesit.FPDU
	sent     []pesit.FPDU
	ebcdic   bool
	timeouts []time.Duration
	closed   bool
}

var errNoMoreInbox = errors.New("fakeConn: inbox exhausted")

func (c *fakeConn) RemoteAddr() net.Addr { return dummyAddr("10.0.0.2:4321") }
func (c *fakeConn) Close() error         { c.closed = true; return nil }
func (c *fakeConn) SetEBCDIC(v bool)     { c.ebcdic = v }
func (c *fakeConn) IsEBCDIC() bool       { return c.ebcdic }
func (c *fakeConn) SetReadTimeout(d time.Duration) {
	c.timeouts = append(c.timeouts, d)
}

func (c *fakeConn) ReadFPDU() (pesit.FPDU, error) {
	if len(c.inbox) == 0 {
		return pesit.FPDU{}, errNoMoreInbox
	}
	f := c.inbox[0]
	c.inbox = c.inbox[1:]
	return f, nil
}

func (c *fakeConn) WriteFPDU(f pesit.FPDU) error {
	c.sent = append(c.sent, f)
	return nil
}

type dummyAddr string

func (d dummyAddr) Network() string { return "tcp" }
func (d dummyAddr) String() string  { return string(d) }

// newTestClient builds a Client wired to a fakeConn, bypassing Dial so tests
// don't open a real socket.
func newTestClient(cfg Config) (*Client, *fakeConn) {
	conn := &fakeConn{}
	c := &Client{cfg: cfg, conn: conn, ownConnID: 1}
	return c, conn
}

func testConfig() Config {
	return Config{
		Address:         "pesit.example.test:2200",
		RequesterID:     "CLIENT1",
		ServerID:        "PESITSRV",
		AccessType:      2,
		ProtocolVersion: 2,
		MaxEntitySize:   4096,
		SyncEnabled:     true,
		SyncIntervalKB:  1,
		ReadTimeoutMS:   5000,
		RetryCount:      3,
		RetryDelayMS:    0,
	}
}

func asPesitError(t *testing.T, err error) *pesit.Error {
	t.Helper()
	var pe *pesit.Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *pesit.Error, got %T (%v)", err, err)
	}
	return pe
}
