package server

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/nexfin/pesitd/internal/bytesize"
	"github.com/nexfin/pesitd/pkg/config"
	"github.com/nexfin/pesitd/pkg/pesit"
	"github.com/nexfin/pesitd/pkg/registry"
	"github.com/nexfin/pesitd/pkg/store/local"
	"github.com/nexfin/pesitd/pkg/transfer/memory"
)

// fakeConn is a connIO double driven by a scripted queue of inbound FPDUs,
// recording everything written back. It lets handler tests exercise the
// request/respond(/request...) shape of a handler without a real socket.
type fakeConn struct {
	inbox     []pesit.FPDU
	sent      []pesit.FPDU
	ebcdic    bool
	timeouts  []time.Duration
	closed    bool
}

var errNoMoreInbox = errors.New("fakeConn: inbox exhausted")

func (c *fakeConn) RemoteAddr() net.Addr { return dummyAddr("10.0.0.1:1234") }
func (c *fakeConn) Close() error         { c.closed = true; return nil }
func (c *fakeConn) DetectEBCDIC() error  { return nil }
func (c *fakeConn) SendRawACK0() error   { return nil }
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

// testFixture bundles a Session wired to a fakeConn plus its Adapter, ready
// for handler-level tests.
type testFixture struct {
	session *Session
	conn    *fakeConn
	adapter *Adapter
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	reg := registry.New(false, false)
	tr := memory.New()
	st := local.New()

	cfg := config.ServerConfig{
		ID:                "PESITSRV",
		ReadTimeoutMS:     5000,
		ProtocolVersion:   2,
		MaxEntitySize:     bytesize.ByteSize(4096),
		SyncPointsEnabled: true,
		SyncIntervalKB:    bytesize.ByteSize(1024),
		ReceiveDirectory:  t.TempDir(),
		SendDirectory:     t.TempDir(),
	}

	a := &Adapter{
		Config:   cfg,
		NodeID:   "node-1",
		Registry: reg,
		Store:    st,
		Tracker:  tr,
	}

	conn := &fakeConn{}
	sess := &Session{
		adapter: a,
		conn:    conn,
		ctx: &SessionContext{
			SessionID:     "sess-1",
			RemoteAddr:    "10.0.0.1:1234",
			ServerID:      cfg.ID,
			ServerConnID:  7,
			MaxEntitySize: uint32(cfg.MaxEntitySize.Uint64()),
			State:         pesit.CN01_REPOS,
		},
	}
	return &testFixture{session: sess, conn: conn, adapter: a}
}

func connectedFixture(t *testing.T) *testFixture {
	t.Helper()
	f := newFixture(t)
	f.session.ctx.PartnerID = "CLIENT1"
	f.session.ctx.State = pesit.CN03_CONNECTED
	f.session.ctx.SyncEnabled = true
	f.session.ctx.SyncIntervalKB = 1
	return f
}

func asPesitError(t *testing.T, err error) *pesit.Error {
	t.Helper()
	var pe *pesit.Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *pesit.Error, got %T (%v)", err, err)
	}
	return pe
}
