// Package transport implements the length-prefixed framed I/O layer of a
// PeSIT Hors-SIT session (C2): reading and writing complete wire frames over
// a TCP or TLS connection, and the pre-connection EBCDIC-prologue handshake.
// It is not protocol-aware beyond framing: callers hand it complete frame
// bytes and get complete frame bytes back.
package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/nexfin/pesitd/internal/logger"
	"github.com/nexfin/pesitd/pkg/pesit"
)

// MaxFrameSize bounds a single frame's outer length field, rejecting runaway
// allocations from a corrupt or hostile peer.
const MaxFrameSize = 1 << 20 // 1 MiB

// Conn wraps a net.Conn with PeSIT frame boundaries. It reads exactly
// outer_len bytes per ReadFrame call and writes symmetrically; it never
// reinterprets the frame body.
type Conn struct {
	raw        net.Conn
	r          *bufio.Reader
	readTimeout time.Duration

	// EBCDIC is true once the pre-connection handshake has identified the
	// session as "pure EBCDIC" (spec §4.1 / §4.2).
	EBCDIC bool

	tlsState *tls.ConnectionState
}

// New wraps conn for framed PeSIT I/O. readTimeout is applied to every
// ReadFrame call; zero disables the deadline.
func New(conn net.Conn, readTimeout time.Duration) *Conn {
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(30 * time.Second)
	}
	return &Conn{raw: conn, r: bufio.NewReader(conn), readTimeout: readTimeout}
}

// RemoteAddr returns the remote address of the underlying connection.
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.raw.Close() }

// TLSState returns the negotiated TLS connection state, and false if the
// connection is not TLS-wrapped.
func (c *Conn) TLSState() (tls.ConnectionState, bool) {
	if c.tlsState == nil {
		return tls.ConnectionState{}, false
	}
	return *c.tlsState, true
}

// IsEBCDIC reports whether DetectEBCDIC identified this session as pure
// EBCDIC.
func (c *Conn) IsEBCDIC() bool { return c.EBCDIC }

// SetReadTimeout overrides the per-ReadFrame deadline, letting callers
// extend it proportionally to an expected bulk transfer size (spec §5).
func (c *Conn) SetReadTimeout(d time.Duration) { c.readTimeout = d }

// SetEBCDIC overrides the session's EBCDIC flag, for callers (tests, or a
// client driver that already knows the peer's encoding) that skip
// DetectEBCDIC.
func (c *Conn) SetEBCDIC(v bool) { c.EBCDIC = v }

// UpgradeTLS wraps the connection in TLS using cfg, performs the handshake,
// and records the negotiated state for later inspection. It must be called
// before any frame has been read or written on c.
func (c *Conn) UpgradeTLS(cfg *tls.Config) error {
	tlsConn := tls.Server(c.raw, cfg)
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		return fmt.Errorf("transport: TLS handshake: %w", err)
	}
	state := tlsConn.ConnectionState()
	c.raw = tlsConn
	c.r = bufio.NewReader(tlsConn)
	c.tlsState = &state
	return nil
}

// DetectEBCDIC peeks the first 24 bytes of the connection without consuming
// them from a fresh TCP stream, applying pesit.DetectEBCDICPrologue, and
// sets c.EBCDIC accordingly. It must be called before the first ReadFrame.
// If the session is EBCDIC, the caller must still send the EBCDIC "ACK0"
// reply itself (SendRawACK0) since it bypasses normal framing.
func (c *Conn) DetectEBCDIC() error {
	if c.readTimeout > 0 {
		if err := c.raw.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return fmt.Errorf("transport: set read deadline: %w", err)
		}
	}
	peek, err := c.r.Peek(24)
	if err != nil {
		return fmt.Errorf("transport: peek prologue: %w", err)
	}
	c.EBCDIC = pesit.DetectEBCDICPrologue(peek)
	return nil
}

// SendRawACK0 writes the literal EBCDIC "ACK0" bytes with no length prefix,
// the reply mandated for a detected EBCDIC prologue (spec §4.1).
func (c *Conn) SendRawACK0() error {
	_, err := c.raw.Write(pesit.EBCDICAck0())
	if err != nil {
		return fmt.Errorf("transport: write ACK0: %w", err)
	}
	return nil
}

// ReadFrame reads one complete wire frame (outer length prefix included)
// and returns it unparsed. The caller passes it to pesit.Parse.
func (c *Conn) ReadFrame() ([]byte, error) {
	if c.readTimeout > 0 {
		if err := c.raw.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return nil, fmt.Errorf("transport: set read deadline: %w", err)
		}
	}

	var lenBuf [2]byte
	if _, err := io.ReadFull(c.r, lenBuf[:]); err != nil {
		return nil, err
	}
	outerLen := binary.BigEndian.Uint16(lenBuf[:])
	if int(outerLen) > MaxFrameSize {
		return nil, fmt.Errorf("transport: frame length %d exceeds maximum %d", outerLen, MaxFrameSize)
	}

	frame := make([]byte, 2+int(outerLen))
	copy(frame, lenBuf[:])
	if _, err := io.ReadFull(c.r, frame[2:]); err != nil {
		return nil, fmt.Errorf("transport: read frame body: %w", err)
	}
	return frame, nil
}

// WriteFrame writes a complete wire frame (outer length prefix included),
// as produced by pesit.Encode.
func (c *Conn) WriteFrame(frame []byte) error {
	if _, err := c.raw.Write(frame); err != nil {
		return fmt.Errorf("transport: write frame: %w", err)
	}
	return nil
}

// ReadFPDU is a convenience wrapper combining ReadFrame and pesit.Parse,
// logging the raw frame size at debug level for session tracing.
func (c *Conn) ReadFPDU() (pesit.FPDU, error) {
	frame, err := c.ReadFrame()
	if err != nil {
		return pesit.FPDU{}, err
	}
	f, err := pesit.Parse(frame, c.EBCDIC)
	if err != nil {
		return pesit.FPDU{}, err
	}
	logger.Debug("received FPDU", logger.KeyType, f.Type.String(), "bytes", len(frame))
	return f, nil
}

// WriteFPDU is a convenience wrapper combining pesit.Encode and WriteFrame.
func (c *Conn) WriteFPDU(f pesit.FPDU) error {
	frame, err := pesit.Encode(f, c.EBCDIC)
	if err != nil {
		return fmt.Errorf("transport: encode FPDU: %w", err)
	}
	logger.Debug("sending FPDU", logger.KeyType, f.Type.String(), "bytes", len(frame))
	return c.WriteFrame(frame)
}
