// Package conn implements the transport abstraction: a byte-oriented Conn
// with cancellation-aware, length-complete writes and partial reads, in
// plain-socket and TLS-secured variants.
package conn

import (
	"crypto/tls"
	"io"
	"net"
	"time"

	"github.com/kavdev/duohttp/cancel"
	"github.com/kavdev/duohttp/herrors"
)

// Conn is the core's view of a connection: byte-oriented read/write with
// cancellation, plus the observable state a transport connection needs to
// expose (open/closed, peer address, negotiated ALPN).
type Conn interface {
	io.Closer

	// Write is length-complete: either every byte of p is written, or an
	// error is returned. Short writes are retried internally until the
	// buffer is exhausted or cancel fires.
	Write(p []byte, timeout time.Duration, cancel cancel.Context) (int, error)
	// Read may return fewer bytes than len(p); callers loop.
	Read(p []byte, timeout time.Duration, cancel cancel.Context) (int, error)

	IsOpen() bool
	IsSecure() bool
	PeerAddress() string
	SelectedALPN() string

	// Reset rebinds this Conn in place to a new underlying socket/address.
	// Client.Reopen does not call it: on an unchanged endpoint with an open
	// socket it keeps the existing Conn as it is.
	Reset(raw net.Conn, addr string)

	// Raw exposes the underlying net.Conn for code (h2 stream dialing,
	// ALPN inspection) that must reach past this abstraction.
	Raw() net.Conn
}

// pollInterval bounds how long a single underlying Read/Write deadline is
// set for before the cancel context is polled again — the Go stand-in for
// the source's non-blocking-socket + on_cancel() poll loop.
const pollInterval = 200 * time.Millisecond

type plainConn struct {
	raw    net.Conn
	addr   string
	open   bool
	alpn   string
	secure bool
}

// NewPlain wraps an already-dialed net.Conn as a plain (non-TLS) Conn.
func NewPlain(raw net.Conn) Conn {
	return &plainConn{raw: raw, addr: raw.RemoteAddr().String(), open: true}
}

func (c *plainConn) IsOpen() bool          { return c.open }
func (c *plainConn) IsSecure() bool        { return c.secure }
func (c *plainConn) PeerAddress() string   { return c.addr }
func (c *plainConn) SelectedALPN() string  { return c.alpn }
func (c *plainConn) Raw() net.Conn         { return c.raw }
func (c *plainConn) Close() error          { c.open = false; return c.raw.Close() }

func (c *plainConn) Reset(raw net.Conn, addr string) {
	c.raw = raw
	c.addr = addr
	c.open = true
	c.alpn = ""
}

func (c *plainConn) Write(p []byte, timeout time.Duration, cc cancel.Context) (int, error) {
	return writeComplete(c.raw, p, timeout, cc)
}

func (c *plainConn) Read(p []byte, timeout time.Duration, cc cancel.Context) (int, error) {
	return readOnce(c.raw, p, timeout, cc)
}

type tlsConn struct {
	plainConn
	tls *tls.Conn
}

// NewTLS wraps an already-handshaken *tls.Conn. alpn is the negotiated
// protocol, read once at handshake completion since
// ConnectionState().NegotiatedProtocol is immutable afterward.
func NewTLS(c *tls.Conn, alpn string) Conn {
	t := &tlsConn{}
	t.raw = c
	t.tls = c
	t.addr = c.RemoteAddr().String()
	t.open = true
	t.secure = true
	t.alpn = alpn
	return t
}

func (c *tlsConn) Reset(raw net.Conn, addr string) {
	tc, ok := raw.(*tls.Conn)
	if !ok {
		panic("tlsConn.Reset given a non-TLS net.Conn")
	}
	c.tls = tc
	c.raw = raw
	c.addr = addr
	c.open = true
	c.alpn = tc.ConnectionState().NegotiatedProtocol
}

// writeComplete retries Write until p is fully written or the cancel
// context fires; each underlying Write uses a short deadline so the cancel
// context is re-polled between attempts instead of blocking indefinitely,
// the translation of "consult CancelContext after each non-progressing
// syscall" onto Go's deadline-based interruption model.
func writeComplete(raw net.Conn, p []byte, timeout time.Duration, cc cancel.Context) (int, error) {
	osErr := cancel.NewOSError(cc, false)
	written := 0
	for written < len(p) {
		if osErr.OnCancel() {
			return written, reasonErr(osErr.DeepReason())
		}
		raw.SetWriteDeadline(deadlineFor(timeout))
		n, err := raw.Write(p[written:])
		written += n
		if err != nil {
			osErr.Observe(err)
			if !osErr.OnCancel() {
				// transient deadline trip with no real progress barrier;
				// the source treats EWOULDBLOCK as "keep trying"
				continue
			}
			return written, reasonErr(osErr.DeepReason())
		}
	}
	return written, nil
}

func readOnce(raw net.Conn, p []byte, timeout time.Duration, cc cancel.Context) (int, error) {
	osErr := cancel.NewOSError(cc, false)
	for {
		if osErr.OnCancel() {
			return 0, reasonErr(osErr.DeepReason())
		}
		raw.SetReadDeadline(deadlineFor(timeout))
		n, err := raw.Read(p)
		if n > 0 {
			return n, nil
		}
		if err == io.EOF {
			return 0, io.EOF
		}
		if err != nil {
			osErr.Observe(err)
			if !osErr.OnCancel() {
				continue
			}
			return 0, reasonErr(osErr.DeepReason())
		}
	}
}

func deadlineFor(timeout time.Duration) time.Time {
	if timeout > 0 && timeout < pollInterval {
		return time.Now().Add(timeout)
	}
	return time.Now().Add(pollInterval)
}

func reasonErr(r cancel.Reason) error {
	return herrors.NewCancelError(r.String())
}
