package conn

import (
	"time"

	"github.com/kavdev/duohttp/cancel"
)

// IOAdapter presents a Conn as a plain io.Reader/io.Writer bound to one
// timeout and cancel.Context, so the HTTP/1 and HTTP/2 codecs (which only
// need io.Reader/io.Writer "byte-oriented") don't need
// to know about cancellation at all.
type IOAdapter struct {
	Conn    Conn
	Timeout time.Duration
	Cancel  cancel.Context
}

func NewIOAdapter(c Conn, timeout time.Duration, cc cancel.Context) *IOAdapter {
	if cc == nil {
		cc = cancel.Background()
	}
	return &IOAdapter{Conn: c, Timeout: timeout, Cancel: cc}
}

func (a *IOAdapter) Write(p []byte) (int, error) {
	return a.Conn.Write(p, a.Timeout, a.Cancel)
}

func (a *IOAdapter) Read(p []byte) (int, error) {
	return a.Conn.Read(p, a.Timeout, a.Cancel)
}
