package h2

import (
	"github.com/kavdev/duohttp/header"
	"github.com/kavdev/duohttp/herrors"
	"golang.org/x/net/http2"
)

// SendHeaders encodes hm as HPACK and writes it as HEADERS (+ CONTINUATION
// if the block overflows one frame), advancing the stream's send-side
// state machine. endStream marks this as the final frame of the request
// or response (e.g. a bodyless GET).
func (c *Connection) SendHeaders(s *Stream, hm *header.Map, endStream bool) error {
	block, err := c.EncodeHeaders(func(emit func(name, value string, sensitive bool)) {
		hm.Range(func(k, v string) { emit(k, v, false) })
	})
	if err != nil {
		return herrors.Wrap(herrors.KindCompressionError, err, "encode headers")
	}

	s.mu.Lock()
	serr := s.applySend("send_headers", endStream)
	s.mu.Unlock()
	if serr != nil {
		return serr
	}

	max := int(c.Remote.MaxFrameSize())
	first := block
	rest := []byte(nil)
	if len(block) > max {
		first, rest = block[:max], block[max:]
	}
	if err := c.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      s.ID,
		BlockFragment: first,
		EndHeaders:    len(rest) == 0,
		EndStream:     endStream,
	}); err != nil {
		return herrors.Wrap(herrors.KindTCPFailure, err, "write headers frame")
	}
	for len(rest) > 0 {
		chunk := rest
		end := true
		if len(chunk) > max {
			chunk, rest = rest[:max], rest[max:]
			end = false
		} else {
			rest = nil
		}
		if err := c.WriteContinuation(s.ID, end, chunk); err != nil {
			return herrors.Wrap(herrors.KindTCPFailure, err, "write continuation frame")
		}
	}
	return nil
}

// SendData chunks p to min(remote.max_frame_size, connection_send_window,
// stream_send_window), writing DATA frames until either
// everything is sent or a window is exhausted. A zero-length END_STREAM
// DATA frame is always permitted regardless of window state. Returns the
// number of bytes actually written and, if a window was exhausted before
// p was exhausted, a KindNeedWindowUpdate error the caller should treat
// as a resumable suspend point (resend p[n:] once a WINDOW_UPDATE for
// either window arrives).
func (c *Connection) SendData(s *Stream, p []byte, endStream bool) (int, error) {
	if len(p) == 0 {
		if err := c.WriteData(s.ID, endStream, nil); err != nil {
			return 0, herrors.Wrap(herrors.KindTCPFailure, err, "write empty data frame")
		}
		s.mu.Lock()
		serr := s.applySend("send_data", endStream)
		s.mu.Unlock()
		return 0, serr
	}

	sent := 0
	for sent < len(p) {
		maxFrame := int(c.Remote.MaxFrameSize())
		if !c.connOut.available() || !s.out.available() {
			return sent, herrors.New(herrors.KindNeedWindowUpdate, "send window exhausted")
		}
		want := len(p) - sent
		if want > maxFrame {
			want = maxFrame
		}
		got := s.OutflowTake(uint32(want))
		connGot := c.connOut.take(got)
		if connGot < got {
			s.OutflowRefund(got - connGot)
			got = connGot
		}

		last := sent+int(got) >= len(p)
		if err := c.WriteData(s.ID, last && endStream, p[sent:sent+int(got)]); err != nil {
			return sent, herrors.Wrap(herrors.KindTCPFailure, err, "write data frame")
		}
		sent += int(got)
		if !last && got == 0 {
			return sent, herrors.New(herrors.KindNeedWindowUpdate, "send window exhausted")
		}
	}
	s.mu.Lock()
	serr := s.applySend("send_data", endStream)
	s.mu.Unlock()
	return sent, serr
}

// SendBody is SendData with the suspend/resume loop folded in: whenever a
// send or connection window is exhausted, it reads and applies frames off
// the wire (picking up the WINDOW_UPDATE that will eventually free it, and
// along the way any response the peer already started sending) until
// SendData can make more progress, then resumes with the unsent remainder.
// It gives up once s reaches a terminal state without having sent
// everything, e.g. the peer answered early with an error before reading
// the whole body.
func (c *Connection) SendBody(s *Stream, p []byte, endStream bool) error {
	sent := 0
	for {
		n, err := c.SendData(s, p[sent:], endStream)
		sent += n
		if err == nil {
			return nil
		}
		if kind, ok := herrors.KindOf(err); !ok || kind != herrors.KindNeedWindowUpdate {
			return err
		}
		if s.Closed() {
			return nil
		}
		f, rerr := c.ReadFrame()
		if rerr != nil {
			return herrors.Wrap(herrors.KindTCPFailure, rerr, "read frame while suspended on flow control")
		}
		if _, aerr := c.Apply(f); aerr != nil {
			return aerr
		}
	}
}
