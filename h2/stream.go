package h2

import (
	"bytes"
	"sync"

	"github.com/kavdev/duohttp/header"
	"golang.org/x/net/http2"
)

// Priority holds the parsed-but-unscheduled PRIORITY frame fields.
// Priority is parsed but does not drive scheduling: it's kept around for
// callers that want to inspect it, never consulted by this package's own
// send ordering.
type Priority struct {
	StreamDep uint32
	Weight    uint8
	Exclusive bool
}

// Stream is one HTTP/2 stream's accumulated state: position in the state
// machine, header/trailer accumulation during a multi-frame HEADERS
// sequence, the body buffer, and per-stream flow-control windows.
type Stream struct {
	mu sync.Mutex

	ID    uint32
	State State

	Headers *header.Map
	Path    string
	Query   string

	body bytes.Buffer

	Priority Priority

	in  *inflow
	out *outflow

	endHeadersRecv bool
	endStreamRecv  bool
	LastErrorCode  http2.ErrCode

	closeNotified bool
	onClose       func()
}

func newStream(id uint32, connInitialIn, connInitialOut uint32) *Stream {
	return &Stream{
		ID:      id,
		State:   StateIdle,
		Headers: header.New(),
		in:      newInflow(connInitialIn),
		out:     newOutflow(int32(connInitialOut)),
	}
}

// WriteBody appends received DATA payload to the stream's reassembly
// buffer, staging the flow-control accounting for it.
func (s *Stream) WriteBody(p []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.in.stage(uint32(len(p))) {
		return false
	}
	s.body.Write(p)
	return true
}

// Body returns the bytes reassembled so far. Valid once the stream reaches
// half_closed_remote or closed.
func (s *Stream) Body() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body.Bytes()
}

// InflowGrant reports the WINDOW_UPDATE increment due for sz bytes just
// buffered by WriteBody; this module has no separate incremental-read API,
// so buffering a DATA frame counts as consuming it.
func (s *Stream) InflowGrant(consumed uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.in.grant(consumed)
}

// OutflowTake reserves up to sz bytes of this stream's send window,
// blocking while it is exhausted.
func (s *Stream) OutflowTake(sz uint32) uint32 { return s.out.take(sz) }

func (s *Stream) OutflowRefund(sz uint32)     { s.out.refund(sz) }
func (s *Stream) OutflowAdd(delta int64) bool { return s.out.add(delta) }

// Closed reports whether the stream has reached the terminal state.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.State == StateClosed
}

// HalfClosedRemote reports whether the peer has finished sending on this
// stream (half_closed_remote or closed): whatever it was ever going to
// send — headers plus body — is now fully buffered on this side.
func (s *Stream) HalfClosedRemote() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.State == StateHalfClosedRemote || s.State == StateClosed
}

// noteIfClosed fires onClose the first time State reaches StateClosed.
// Callers hold s.mu already; onClose must not try to reacquire it.
func (s *Stream) noteIfClosed() {
	if s.State == StateClosed && !s.closeNotified {
		s.closeNotified = true
		if s.onClose != nil {
			s.onClose()
		}
	}
}

// IsClientInitiated reports the id-parity rule: odd ids are
// client-initiated, even ids are server-initiated (and 0 is reserved for
// the connection itself).
func IsClientInitiated(id uint32) bool { return id != 0 && id%2 == 1 }
