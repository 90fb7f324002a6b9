package h2

import (
	"io"
	"sync"

	"github.com/kavdev/duohttp/herrors"
	"github.com/kavdev/duohttp/internal/metrics"
	"golang.org/x/net/http2"
)

// preface is the fixed 24-byte client connection preface (RFC 7540 §3.5).
const preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// Role distinguishes which side of the connection this Connection plays,
// which in turn decides stream-id parity for MakeStream.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// Connection is one HTTP/2 connection's context: role, local/remote
// settings, HPACK codec, connection-level flow-control windows, and the
// stream table. It exposes a narrow surface for driving the protocol:
// GetStream, MakeStream, Apply(frame), and Send (via the embedded framer).
type Connection struct {
	*framer

	role Role

	Local  *settingsTable
	Remote *settingsTable

	mu      sync.Mutex
	streams map[uint32]*Stream
	maxID   uint32

	connIn  *inflow
	connOut *outflow

	GoAway bool

	// Metrics holds read-only connection/stream counters; no external
	// exporter, just totals a caller can Snapshot.
	Metrics *metrics.Counters
}

// NewConnection wraps rw (already ALPN-selected to "h2") with framing,
// HPACK, and connection-level flow control.
func NewConnection(rw io.ReadWriter, role Role) *Connection {
	local := defaultSettingsTable()
	c := &Connection{
		framer:  newFramer(rw, local.Get(http2.SettingHeaderTableSize), 0),
		role:    role,
		Local:   local,
		Remote:  defaultSettingsTable(),
		streams: map[uint32]*Stream{},
		connIn:  newInflow(defaultInitialWindowSize),
		connOut: newOutflow(defaultInitialWindowSize),
		Metrics: &metrics.Counters{},
	}
	c.Remote.OnChange(http2.SettingMaxHeaderListSize, func(_, v uint32) {
		c.framer.SetMaxHeaderListSize(v)
	})
	c.Remote.OnChange(http2.SettingHeaderTableSize, func(_, v uint32) {
		c.framer.SetEncoderMaxDynamicTableSize(v)
	})
	c.Metrics.ConnOpened()
	return c
}

// Handshake writes this side's opening of the connection: the client
// writes the 24-byte magic then its initial SETTINGS; the server writes
// only its initial SETTINGS. Handshake reads nothing. The client's preface
// is checked by ExpectPreface; no check is made that the peer's first
// frame is a SETTINGS frame.
func (c *Connection) Handshake(w io.Writer) error {
	if c.role == RoleClient {
		if _, err := io.WriteString(w, preface); err != nil {
			return herrors.Wrap(herrors.KindTCPFailure, err, "write preface")
		}
	}
	if err := c.WriteSettings(c.Local.AsFrameSettings()...); err != nil {
		return herrors.Wrap(herrors.KindTCPFailure, err, "write initial settings")
	}
	return nil
}

// ExpectPreface is the server-side counterpart: it must see the literal
// 24-byte magic as the very first bytes on the wire before any frame.
func ExpectPreface(r io.Reader) error {
	buf := make([]byte, len(preface))
	if _, err := io.ReadFull(r, buf); err != nil {
		return herrors.Wrap(herrors.KindProtocolError, err, "read preface")
	}
	if string(buf) != preface {
		return herrors.New(herrors.KindProtocolError, "bad connection preface")
	}
	return nil
}

// Close marks this connection's lifetime ended for metrics purposes. It is
// not idempotent: every call counts one more closed connection. The
// underlying io.ReadWriter is owned and closed by the caller.
func (c *Connection) Close() {
	c.Metrics.ConnClosed()
}

// GetStream looks up an existing stream by id.
func (c *Connection) GetStream(id uint32) (*Stream, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.streams[id]
	return s, ok
}

// MakeStream allocates the next legal id for this connection's role.
// Fails with refused_stream once the id space is exhausted.
func (c *Connection) MakeStream() (*Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.maxID + 1
	if IsClientInitiated(next) != (c.role == RoleClient) {
		next++
	}
	if next > 1<<31-1 || next < c.maxID {
		return nil, herrors.New(herrors.KindRefusedStream, "stream id space exhausted")
	}
	s := newStream(next, c.Local.Get(http2.SettingInitialWindowSize), c.Remote.Get(http2.SettingInitialWindowSize))
	s.onClose = c.Metrics.StreamClosed
	c.streams[next] = s
	c.maxID = next
	c.Metrics.StreamOpened()
	return s, nil
}

// adoptRemoteStream records an id the peer initiated (a HEADERS frame for
// an id we haven't seen), enforcing monotonicity: ids must strictly
// increase, and parity must match the peer's role.
func (c *Connection) adoptRemoteStream(id uint32) (*Stream, error) {
	wantOdd := c.role == RoleServer
	if IsClientInitiated(id) != wantOdd {
		return nil, herrors.New(herrors.KindProtocolError, "stream id parity violation")
	}
	if id <= c.maxID {
		return nil, herrors.New(herrors.KindProtocolError, "stream id out of order")
	}
	s := newStream(id, c.Local.Get(http2.SettingInitialWindowSize), c.Remote.Get(http2.SettingInitialWindowSize))
	s.onClose = c.Metrics.StreamClosed
	c.streams[id] = s
	c.maxID = id
	c.Metrics.StreamOpened()
	return s, nil
}

// Apply folds one received frame into its stream's state machine and
// flow-control accounting, returning the stream it applies to (nil for
// connection-level frames: SETTINGS, PING, GOAWAY) and any error. This is
// the single entry point for driving a Connection from received frames.
func (c *Connection) Apply(f http2.Frame) (*Stream, error) {
	switch fr := f.(type) {
	case *http2.SettingsFrame:
		if fr.IsAck() {
			return nil, nil
		}
		old := c.Remote.Get(http2.SettingInitialWindowSize)
		if err := c.Remote.ApplyFrame(fr); err != nil {
			c.AbortConnection(herrors.KindProtocolError, "bad settings")
			return nil, herrors.Wrap(herrors.KindProtocolError, err, "bad settings")
		}
		if nw := c.Remote.Get(http2.SettingInitialWindowSize); nw != old {
			c.adjustStreamOutflows(int64(nw) - int64(old))
		}
		return nil, c.WriteSettingsAck()

	case *http2.WindowUpdateFrame:
		if fr.StreamID == 0 {
			if !c.connOut.add(int64(fr.Increment)) {
				c.AbortConnection(herrors.KindFlowControlError, "connection window overflow")
				return nil, herrors.New(herrors.KindFlowControlError, "connection window overflow")
			}
			return nil, nil
		}
		s, ok := c.GetStream(fr.StreamID)
		if !ok {
			return nil, nil
		}
		if !s.OutflowAdd(int64(fr.Increment)) {
			c.AbortStream(fr.StreamID, s, herrors.KindFlowControlError)
			return s, herrors.New(herrors.KindFlowControlError, "stream window overflow")
		}
		return s, nil

	case *http2.MetaHeadersFrame:
		return c.applyHeaders(fr)

	case *http2.DataFrame:
		return c.applyData(fr)

	case *http2.RSTStreamFrame:
		s, ok := c.GetStream(fr.StreamID)
		if !ok {
			return nil, nil
		}
		s.mu.Lock()
		s.State = StateClosed
		s.LastErrorCode = fr.ErrCode
		s.noteIfClosed()
		s.mu.Unlock()
		return s, nil

	case *http2.GoAwayFrame:
		c.mu.Lock()
		c.GoAway = true
		c.mu.Unlock()
		return nil, nil

	case *http2.PingFrame:
		if !fr.IsAck() {
			var data [8]byte
			copy(data[:], fr.Data[:])
			return nil, c.WritePing(true, data)
		}
		return nil, nil

	case *http2.PriorityFrame:
		s, ok := c.GetStream(fr.StreamID)
		if !ok {
			return nil, nil
		}
		s.mu.Lock()
		s.Priority = Priority{StreamDep: fr.StreamDep, Weight: fr.Weight, Exclusive: fr.Exclusive}
		s.mu.Unlock()
		return s, nil
	}
	return nil, nil
}

func (c *Connection) adjustStreamOutflows(delta int64) {
	c.mu.Lock()
	streams := make([]*Stream, 0, len(c.streams))
	for _, s := range c.streams {
		streams = append(streams, s)
	}
	c.mu.Unlock()
	for _, s := range streams {
		s.OutflowAdd(delta)
	}
}

func (c *Connection) applyHeaders(fr *http2.MetaHeadersFrame) (*Stream, error) {
	s, ok := c.GetStream(fr.StreamID)
	if !ok {
		var err error
		s, err = c.adoptRemoteStream(fr.StreamID)
		if err != nil {
			c.AbortConnection(herrors.KindProtocolError, "bad stream id")
			return nil, err
		}
	}
	event := "recv_headers"
	if fr.HasPriority() {
		p := fr.Priority
		s.mu.Lock()
		s.Priority = Priority{StreamDep: p.StreamDep, Weight: p.Weight, Exclusive: p.Exclusive}
		s.mu.Unlock()
	}
	s.mu.Lock()
	if err := s.applyRecv(event, fr.StreamEnded()); err != nil {
		s.mu.Unlock()
		kind, _ := herrors.KindOf(err)
		c.AbortStream(fr.StreamID, s, kind)
		return s, err
	}
	for _, hf := range fr.Fields {
		s.Headers.Add(hf.Name, hf.Value)
	}
	switch {
	case s.Headers.Has(":path") && s.Path == "":
		s.Path, s.Query = splitPathQuery(s.Headers.Get(":path"))
	}
	s.mu.Unlock()
	return s, nil
}

func splitPathQuery(target string) (path, query string) {
	if i := indexByte(target, '?'); i >= 0 {
		return target[:i], target[i+1:]
	}
	return target, ""
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func (c *Connection) applyData(fr *http2.DataFrame) (*Stream, error) {
	s, ok := c.GetStream(fr.StreamID)
	if !ok {
		c.AbortStream(fr.StreamID, nil, herrors.KindProtocolError)
		return nil, herrors.New(herrors.KindProtocolError, "data for unknown stream")
	}
	n := uint32(len(fr.Data()))
	if !c.connIn.stage(n) {
		c.AbortConnection(herrors.KindFlowControlError, "connection flow control violation")
		return s, herrors.New(herrors.KindFlowControlError, "connection flow control violation")
	}
	if !s.WriteBody(fr.Data()) {
		c.AbortStream(fr.StreamID, s, herrors.KindFlowControlError)
		return s, herrors.New(herrors.KindFlowControlError, "stream flow control violation")
	}
	s.mu.Lock()
	err := s.applyRecv("recv_data", fr.StreamEnded())
	s.mu.Unlock()
	if err != nil {
		kind, _ := herrors.KindOf(err)
		c.AbortStream(fr.StreamID, s, kind)
		return s, err
	}
	if inc := s.InflowGrant(n); inc > 0 {
		c.WriteWindowUpdate(s.ID, inc)
	}
	if inc := c.connIn.grant(n); inc > 0 {
		c.WriteWindowUpdate(0, inc)
	}
	return s, nil
}
