// Package h2 implements the HTTP/2 framing, HPACK bookkeeping, stream
// state machine, and connection-level flow control described in RFC 7540.
// Frame (de)serialization and HPACK codecs are delegated to
// golang.org/x/net/http2 and golang.org/x/net/http2/hpack; the state
// machine, id allocation, and window arithmetic wrapped around them are
// this module's own code.
package h2

import "github.com/kavdev/duohttp/herrors"

// State is a stream's position in the RFC 7540 §5.1 state machine.
type State int

const (
	StateIdle State = iota
	StateReservedLocal
	StateReservedRemote
	StateOpen
	StateHalfClosedLocal
	StateHalfClosedRemote
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReservedLocal:
		return "reserved_local"
	case StateReservedRemote:
		return "reserved_remote"
	case StateOpen:
		return "open"
	case StateHalfClosedLocal:
		return "half_closed_local"
	case StateHalfClosedRemote:
		return "half_closed_remote"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// transition applies one event to a stream state, returning the next
// state and whether the transition is legal, per the RFC 7540 §5.1
// state diagram.
func transition(cur State, event string, endStream bool) (State, bool) {
	switch cur {
	case StateIdle:
		switch event {
		case "send_headers":
			if endStream {
				return StateHalfClosedLocal, true
			}
			return StateOpen, true
		case "recv_headers":
			if endStream {
				return StateHalfClosedRemote, true
			}
			return StateOpen, true
		case "recv_push_promise":
			return StateReservedRemote, true
		case "send_push_promise":
			return StateReservedLocal, true
		}
	case StateReservedLocal:
		if event == "send_headers" {
			return StateHalfClosedRemote, true
		}
	case StateReservedRemote:
		if event == "recv_headers" {
			return StateHalfClosedLocal, true
		}
	case StateOpen:
		switch event {
		case "send_data":
			return StateOpen, true
		case "recv_data":
			return StateOpen, true
		case "send_end_stream":
			return StateHalfClosedLocal, true
		case "recv_end_stream":
			return StateHalfClosedRemote, true
		}
	case StateHalfClosedRemote:
		switch event {
		case "send_headers":
			if endStream {
				return StateClosed, true
			}
			return StateHalfClosedRemote, true
		case "send_data":
			return StateHalfClosedRemote, true
		case "send_end_stream":
			return StateClosed, true
		}
	case StateHalfClosedLocal:
		switch event {
		case "recv_headers":
			if endStream {
				return StateClosed, true
			}
			return StateHalfClosedLocal, true
		case "recv_data":
			return StateHalfClosedLocal, true
		case "recv_end_stream":
			return StateClosed, true
		}
	}
	if event == "reset" {
		return StateClosed, true
	}
	return cur, false
}

// applySend and applyRecv run a sent/received frame's event through
// transition(). For HEADERS (and a sent PUSH_PROMISE) the END_STREAM flag
// is folded into that single transition; for DATA a set END_STREAM runs a
// second send_end_stream/recv_end_stream transition.
func (s *Stream) applySend(event string, endStream bool) error {
	next, ok := transition(s.State, event, endStream)
	if !ok {
		return herrors.New(herrors.KindStreamClosed, "illegal send in state "+s.State.String())
	}
	s.State = next
	if endStream && (event == "send_headers" || event == "send_push_promise") {
		s.noteIfClosed()
		return nil // endStream already folded into the headers transition above
	}
	if endStream && event != "send_headers" {
		next, ok := transition(s.State, "send_end_stream", true)
		if ok {
			s.State = next
		}
	}
	s.noteIfClosed()
	return nil
}

func (s *Stream) applyRecv(event string, endStream bool) error {
	next, ok := transition(s.State, event, endStream)
	if !ok {
		return herrors.New(herrors.KindStreamClosed, "illegal recv in state "+s.State.String())
	}
	s.State = next
	if endStream && event != "recv_headers" {
		next, ok := transition(s.State, "recv_end_stream", true)
		if ok {
			s.State = next
		}
	}
	s.noteIfClosed()
	return nil
}
