package h2

import (
	"github.com/kavdev/duohttp/herrors"
	"golang.org/x/net/http2"
)

// errCodeForKind maps this module's error taxonomy onto the RFC 7540 §7
// wire error codes carried by RST_STREAM/GOAWAY, defaulting to
// ErrCodeInternal for kinds with no protocol-level counterpart.
func errCodeForKind(k herrors.Kind) http2.ErrCode {
	switch k {
	case herrors.KindProtocolError:
		return http2.ErrCodeProtocol
	case herrors.KindFlowControlError:
		return http2.ErrCodeFlowControl
	case herrors.KindSettingsTimeout:
		return http2.ErrCodeSettingsTimeout
	case herrors.KindStreamClosed:
		return http2.ErrCodeStreamClosed
	case herrors.KindFrameSizeError:
		return http2.ErrCodeFrameSize
	case herrors.KindRefusedStream:
		return http2.ErrCodeRefusedStream
	case herrors.KindCancel:
		return http2.ErrCodeCancel
	case herrors.KindCompressionError:
		return http2.ErrCodeCompression
	case herrors.KindConnectError:
		return http2.ErrCodeConnect
	case herrors.KindEnhanceYourCalm:
		return http2.ErrCodeEnhanceYourCalm
	case herrors.KindInadequateSecurity:
		return http2.ErrCodeInadequateSecurity
	case herrors.KindHTTP11Required:
		return http2.ErrCodeHTTP11Required
	default:
		return http2.ErrCodeInternal
	}
}

// AbortStream sends RST_STREAM for streamID with the wire code mapped from
// kind and marks s (if known) closed locally, per RFC 7540 §5.4.2's stream
// error handling. s may be nil when the frame that triggered the error
// named a stream this connection never created.
func (c *Connection) AbortStream(streamID uint32, s *Stream, kind herrors.Kind) {
	code := errCodeForKind(kind)
	if s != nil {
		s.mu.Lock()
		s.State = StateClosed
		s.LastErrorCode = code
		s.noteIfClosed()
		s.mu.Unlock()
	}
	c.WriteRSTStream(streamID, code)
}

// AbortConnection sends GOAWAY naming the highest stream id this
// connection has allocated so far and the wire code mapped from kind, and
// marks the connection unusable for further streams, per RFC 7540
// §5.4.1's connection error handling.
func (c *Connection) AbortConnection(kind herrors.Kind, debug string) {
	c.mu.Lock()
	c.GoAway = true
	lastID := c.maxID
	c.mu.Unlock()
	c.WriteGoAway(lastID, errCodeForKind(kind), []byte(debug))
}
