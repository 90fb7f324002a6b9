// Package herrors holds the core's error taxonomy: open errors, HTTP/1
// framing errors, HTTP/2 error codes, and the cancel-reason kinds surfaced
// to callers, wrapping with
// github.com/pkg/errors in the style used at other package boundaries in
// this module.
package herrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is a taxonomy member, not a concrete type: every error this module
// returns carries one.
type Kind int

const (
	// Open errors.
	KindParseURL Kind = iota
	KindInvalidCondition
	KindNeedlessToReopen // soft: "kept", not a failure
	KindDNSFailure
	KindTCPFailure
	KindTLSFailure
	KindALPNMismatch

	// HTTP/1 errors.
	KindInvalidRequestFormat
	KindInvalidResponseFormat
	KindReadBody
	KindWriteFailure
	KindInvalidPhase
	KindNotAcceptVersion

	// HTTP/2 errors. The wire error codes RST_STREAM/GOAWAY actually carry
	// are the RFC 7540 §7 values produced by errCodeForKind, not these
	// iota positions.
	KindNoError
	KindProtocolError
	KindInternalError
	KindFlowControlError
	KindSettingsTimeout
	KindStreamClosed
	KindFrameSizeError
	KindRefusedStream
	KindCancel
	KindCompressionError
	KindConnectError
	KindEnhanceYourCalm
	KindInadequateSecurity
	KindHTTP11Required

	// Implementation-local pseudo-kinds.
	KindNeedWindowUpdate // transient, never surfaced to the caller
	KindNeedContinuation // internal framing signal
)

var names = map[Kind]string{
	KindParseURL:              "parse_url",
	KindInvalidCondition:      "invalid_condition",
	KindNeedlessToReopen:      "needless_to_reopen",
	KindDNSFailure:            "dns_failure",
	KindTCPFailure:            "tcp_failure",
	KindTLSFailure:            "tls_failure",
	KindALPNMismatch:          "alpn_mismatch",
	KindInvalidRequestFormat:  "invalid_request_format",
	KindInvalidResponseFormat: "invalid_response_format",
	KindReadBody:              "read_body",
	KindWriteFailure:          "write_failure",
	KindInvalidPhase:          "invalid_phase",
	KindNotAcceptVersion:      "not_accept_version",
	KindNoError:               "no_error",
	KindProtocolError:         "protocol_error",
	KindInternalError:         "internal_error",
	KindFlowControlError:      "flow_control_error",
	KindSettingsTimeout:       "settings_timeout",
	KindStreamClosed:          "stream_closed",
	KindFrameSizeError:        "frame_size_error",
	KindRefusedStream:         "refused_stream",
	KindCancel:                "cancel",
	KindCompressionError:      "compression_error",
	KindConnectError:          "connect_error",
	KindEnhanceYourCalm:       "enhance_your_calm",
	KindInadequateSecurity:    "inadequate_security",
	KindHTTP11Required:        "http_1_1_required",
	KindNeedWindowUpdate:      "need_window_update",
	KindNeedContinuation:      "need_continuation",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the one error type the public API returns: a taxonomy Kind plus
// whatever underlying cause produced it.
type Error struct {
	Kind Kind
	Err  error
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Err: errors.New(msg)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: errors.Wrap(err, msg)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, herrors.KindXxx) style kind checks work without
// exporting sentinel error values per kind.
func Is(err error, kind Kind) bool {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind == kind
	}
	return false
}

// KindOf extracts the Kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind, true
	}
	return 0, false
}

// CancelError is returned when a blocking point aborted because a
// cancel.Context fired; Reason is the cancel.Reason string (timeout,
// interrupt, os_error, ssl_error, ...), kept as a plain string here so
// this package does not need to import the cancel package.
type CancelError struct {
	Reason string
}

func NewCancelError(reason string) *CancelError { return &CancelError{Reason: reason} }

func (e *CancelError) Error() string { return "cancelled: " + e.Reason }
