// Package request defines the per-request record that is the data
// model's spine: method, parsed URL, negotiated HTTP version, an
// enumerated Phase, the request/response header maps, the body, and a flag
// set — shared by both the HTTP/1 codec and the HTTP/2 stream engine so a
// caller's method() call is version-indifferent.
package request

import (
	"bytes"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/kavdev/duohttp/header"
	"github.com/kavdev/duohttp/herrors"
)

// Phase is the discrete lifecycle state of a request, monotonic in the
// partial order Idle < Sending < Sent < Recving < Recved < BodyRecved;
// Error is absorbing.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRequestSending
	PhaseRequestSent
	PhaseResponseRecving
	PhaseResponseRecved
	PhaseBodyRecved
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRequestSending:
		return "request_sending"
	case PhaseRequestSent:
		return "request_sent"
	case PhaseResponseRecving:
		return "response_recving"
	case PhaseResponseRecved:
		return "response_recved"
	case PhaseBodyRecved:
		return "body_recved"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Advance moves to next unless the request is already in the absorbing
// Error phase, or next would move the phase backwards.
func (p *Phase) Advance(next Phase) {
	if *p == PhaseError {
		return
	}
	if next < *p {
		return
	}
	*p = next
}

// Fail unconditionally moves to the absorbing Error phase.
func (p *Phase) Fail() { *p = PhaseError }

// Flags is the request flag set.
type Flags uint8

const (
	FlagHeaderIsSmall Flags = 1 << iota // emit lowercase "host:" instead of "Host:"
	FlagNeedLen                         // caller wants Content-Length emitted even for an empty body
	FlagNotNeedLen                      // caller explicitly forbids framing by length
	FlagAllowHTTP09                     // tolerate a version-less status/request line
	FlagNoReadBody                      // close-delimited body: skip straight to body_recved with no bytes read
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// HeaderVersion is the 9/10/11/20 tag assigned per negotiated wire
// version.
type HeaderVersion int

const (
	HeaderVersionHTTP09 HeaderVersion = 9
	HeaderVersionHTTP10 HeaderVersion = 10
	HeaderVersionHTTP11 HeaderVersion = 11
	HeaderVersionHTTP2  HeaderVersion = 20
)

// Request is the single record per request/response exchange.
type Request struct {
	Method string
	URL    *url.URL

	Version       int // resolved HTTP version: 1 or 2
	Phase         Phase
	HeaderVersion HeaderVersion
	Flags         Flags

	ReqHeader  *header.Map
	RespHeader *header.Map

	// HeaderHost is the :authority/Host value the framework computed once
	// in New; any caller-supplied Host/​:authority duplicates were
	// stripped.
	HeaderHost string

	// ContentLength is the known request body length, or -1 if unknown
	// (streaming body with no declared size).
	ContentLength int64
	GetBody       func() (io.ReadCloser, error)

	RespBody io.ReadCloser

	StatusCode int
	Err        *herrors.Error
}

// New builds an idle Request from a method, a raw URL string and a header
// map (may be nil), resolving the host exactly once.
func New(method, rawURL string, h *header.Map) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, herrors.Wrap(herrors.KindParseURL, err, "parse url")
	}
	if h == nil {
		h = &header.Map{}
	} else {
		h = h.Clone()
	}

	host := u.Host
	cl := int64(-1)
	var stripKeys []string
	h.Range(func(k, v string) {
		switch strings.ToLower(k) {
		case "host", header.Authority:
			if v != "" {
				host = v
			}
			stripKeys = append(stripKeys, k)
		case "content-length":
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				cl = n
			}
			stripKeys = append(stripKeys, k)
		}
	})
	for _, k := range stripKeys {
		h.Del(k)
	}
	if host == "" {
		return nil, herrors.New(herrors.KindParseURL, "empty host")
	}

	r := &Request{
		Method:        method,
		URL:           u,
		Phase:         PhaseIdle,
		ReqHeader:     h,
		RespHeader:    &header.Map{},
		HeaderHost:    host,
		ContentLength: cl,
	}
	return r, nil
}

// SetBody installs a request body from any of the common shapes the
// teacher's updateBody() recognizes; it also fixes up ContentLength when
// the shape makes the size knowable up front.
func (r *Request) SetBody(body interface{}) error {
	switch b := body.(type) {
	case nil:
		r.GetBody = func() (io.ReadCloser, error) { return nil, nil }
	case io.ReadCloser:
		var used atomic.Bool
		r.GetBody = func() (io.ReadCloser, error) {
			if used.CompareAndSwap(false, true) {
				return b, nil
			}
			return nil, herrors.New(herrors.KindInvalidCondition, "request body read after close")
		}
	case *bytes.Buffer:
		r.ContentLength = int64(b.Len())
		buf := b.Bytes()
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(buf)), nil
		}
	case string:
		r.ContentLength = int64(len(b))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(b)), nil
		}
	case []byte:
		r.ContentLength = int64(len(b))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(b)), nil
		}
	default:
		return herrors.New(herrors.KindInvalidCondition, "unsupported body type")
	}
	return nil
}
