package h1

import (
	"bufio"
	"io"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/kavdev/duohttp/h1/chunked"
	"github.com/kavdev/duohttp/header"
	"github.com/kavdev/duohttp/herrors"
	"github.com/kavdev/duohttp/request"
)

// trailerMergingReader wraps a chunked body reader and, the first time the
// wrapped Read reports io.EOF (the point at which chunked.Reader has just
// finished parsing the trailer block), folds the accumulated trailer fields
// into dst.
type trailerMergingReader struct {
	io.Reader
	trailer *textproto.MIMEHeader
	dst     *header.Map
	merged  bool
}

func (r *trailerMergingReader) Read(p []byte) (int, error) {
	n, err := r.Reader.Read(p)
	if err == io.EOF && !r.merged {
		r.merged = true
		for k, vs := range *r.trailer {
			for _, v := range vs {
				r.dst.Add(k, v)
			}
		}
	}
	return n, err
}

// ParseResponse reads a status line, headers, and installs a body reader on
// r: chunked > content-length > close-delimited > empty.
// On success r.Phase is BodyRecved only where no body bytes remain to be
// read: a Content-Length of 0, or a close-delimited body skipped because of
// NoReadBody or HEAD (RespBody is then empty). In every other case the
// phase stays ResponseRecved; reading RespBody to EOF does not advance it.
func ParseResponse(r io.Reader, req *request.Request) error {
	if req.Phase != request.PhaseRequestSent && req.Phase != request.PhaseIdle {
		req.Phase.Fail()
		return herrors.New(herrors.KindInvalidPhase, "response parse called out of phase")
	}
	req.Phase.Advance(request.PhaseResponseRecving)

	br := bufio.NewReader(r)
	tp := textproto.NewReader(br)

	line, err := tp.ReadLine()
	if err != nil {
		req.Phase.Fail()
		if err == io.EOF {
			return herrors.Wrap(herrors.KindInvalidResponseFormat, io.ErrUnexpectedEOF, "read status line")
		}
		return herrors.Wrap(herrors.KindInvalidResponseFormat, err, "read status line")
	}

	proto, rest, ok := cut(line, " ")
	if !ok {
		if req.Flags.Has(request.FlagAllowHTTP09) {
			// HTTP/0.9: the entire remaining stream is the body, no
			// status line or headers at all.
			req.HeaderVersion = request.HeaderVersionHTTP09
			req.StatusCode = 200
			return finishBody(br, req, true)
		}
		req.Phase.Fail()
		return herrors.New(herrors.KindInvalidResponseFormat, "malformed status line")
	}
	switch proto {
	case "HTTP/1.0":
		req.HeaderVersion = request.HeaderVersionHTTP10
	case "HTTP/1.1":
		req.HeaderVersion = request.HeaderVersionHTTP11
	default:
		req.Phase.Fail()
		return herrors.New(herrors.KindInvalidResponseFormat, "unsupported protocol: "+proto)
	}

	statusStr, _, _ := cut(strings.TrimLeft(rest, " "), " ")
	if len(statusStr) != 3 {
		req.Phase.Fail()
		return herrors.New(herrors.KindInvalidResponseFormat, "malformed status code")
	}
	code, err := strconv.Atoi(statusStr)
	if err != nil || code < 0 {
		req.Phase.Fail()
		return herrors.New(herrors.KindInvalidResponseFormat, "malformed status code")
	}
	req.StatusCode = code

	mh, err := tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		req.Phase.Fail()
		return herrors.Wrap(herrors.KindInvalidResponseFormat, err, "read headers")
	}
	closeConn := false
	chunkedBody := false
	hasLen := false
	size := int64(0)
	for k, vs := range mh {
		for _, v := range vs {
			v = textproto.TrimString(v)
			req.RespHeader.Add(k, v)
		}
		switch strings.ToLower(k) {
		case "connection":
			for _, v := range vs {
				if strings.EqualFold(strings.TrimSpace(v), "close") {
					closeConn = true
				}
			}
		case "transfer-encoding":
			for _, v := range vs {
				if strings.EqualFold(strings.TrimSpace(v), "chunked") {
					chunkedBody = true
				}
			}
		case "content-length":
			if len(vs) > 0 {
				first := textproto.TrimString(vs[0])
				for _, v := range vs[1:] {
					if textproto.TrimString(v) != first {
						req.Phase.Fail()
						return herrors.New(herrors.KindInvalidResponseFormat,
							"multiple conflicting Content-Length headers")
					}
				}
				if n, err := strconv.ParseInt(first, 10, 63); err == nil {
					hasLen = true
					size = n
				}
			}
		}
	}
	if closeConn {
		req.RespHeader.Set("Connection", "close")
	}
	req.Phase.Advance(request.PhaseResponseRecved)

	switch {
	case chunkedBody:
		trailer := &textproto.MIMEHeader{}
		req.RespBody = io.NopCloser(&trailerMergingReader{
			Reader:  chunked.NewReader(br, trailer),
			trailer: trailer,
			dst:     req.RespHeader,
		})
	case hasLen:
		if size == 0 {
			req.RespBody = io.NopCloser(strings.NewReader(""))
			req.Phase.Advance(request.PhaseBodyRecved)
		} else {
			req.RespBody = io.NopCloser(io.LimitReader(br, size))
		}
	default:
		return finishBody(br, req, req.Method != "HEAD")
	}
	return nil
}

// finishBody installs a close-delimited body reader, or — when readBody is
// false (NoReadBody, or a HEAD request) — transitions
// straight to BodyRecved with an empty body.
func finishBody(br *bufio.Reader, req *request.Request, readBody bool) error {
	if !readBody || req.Flags.Has(request.FlagNoReadBody) {
		req.RespBody = io.NopCloser(strings.NewReader(""))
		req.Phase.Advance(request.PhaseBodyRecved)
		return nil
	}
	req.RespBody = io.NopCloser(br)
	return nil
}

// ParseRequest is the server-side counterpart: "METHOD SP target SP
// HTTP/ver CRLF". The target is returned whole; SplitTarget splits it into
// path and optional "?query". A bare
// "METHOD SP target" (no version) is the HTTP/0.9 form, accepted only
// under AllowHTTP09.
func ParseRequest(r io.Reader, flags request.Flags) (method, target, version string, br *bufio.Reader, err error) {
	br = bufio.NewReader(r)
	tp := textproto.NewReader(br)
	line, lerr := tp.ReadLine()
	if lerr != nil {
		if lerr == io.EOF {
			lerr = io.ErrUnexpectedEOF
		}
		return "", "", "", br, herrors.Wrap(herrors.KindInvalidRequestFormat, lerr, "read request line")
	}
	parts := strings.Fields(line)
	switch len(parts) {
	case 3:
		return parts[0], parts[1], parts[2], br, nil
	case 2:
		if !flags.Has(request.FlagAllowHTTP09) {
			return "", "", "", br, herrors.New(herrors.KindNotAcceptVersion, "HTTP/0.9 request not accepted")
		}
		return parts[0], parts[1], "", br, nil
	default:
		return "", "", "", br, herrors.New(herrors.KindInvalidRequestFormat, "malformed request line")
	}
}

// ReadRequestHeaders reads the MIME header block following a request line
// already consumed by ParseRequest, and installs a body reader with
// chunked > content-length > empty precedence (a request without either
// framing header has an empty body, never a close-delimited one), with the
// request-smuggling hardening of rejecting conflicting Content-Length
// values.
func ReadRequestHeaders(br *bufio.Reader, method string) (*header.Map, io.Reader, error) {
	tp := textproto.NewReader(br)
	mh, err := tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return nil, nil, herrors.Wrap(herrors.KindInvalidRequestFormat, err, "read headers")
	}
	h := header.New()
	chunkedBody := false
	hasLen := false
	size := int64(0)
	for k, vs := range mh {
		for _, v := range vs {
			h.Add(k, textproto.TrimString(v))
		}
		switch strings.ToLower(k) {
		case "transfer-encoding":
			for _, v := range vs {
				if strings.EqualFold(strings.TrimSpace(v), "chunked") {
					chunkedBody = true
				}
			}
		case "content-length":
			if len(vs) > 0 {
				first := textproto.TrimString(vs[0])
				for _, v := range vs[1:] {
					if textproto.TrimString(v) != first {
						return nil, nil, herrors.New(herrors.KindInvalidRequestFormat,
							"multiple conflicting Content-Length headers")
					}
				}
				if n, err := strconv.ParseInt(first, 10, 63); err == nil {
					hasLen = true
					size = n
				}
			}
		}
	}
	switch {
	case chunkedBody:
		trailer := &textproto.MIMEHeader{}
		return h, &trailerMergingReader{
			Reader:  chunked.NewReader(br, trailer),
			trailer: trailer,
			dst:     h,
		}, nil
	case hasLen && size > 0:
		return h, io.LimitReader(br, size), nil
	default:
		return h, strings.NewReader(""), nil
	}
}

// SplitTarget splits a request target into path and optional "?query".
func SplitTarget(target string) (path, query string) {
	path, q, ok := cut(target, "?")
	if !ok {
		return target, ""
	}
	return path, "?" + q
}

func cut(s, sep string) (before, after string, found bool) {
	if i := strings.Index(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return s, "", false
}
