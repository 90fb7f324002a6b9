// Package h1 implements the HTTP/1.x codec: request and response
// serialization, a streaming phase-tracked parser, and
// chunked/content-length/close-delimited body framing.
package h1

import (
	"bufio"
	"io"
	"strconv"

	"github.com/kavdev/duohttp/h1/chunked"
	"github.com/kavdev/duohttp/header"
	"github.com/kavdev/duohttp/herrors"
	"github.com/kavdev/duohttp/request"
)

// WriteRequest serializes r onto w: "METHOD SP path[?query] SP HTTP/1.1
// CRLF", the mandatory Host header, user headers (host/content-length
// stripped, duplicates otherwise preserved), an inserted Content-Length
// when the body is non-empty or NeedLen is set, the terminating CRLF, and
// the body bytes.
func WriteRequest(w io.Writer, r *request.Request) error {
	r.Phase.Advance(request.PhaseRequestSending)

	var body io.ReadCloser
	if r.GetBody != nil {
		b, err := r.GetBody()
		if err != nil {
			r.Phase.Fail()
			return herrors.Wrap(herrors.KindWriteFailure, err, "get body")
		}
		body = b
	}
	if body != nil {
		defer body.Close()
	}

	bw := bufio.NewWriter(w)
	target := r.URL.RequestURI()
	if _, err := bw.WriteString(r.Method); err != nil {
		return err
	}
	bw.WriteByte(' ')
	bw.WriteString(target)
	bw.WriteString(" HTTP/1.1\r\n")

	hostKey := "Host: "
	if r.Flags.Has(request.FlagHeaderIsSmall) {
		hostKey = "host: "
	}
	bw.WriteString(hostKey)
	bw.WriteString(r.HeaderHost)
	bw.WriteString("\r\n")

	needLen := r.ContentLength > 0 || (r.Flags.Has(request.FlagNeedLen) && !r.Flags.Has(request.FlagNotNeedLen))
	if needLen {
		cl := r.ContentLength
		if cl < 0 {
			cl = 0
		}
		bw.WriteString("Content-Length: ")
		bw.WriteString(strconv.FormatInt(cl, 10))
		bw.WriteString("\r\n")
	}

	r.ReqHeader.Range(func(k, v string) {
		if header.IsPseudo(k) {
			return
		}
		bw.WriteString(k)
		bw.WriteString(": ")
		bw.WriteString(v)
		bw.WriteString("\r\n")
	})
	bw.WriteString("\r\n")
	if err := bw.Flush(); err != nil {
		r.Phase.Fail()
		return herrors.Wrap(herrors.KindWriteFailure, err, "flush request header")
	}

	if body != nil {
		if _, err := io.Copy(w, body); err != nil {
			r.Phase.Fail()
			return herrors.Wrap(herrors.KindWriteFailure, err, "write request body")
		}
	}
	r.Phase.Advance(request.PhaseRequestSent)
	return nil
}

// WriteResponse serializes a status line, RespHeader, and body onto w:
// "HTTP/1.1 <code> <reason> CRLF". body may be nil for an empty response.
func WriteResponse(w io.Writer, r *request.Request, body io.Reader, dav bool) error {
	bw := bufio.NewWriter(w)
	code := ClampStatus(r.StatusCode)
	bw.WriteString("HTTP/1.1 ")
	bw.WriteString(strconv.Itoa(code))
	bw.WriteByte(' ')
	bw.WriteString(ReasonPhrase(code, dav))
	bw.WriteString("\r\n")

	r.RespHeader.Range(func(k, v string) {
		if header.IsPseudo(k) {
			return
		}
		bw.WriteString(k)
		bw.WriteString(": ")
		bw.WriteString(v)
		bw.WriteString("\r\n")
	})
	bw.WriteString("\r\n")
	if err := bw.Flush(); err != nil {
		return herrors.Wrap(herrors.KindWriteFailure, err, "flush response header")
	}
	if body != nil {
		if _, err := io.Copy(w, body); err != nil {
			return herrors.Wrap(herrors.KindWriteFailure, err, "write response body")
		}
	}
	return nil
}

// WriteChunkedResponse is WriteResponse's streaming counterpart: it emits
// Transfer-Encoding: chunked and copies body through a chunked.Writer,
// used when the response body length isn't known up front.
func WriteChunkedResponse(w io.Writer, r *request.Request, body io.Reader, dav bool) error {
	r.RespHeader.Set("Transfer-Encoding", "chunked")
	bw := bufio.NewWriter(w)
	code := ClampStatus(r.StatusCode)
	bw.WriteString("HTTP/1.1 ")
	bw.WriteString(strconv.Itoa(code))
	bw.WriteByte(' ')
	bw.WriteString(ReasonPhrase(code, dav))
	bw.WriteString("\r\n")
	r.RespHeader.Range(func(k, v string) {
		if header.IsPseudo(k) {
			return
		}
		bw.WriteString(k)
		bw.WriteString(": ")
		bw.WriteString(v)
		bw.WriteString("\r\n")
	})
	bw.WriteString("\r\n")
	if err := bw.Flush(); err != nil {
		return herrors.Wrap(herrors.KindWriteFailure, err, "flush chunked response header")
	}
	cw := chunked.NewWriter(w)
	if body != nil {
		if _, err := io.Copy(cw, body); err != nil {
			return herrors.Wrap(herrors.KindWriteFailure, err, "write chunked response body")
		}
	}
	return cw.Close()
}
