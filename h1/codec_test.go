package h1

import (
	"bytes"
	"io"
	"strconv"
	"testing"

	"github.com/kavdev/duohttp/header"
	"github.com/kavdev/duohttp/request"
	"github.com/stretchr/testify/require"
)

func newReq(t *testing.T, method, url string) *request.Request {
	t.Helper()
	r, err := request.New(method, url, header.New())
	require.NoError(t, err)
	return r
}

func TestWriteRequestGetHello(t *testing.T) {
	r := newReq(t, "GET", "http://example.test/hello")
	var buf bytes.Buffer
	require.NoError(t, WriteRequest(&buf, r))
	require.Equal(t, "GET /hello HTTP/1.1\r\nHost: example.test\r\n\r\n", buf.String())
	require.Equal(t, request.PhaseRequestSent, r.Phase)
}

func TestParseResponseContentLength(t *testing.T) {
	r := newReq(t, "GET", "http://example.test/hello")
	r.Phase = request.PhaseRequestSent
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nworld"
	require.NoError(t, ParseResponse(bytes.NewReader([]byte(raw)), r))
	require.Equal(t, 200, r.StatusCode)
	b, err := io.ReadAll(r.RespBody)
	require.NoError(t, err)
	require.Equal(t, "world", string(b))
}

func TestParseResponseChunked(t *testing.T) {
	r := newReq(t, "GET", "http://example.test/hello")
	r.Phase = request.PhaseRequestSent
	raw := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"
	require.NoError(t, ParseResponse(bytes.NewReader([]byte(raw)), r))
	b, err := io.ReadAll(r.RespBody)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(b))
}

func TestChunkedEqualsContentLengthReassembly(t *testing.T) {
	body := "the quick brown fox jumps over the lazy dog"

	r1 := newReq(t, "GET", "http://example.test/a")
	r1.Phase = request.PhaseRequestSent
	raw1 := "HTTP/1.1 200 OK\r\nContent-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body
	require.NoError(t, ParseResponse(bytes.NewReader([]byte(raw1)), r1))
	b1, _ := io.ReadAll(r1.RespBody)

	r2 := newReq(t, "GET", "http://example.test/a")
	r2.Phase = request.PhaseRequestSent
	raw2 := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		itoaHex(len(body)) + "\r\n" + body + "\r\n0\r\n\r\n"
	require.NoError(t, ParseResponse(bytes.NewReader([]byte(raw2)), r2))
	b2, _ := io.ReadAll(r2.RespBody)

	require.Equal(t, string(b1), string(b2))
}

func TestContentLengthZeroEmission(t *testing.T) {
	r := newReq(t, "POST", "http://example.test/x")
	r.Flags |= request.FlagNeedLen
	var buf bytes.Buffer
	require.NoError(t, WriteRequest(&buf, r))
	require.Contains(t, buf.String(), "Content-Length: 0\r\n")

	r2 := newReq(t, "POST", "http://example.test/x")
	var buf2 bytes.Buffer
	require.NoError(t, WriteRequest(&buf2, r2))
	require.NotContains(t, buf2.String(), "Content-Length")
}

func TestStatusClamp(t *testing.T) {
	require.Equal(t, 500, ClampStatus(999))
	require.Equal(t, 500, ClampStatus(0))
	require.Equal(t, 200, ClampStatus(200))
}

func itoaHex(n int) string {
	const hex = "0123456789abcdef"
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{hex[n%16]}, b...)
		n /= 16
	}
	return string(b)
}
