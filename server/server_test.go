package server

import (
	"net"
	"testing"
	"time"

	"github.com/kavdev/duohttp/h2"
	"github.com/kavdev/duohttp/header"
	"github.com/kavdev/duohttp/internal/xlog"
	"github.com/stretchr/testify/require"
)

// TestServeH2BodylessRequestDoesNotDeadlock drives serveH2 with a real
// bodyless GET: the request stream reaches half_closed_remote (not
// closed) the moment the client's END_STREAM HEADERS arrive, and serveH2
// must dispatch to Handler then rather than blocking on Closed().
func TestServeH2BodylessRequestDoesNotDeadlock(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	s := &Server{Log: xlog.Nop(), Handler: func(r *Request) *Response {
		return &Response{StatusCode: 204}
	}}

	done := make(chan struct{})
	go func() {
		s.serveH2(serverConn)
		close(done)
	}()

	cc := h2.NewConnection(clientConn, h2.RoleClient)
	clientEvents := make(chan *h2.Stream, 4)
	clientErr := make(chan error, 1)
	go func() {
		for {
			f, err := cc.ReadFrame()
			if err != nil {
				clientErr <- err
				return
			}
			st, err := cc.Apply(f)
			if err != nil {
				clientErr <- err
				return
			}
			if st != nil && st.Closed() {
				clientEvents <- st
				return
			}
		}
	}()

	require.NoError(t, cc.Handshake(clientConn))
	stream, err := cc.MakeStream()
	require.NoError(t, err)

	req := header.New(
		header.Method, "GET",
		header.Scheme, "https",
		header.Authority, "example.test",
		header.Path, "/",
	)
	require.NoError(t, cc.SendHeaders(stream, req, true))

	select {
	case st := <-clientEvents:
		require.Equal(t, "204", st.Headers.Get(header.Status))
	case err := <-clientErr:
		t.Fatalf("client error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response: serveH2 likely deadlocked")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("serveH2 did not return")
	}
}
