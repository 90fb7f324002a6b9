package h2

import (
	"net"
	"testing"
	"time"

	"github.com/kavdev/duohttp/header"
	"github.com/stretchr/testify/require"
)

// TestRoundTripGetToNoContent drives a full client/server exchange over a
// net.Pipe: a bodyless GET answered with a bodyless 204. Both sides run a
// perpetual read/apply loop from the start so neither side's handshake
// write ever blocks waiting for a reader that hasn't started yet.
func TestRoundTripGetToNoContent(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	cc := NewConnection(clientConn, RoleClient)
	sc := NewConnection(serverConn, RoleServer)

	serverErr := make(chan error, 1)
	go func() {
		if err := ExpectPreface(serverConn); err != nil {
			serverErr <- err
			return
		}
		if err := sc.Handshake(serverConn); err != nil {
			serverErr <- err
			return
		}
		for {
			f, err := sc.ReadFrame()
			if err != nil {
				serverErr <- err
				return
			}
			st, err := sc.Apply(f)
			if err != nil {
				serverErr <- err
				return
			}
			if st != nil && st.Headers.Get(header.Method) == "GET" {
				resp := header.New(header.Status, "204")
				serverErr <- sc.SendHeaders(st, resp, true)
				return
			}
		}
	}()

	type event struct {
		st  *Stream
		err error
	}
	clientEvents := make(chan event, 16)
	go func() {
		for {
			f, err := cc.ReadFrame()
			if err != nil {
				clientEvents <- event{err: err}
				return
			}
			st, err := cc.Apply(f)
			if err != nil {
				clientEvents <- event{err: err}
				return
			}
			if st != nil {
				clientEvents <- event{st: st}
				if st.Closed() {
					return
				}
			}
		}
	}()

	require.NoError(t, cc.Handshake(clientConn))

	s, err := cc.MakeStream()
	require.NoError(t, err)
	require.Equal(t, uint32(1), s.ID)

	req := header.New(
		header.Method, "GET",
		header.Scheme, "https",
		header.Authority, "example.test",
		header.Path, "/",
	)
	require.NoError(t, cc.SendHeaders(s, req, true))
	require.Equal(t, StateHalfClosedLocal, s.State)

	select {
	case ev := <-clientEvents:
		require.NoError(t, ev.err)
		require.Same(t, s, ev.st)
		require.True(t, ev.st.Closed())
		require.Equal(t, "204", ev.st.Headers.Get(header.Status))
		require.Empty(t, ev.st.Body())
	case err := <-serverErr:
		t.Fatalf("server error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
	}

	require.NoError(t, <-serverErr)
}
