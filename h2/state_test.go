package h2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestDataFramesStayOpen guards against treating every non-terminal DATA
// frame as an illegal transition: a stream that has sent/received HEADERS
// without END_STREAM must accept any number of DATA frames before the one
// that finally carries END_STREAM.
func TestDataFramesStayOpen(t *testing.T) {
	s := newStream(1, defaultInitialWindowSize, defaultInitialWindowSize)
	require.NoError(t, s.applySend("send_headers", false))
	require.Equal(t, StateOpen, s.State)

	require.NoError(t, s.applySend("send_data", false))
	require.Equal(t, StateOpen, s.State)
	require.NoError(t, s.applySend("send_data", false))
	require.Equal(t, StateOpen, s.State)

	require.NoError(t, s.applySend("send_data", true))
	require.Equal(t, StateHalfClosedLocal, s.State)
}

func TestRecvDataStaysOpenThenHalfCloses(t *testing.T) {
	s := newStream(2, defaultInitialWindowSize, defaultInitialWindowSize)
	require.NoError(t, s.applyRecv("recv_headers", false))
	require.NoError(t, s.applyRecv("recv_data", false))
	require.Equal(t, StateOpen, s.State)
	require.NoError(t, s.applyRecv("recv_data", true))
	require.Equal(t, StateHalfClosedRemote, s.State)
}

func TestBothSidesCloseStream(t *testing.T) {
	s := newStream(1, defaultInitialWindowSize, defaultInitialWindowSize)
	require.NoError(t, s.applySend("send_headers", false))
	require.NoError(t, s.applySend("send_data", true))
	require.Equal(t, StateHalfClosedLocal, s.State)
	require.NoError(t, s.applyRecv("recv_headers", false))
	require.NoError(t, s.applyRecv("recv_data", true))
	require.True(t, s.Closed())
}

func TestIllegalSendAfterClose(t *testing.T) {
	s := newStream(1, defaultInitialWindowSize, defaultInitialWindowSize)
	require.NoError(t, s.applySend("send_headers", true))
	require.Equal(t, StateHalfClosedLocal, s.State)
	require.Error(t, s.applySend("send_data", false))
}

// TestBodylessRequestResponseCloses guards the common GET/204 shape: the
// client closes its own send side immediately (no body), then the
// server's end-stream response headers must still legally close the
// stream rather than being rejected as illegal in half_closed_local.
func TestBodylessRequestResponseCloses(t *testing.T) {
	s := newStream(1, defaultInitialWindowSize, defaultInitialWindowSize)
	require.NoError(t, s.applySend("send_headers", true))
	require.Equal(t, StateHalfClosedLocal, s.State)

	require.NoError(t, s.applyRecv("recv_headers", true))
	require.True(t, s.Closed())
}

// TestServerHalfClosedRemoteCanSendHeaders covers the server-side mirror:
// having already received the client's end-stream request, the server's
// own end-stream response headers must close the stream from
// half_closed_remote.
func TestServerHalfClosedRemoteCanSendHeaders(t *testing.T) {
	s := newStream(2, defaultInitialWindowSize, defaultInitialWindowSize)
	require.NoError(t, s.applyRecv("recv_headers", true))
	require.Equal(t, StateHalfClosedRemote, s.State)

	require.NoError(t, s.applySend("send_headers", true))
	require.True(t, s.Closed())
}

func TestStreamIDParity(t *testing.T) {
	require.True(t, IsClientInitiated(1))
	require.True(t, IsClientInitiated(3))
	require.False(t, IsClientInitiated(2))
	require.False(t, IsClientInitiated(0))
}
