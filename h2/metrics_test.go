package h2

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestConnectionMetricsCountStreamLifecycle checks that MakeStream and a
// stream reaching its terminal state are reflected in Connection.Metrics
// without requiring a caller to instrument the protocol code itself.
func TestConnectionMetricsCountStreamLifecycle(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := NewConnection(client, RoleClient)
	require.EqualValues(t, 1, c.Metrics.Snapshot().ConnectionsOpened)

	s, err := c.MakeStream()
	require.NoError(t, err)
	require.EqualValues(t, 1, c.Metrics.Snapshot().StreamsOpened)
	require.EqualValues(t, 0, c.Metrics.Snapshot().StreamsClosed)

	require.NoError(t, s.applySend("send_headers", true))
	require.NoError(t, s.applyRecv("recv_headers", true))
	require.True(t, s.Closed())
	require.EqualValues(t, 1, c.Metrics.Snapshot().StreamsClosed)

	c.Close()
	require.EqualValues(t, 1, c.Metrics.Snapshot().ConnectionsClosed)
}
