package h2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestOutflowSuspendResume mirrors the flow-control suspend scenario: a
// 100,000-byte POST against a 65,535-byte initial window sends everything
// the window allows, reports the window exhausted, then accepts the rest
// once a WINDOW_UPDATE arrives.
func TestOutflowSuspendResume(t *testing.T) {
	out := newOutflow(65535)

	got := out.take(100000)
	require.Equal(t, uint32(65535), got)
	require.False(t, out.available())

	require.True(t, out.add(34465))
	require.True(t, out.available())

	got2 := out.take(34465)
	require.Equal(t, uint32(34465), got2)
	require.False(t, out.available())
}

func TestOutflowAddCanGoNegativeOnShrink(t *testing.T) {
	out := newOutflow(100)
	require.True(t, out.add(-150))
	require.False(t, out.available())
	require.True(t, out.add(200))
	require.True(t, out.available())
}

func TestInflowGrantThreshold(t *testing.T) {
	in := newInflow(65535)
	require.True(t, in.stage(60000))
	require.Equal(t, uint32(0), in.grant(1000)) // below both thresholds
	require.Equal(t, uint32(0), in.grant(2000))
	inc := in.grant(30000)
	require.True(t, inc > 0)
}

func TestOutflowRefundReturnsShortfall(t *testing.T) {
	s := newStream(1, defaultInitialWindowSize, 100)
	got := s.OutflowTake(200)
	require.Equal(t, uint32(100), got)
	s.OutflowRefund(40)
	require.Equal(t, uint32(40), s.OutflowTake(1000))
}
