package cancel

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimeoutFires(t *testing.T) {
	c := NewTimeout(Background(), time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	require.True(t, c.OnCancel())
	require.Equal(t, Timeout, c.Reason())
	require.Equal(t, Timeout, c.DeepReason())
}

func TestInterruptFromAnotherGoroutine(t *testing.T) {
	c := NewInterrupt(Background())
	require.False(t, c.OnCancel())
	done := make(chan struct{})
	go func() { c.Cancel(); close(done) }()
	<-done
	require.True(t, c.OnCancel())
	require.Equal(t, Interrupt, c.Reason())
}

func TestChildAdoptsParentReason(t *testing.T) {
	parent := NewTimeout(Background(), -time.Second) // already expired
	child := NewInterrupt(parent)
	require.True(t, child.OnCancel())
	require.Equal(t, CancelByParent, child.Reason())
	require.Equal(t, Timeout, child.DeepReason())
}

func TestMustCancelAlwaysFires(t *testing.T) {
	c := NewMustCancel(Background())
	require.True(t, c.OnCancel())
	require.Equal(t, MustCancelReason, c.Reason())
}

func TestOSErrorDistinguishesBlockingFromReal(t *testing.T) {
	c := NewOSError(Background(), true)
	c.Observe(nil)
	require.False(t, c.OnCancel())

	c.Observe(&timeoutErr{})
	require.True(t, c.OnCancel())
	require.Equal(t, Blocking, c.Reason())

	real := NewOSError(Background(), true)
	real.Observe(errors.New("connection reset by peer"))
	require.True(t, real.OnCancel())
	require.Equal(t, OSError, real.Reason())
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }
