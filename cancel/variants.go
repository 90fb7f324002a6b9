package cancel

import (
	"errors"
	"net"
	"sync/atomic"
	"time"
)

// OSError consults the last error observed by the caller; if CancelOnBlock
// is set and the error looks like a transient EWOULDBLOCK/EAGAIN (a
// net.Error with Timeout()==true from a short-deadline poll, the Go
// translation of the source's non-blocking-socket retry), it reports
// Blocking. Any other non-nil error surfaces as OSError.
type OSErrorContext struct {
	base
	CancelOnBlock bool
	err           error
}

func NewOSError(parent Context, cancelOnBlock bool) *OSErrorContext {
	return &OSErrorContext{base: base{parent: parent}, CancelOnBlock: cancelOnBlock}
}

// Observe records the error the last blocking syscall produced.
func (c *OSErrorContext) Observe(err error) { c.err = err }

func (c *OSErrorContext) OnCancel() bool {
	if c.checkParent() {
		return true
	}
	if c.err == nil {
		return false
	}
	var ne net.Error
	blocking := errors.As(c.err, &ne) && ne.Timeout()
	if c.CancelOnBlock && blocking {
		c.reason = Blocking
		c.canceled = true
		return true
	}
	if !blocking {
		c.reason = OSError
		c.canceled = true
		return true
	}
	return false
}

func (c *OSErrorContext) Cancel() bool { return false }

// SSLError surfaces a TLS failure recorded with ObserveTLS as SSLError; with
// no such failure recorded it defers to the OSError logic.
type SSLErrorContext struct {
	OSErrorContext
	sslErr error
}

func NewSSLError(parent Context, cancelOnBlock bool) *SSLErrorContext {
	return &SSLErrorContext{OSErrorContext: OSErrorContext{base: base{parent: parent}, CancelOnBlock: cancelOnBlock}}
}

// ObserveTLS records a TLS handshake/record error that isn't a plain
// net.Error (e.g. tls.RecordHeaderError, x509 errors).
func (c *SSLErrorContext) ObserveTLS(err error) { c.sslErr = err }

func (c *SSLErrorContext) OnCancel() bool {
	if c.base.checkParent() {
		return true
	}
	if c.sslErr != nil {
		c.reason = SSLError
		c.canceled = true
		return true
	}
	return c.OSErrorContext.OnCancel()
}

// MustCancel unconditionally cancels at the first suspension point; used
// for strictly non-blocking polls that must never wait.
type MustCancel struct{ base }

func NewMustCancel(parent Context) *MustCancel { return &MustCancel{base{parent: parent}} }

func (c *MustCancel) OnCancel() bool {
	if c.checkParent() {
		return true
	}
	c.reason = MustCancelReason
	c.canceled = true
	return true
}
func (c *MustCancel) Cancel() bool { return true }

// Timeout fires once the absolute deadline has passed.
type TimeoutContext struct {
	base
	deadline time.Time
}

func NewTimeout(parent Context, d time.Duration) *TimeoutContext {
	return &TimeoutContext{base: base{parent: parent}, deadline: time.Now().Add(d)}
}

func NewTimeoutAt(parent Context, deadline time.Time) *TimeoutContext {
	return &TimeoutContext{base: base{parent: parent}, deadline: deadline}
}

func (c *TimeoutContext) Deadline() time.Time { return c.deadline }

func (c *TimeoutContext) OnCancel() bool {
	if c.checkParent() {
		return true
	}
	if !c.deadline.IsZero() && time.Now().After(c.deadline) {
		c.reason = Timeout
		c.canceled = true
		return true
	}
	return false
}

// Cancel makes the timeout fire immediately.
func (c *TimeoutContext) Cancel() bool {
	c.deadline = time.Unix(0, 0)
	return true
}

// Interrupt fires when an externally-settable flag becomes true. Cancel may
// be called from another goroutine: Cancel and OnCancel share an atomic
// flag that is only ever set, never cleared.
type InterruptContext struct {
	base
	flag *boolFlag
}

type boolFlag struct{ v atomic.Bool }

func NewInterrupt(parent Context) *InterruptContext {
	return &InterruptContext{base: base{parent: parent}, flag: &boolFlag{}}
}

func (c *InterruptContext) Cancel() bool {
	c.flag.v.Store(true)
	return true
}

func (c *InterruptContext) OnCancel() bool {
	if c.checkParent() {
		return true
	}
	if c.flag.v.Load() {
		c.reason = Interrupt
		c.canceled = true
		return true
	}
	return false
}
