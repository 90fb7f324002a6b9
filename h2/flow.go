package h2

import "sync"

// inflowMinRefresh matches golang.org/x/net/http2's own threshold for when
// a WINDOW_UPDATE is worth sending rather than accumulated further.
const inflowMinRefresh = 4 << 10

// inflowMaxWindow is the largest legal window per RFC 7540 §6.9.1.
const inflowMaxWindow = 1<<31 - 1

// inflow tracks how much a peer is still allowed to send us.
type inflow struct {
	initial   uint32
	remaining uint32
	queued    uint32
}

func newInflow(initial uint32) *inflow {
	return &inflow{initial: initial, remaining: initial}
}

// stage accounts for sz bytes just received; false means the peer
// oversent past the advertised window, a flow-control error.
func (f *inflow) stage(sz uint32) bool {
	if f.remaining < sz {
		return false
	}
	f.remaining -= sz
	return true
}

// grant returns the WINDOW_UPDATE increment to send now (0 if none is due
// yet): a refresh is due once the queued-but-unsent credit reaches half of
// the initial window or the minimum refresh threshold, whichever is
// smaller.
func (f *inflow) grant(sz uint32) uint32 {
	f.queued += sz
	if f.queued >= f.initial/2 || f.queued >= inflowMinRefresh {
		inc := f.queued
		if inc > inflowMaxWindow {
			inc = inflowMaxWindow
		}
		f.queued = 0
		f.remaining += inc
		return inc
	}
	return 0
}

// outflow tracks how much this side is still allowed to send. remaining
// can go negative after a SETTINGS_INITIAL_WINDOW_SIZE shrink (RFC 7540
// §6.9.2), hence the signed type
type outflow struct {
	mu        sync.Mutex
	cond      *sync.Cond
	remaining int64
}

func newOutflow(initial int32) *outflow {
	o := &outflow{remaining: int64(initial)}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// available reports whether a positive send window currently exists,
// without blocking.
func (f *outflow) available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remaining > 0
}

// take reserves up to sz bytes of send window, blocking while the window is
// non-positive. Returns the amount actually reserved (<= sz).
func (f *outflow) take(sz uint32) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.remaining <= 0 {
		f.cond.Wait()
	}
	got := int64(sz)
	if f.remaining < got {
		got = f.remaining
	}
	f.remaining -= got
	return uint32(got)
}

// refund returns previously-taken-but-unused window (e.g. a downstream
// window was smaller than the amount reserved, as with min()-based DATA
// chunking).
func (f *outflow) refund(sz uint32) {
	f.mu.Lock()
	f.remaining += int64(sz)
	f.mu.Unlock()
	f.cond.Broadcast()
}

// add applies a WINDOW_UPDATE increment (or a SETTINGS_INITIAL_WINDOW_SIZE
// delta, which may be negative).
func (f *outflow) add(delta int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := f.remaining + delta
	if next > inflowMaxWindow || next < -inflowMaxWindow {
		return false
	}
	f.remaining = next
	if f.remaining > 0 {
		f.cond.Broadcast()
	}
	return true
}
