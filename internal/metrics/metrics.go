// Package metrics is the read-only counter seam connection and stream
// lifecycle events feed into: no external exporter, just four running
// totals a caller can snapshot. It wraps go.uber.org/atomic for the same
// reason xlog wraps zap rather than hand-rolling something over
// sync/atomic.
package metrics

import "go.uber.org/atomic"

// Counters tracks connection and stream open/close events; each
// h2.Connection owns one. The zero value is ready to use.
type Counters struct {
	connsOpened   atomic.Int64
	connsClosed   atomic.Int64
	streamsOpened atomic.Int64
	streamsClosed atomic.Int64
}

func (c *Counters) ConnOpened() { c.connsOpened.Inc() }
func (c *Counters) ConnClosed() { c.connsClosed.Inc() }

func (c *Counters) StreamOpened() { c.streamsOpened.Inc() }
func (c *Counters) StreamClosed() { c.streamsClosed.Inc() }

// Snapshot is a point-in-time copy of a Counters, safe to read without
// further synchronization.
type Snapshot struct {
	ConnectionsOpened int64
	ConnectionsClosed int64
	StreamsOpened     int64
	StreamsClosed     int64
}

// Snapshot takes a read-only copy of the current totals.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		ConnectionsOpened: c.connsOpened.Load(),
		ConnectionsClosed: c.connsClosed.Load(),
		StreamsOpened:     c.streamsOpened.Load(),
		StreamsClosed:     c.streamsClosed.Load(),
	}
}
