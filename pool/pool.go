// Package pool implements the bounded per-host connection reuse structure:
// a ticket-channel admission control (Group/Pool) adapted for two
// reuse disciplines: HTTP/1 connections are checked out exclusively and
// returned with Release; an HTTP/2 connection is instead held once per
// host and shared concurrently, since its streams multiplex over one
// socket.
package pool

import (
	"context"
	"sync"

	"github.com/kavdev/duohttp/conn"
)

// Pool is one host's connection pool: an admission-ticket channel bounding
// total concurrent connections, plus a channel of idle HTTP/1 connections
// available for immediate reuse.
type Pool struct {
	tickets chan struct{}
	idle    chan conn.Conn

	mu  sync.Mutex
	h2  conn.Conn // shared multiplexed connection, nil if none negotiated yet
}

func newPool(maxConns, maxIdle int) *Pool {
	return &Pool{
		tickets: make(chan struct{}, maxConns),
		idle:    make(chan conn.Conn, maxIdle),
	}
}

// Group is a collection of per-host Pools, keyed by the caller's choice
// of key (typically "scheme://host:port").
type Group struct {
	mu              sync.Mutex
	pools           map[string]*Pool
	maxConnsPerHost int
	maxIdlePerHost  int
}

func NewGroup(maxConnsPerHost, maxIdlePerHost int) *Group {
	return &Group{pools: map[string]*Pool{}, maxConnsPerHost: maxConnsPerHost, maxIdlePerHost: maxIdlePerHost}
}

func (g *Group) pool(key string) *Pool {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.pools[key]
	if !ok {
		p = newPool(g.maxConnsPerHost, g.maxIdlePerHost)
		g.pools[key] = p
	}
	return p
}

// H2 returns the shared multiplexed connection for key, if one is already
// negotiated and still open.
func (g *Group) H2(key string) (conn.Conn, bool) {
	p := g.pool(key)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.h2 != nil && p.h2.IsOpen() {
		return p.h2, true
	}
	return nil, false
}

// AdoptH2 installs c as key's shared multiplexed connection, closing any
// existing one, a replace-on-handshake behavior.
func (g *Group) AdoptH2(key string, c conn.Conn) {
	p := g.pool(key)
	p.mu.Lock()
	old := p.h2
	p.h2 = c
	p.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

// Get returns an idle HTTP/1 connection for key if one is available,
// else dials a new one, blocking if the host is already at its connection
// cap and has no idle connection. Every successful Get must be paired
// with exactly one Release or Discard.
func (g *Group) Get(ctx context.Context, key string, dial func(ctx context.Context) (conn.Conn, error)) (conn.Conn, error) {
	p := g.pool(key)
	for {
		select {
		case c := <-p.idle:
			if c.IsOpen() {
				return c, nil
			}
			<-p.tickets // the closed idle conn's ticket is now free
		case p.tickets <- struct{}{}:
			c, err := dial(ctx)
			if err != nil {
				<-p.tickets
				return nil, err
			}
			return c, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release returns a still-open HTTP/1 connection to the idle set for key,
// or discards it (freeing its ticket) if the idle set is already full.
func (g *Group) Release(key string, c conn.Conn) {
	p := g.pool(key)
	if !c.IsOpen() {
		select {
		case <-p.tickets:
		default:
		}
		return
	}
	select {
	case p.idle <- c:
	default:
		c.Close()
		select {
		case <-p.tickets:
		default:
		}
	}
}

// Discard closes c and frees its admission ticket without offering it for
// reuse, for connections the caller knows are no longer in a reusable
// state (mid-error, wrong phase, etc).
func (g *Group) Discard(key string, c conn.Conn) {
	c.Close()
	p := g.pool(key)
	select {
	case <-p.tickets:
	default:
	}
}
