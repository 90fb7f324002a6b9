// Package duohttp is the version-multiplexed client: a
// single Method() call that works unchanged whether the live connection
// negotiated HTTP/1.1 or HTTP/2, built on root-level Client/dialer wiring
// adapted onto this module's h1/h2 engines.
package duohttp

import (
	"context"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/kavdev/duohttp/cancel"
	"github.com/kavdev/duohttp/conn"
	"github.com/kavdev/duohttp/dial"
	"github.com/kavdev/duohttp/h1"
	"github.com/kavdev/duohttp/h2"
	"github.com/kavdev/duohttp/header"
	"github.com/kavdev/duohttp/herrors"
	"github.com/kavdev/duohttp/internal/metrics"
	"github.com/kavdev/duohttp/internal/xlog"
	"github.com/kavdev/duohttp/pool"
	"github.com/kavdev/duohttp/request"
	"go.uber.org/zap"
)

// IPMode restricts which address family dialing may resolve to.
type IPMode int

const (
	IPModeBoth IPMode = iota
	IPModeV4Only
	IPModeV6Only
)

// Options configures a Client: IP mode, proxy, dial timeout and logger.
// CACertPath and URLEncoded are carried in the struct, but NewClient does
// not read them.
type Options struct {
	CACertPath  string
	URLEncoded  bool
	IPMode      IPMode
	ProxyHost   string
	ProxyPort   string
	DialTimeout time.Duration
	Logger      *xlog.Logger
}

var defaultPool = pool.NewGroup(100, 16)

// Client is the single version-indifferent handle for a request/response
// exchange. Zero value is not usable; construct with NewClient.
type Client struct {
	mu   sync.Mutex
	opts Options
	dialer *dial.CoreDialer
	pool   *pool.Group
	log    *xlog.Logger

	endpoint *url.URL // scheme+host+port of the current transport, nil if closed
	key      string

	c       conn.Conn
	version int // 0 (closed), 1, or 2
	h2conn  *h2.Connection

	lastErr *herrors.Error
}

// NewClient builds an idle Client. Call Open before Method.
func NewClient(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = xlog.Nop()
	}
	network := ""
	switch opts.IPMode {
	case IPModeV4Only:
		network = "ip4"
	case IPModeV6Only:
		network = "ip6"
	}
	dialerOpts := []dial.DialerOption{dial.WithResolveConfig(&dial.ResolveConfig{Network: network})}
	if opts.ProxyHost != "" {
		proxyURL := "http://" + opts.ProxyHost
		if opts.ProxyPort != "" {
			proxyURL += ":" + opts.ProxyPort
		}
		dialerOpts = append(dialerOpts, dial.WithProxy(proxyURL))
	}
	d := dial.NewCoreDialer(dialerOpts...)
	return &Client{opts: opts, dialer: d, pool: defaultPool, log: opts.Logger}
}

func endpointKey(u *url.URL) string {
	host, port := u.Host, ""
	if h, p, err := net.SplitHostPort(host); err == nil {
		host, port = h, p
	} else if u.Scheme == "https" {
		port = "443"
	} else {
		port = "80"
	}
	return u.Scheme + "://" + host + ":" + port
}

// Open parses rawURL, dials a transport (plain or TLS), and installs the
// HTTP/1 or HTTP/2 engine per the negotiated ALPN.
func (cl *Client) Open(rawURL string) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	u, err := url.Parse(rawURL)
	if err != nil {
		cl.fail(herrors.KindParseURL, err, "parse url")
		return cl.lastErr
	}
	return cl.openLocked(u)
}

func (cl *Client) openLocked(u *url.URL) error {
	key := endpointKey(u)
	ctx := context.Background()
	if cl.opts.DialTimeout > 0 {
		var cancelFn context.CancelFunc
		ctx, cancelFn = context.WithTimeout(ctx, cl.opts.DialTimeout)
		defer cancelFn()
	}

	if c, ok := cl.pool.H2(key); ok {
		cl.setTransport(u, key, c, c.SelectedALPN())
		return nil
	}

	c, err := cl.pool.Get(ctx, key, func(ctx context.Context) (conn.Conn, error) {
		return cl.dialer.Dial(ctx, u)
	})
	if err != nil {
		cl.fail(herrors.KindTCPFailure, err, "dial")
		return cl.lastErr
	}
	cl.setTransport(u, key, c, c.SelectedALPN())
	if cl.version == 2 {
		cl.pool.AdoptH2(key, c)
		if err := cl.h2conn.Handshake(conn.NewIOAdapter(c, cl.opts.DialTimeout, cancel.Background())); err != nil {
			cl.fail(herrors.KindTCPFailure, err, "h2 handshake")
			return cl.lastErr
		}
	}
	cl.lastErr = nil
	return nil
}

func (cl *Client) setTransport(u *url.URL, key string, c conn.Conn, alpn string) {
	cl.endpoint = u
	cl.key = key
	cl.c = c
	cl.log.Info("transport established", zap.String("host", u.Host), zap.String("alpn", alpn))
	if alpn == "h2" {
		cl.version = 2
		cl.h2conn = h2.NewConnection(conn.NewIOAdapter(c, cl.opts.DialTimeout, cancel.Background()), h2.RoleClient)
	} else {
		cl.version = 1
		cl.h2conn = nil
	}
}

// Reopen reuses the existing transport iff (host, port, scheme) match and
// the socket is still open; otherwise it tears down and redials. Version
// may only flip if the new ALPN differs.
func (cl *Client) Reopen(rawURL string) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	u, err := url.Parse(rawURL)
	if err != nil {
		cl.fail(herrors.KindParseURL, err, "parse url")
		return cl.lastErr
	}
	if cl.endpoint != nil && endpointKey(u) == cl.key && cl.c != nil && cl.c.IsOpen() {
		cl.endpoint = u
		cl.lastErr = nil
		return nil
	}
	cl.closeLocked()
	return cl.openLocked(u)
}

// Method sends one request and blocks for the full response, version
// agnostic.
func (cl *Client) Method(verb, path string, h *header.Map, body interface{}, cc cancel.Context) (*header.Map, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cc == nil {
		cc = cancel.Background()
	}
	if cl.endpoint == nil || cl.c == nil {
		return nil, herrors.New(herrors.KindInvalidCondition, "client not open")
	}

	target := *cl.endpoint
	target.Path = path
	req, err := request.New(verb, target.String(), h)
	if err != nil {
		return nil, err
	}
	if err := req.SetBody(body); err != nil {
		return nil, err
	}

	if cl.version == 2 {
		return cl.method2(req, cc)
	}
	return cl.method1(req, cc)
}

func (cl *Client) method1(req *request.Request, cc cancel.Context) (*header.Map, error) {
	rw := conn.NewIOAdapter(cl.c, cl.opts.DialTimeout, cc)
	if req.Method == "HEAD" {
		req.Flags |= request.FlagNoReadBody
	}
	if err := h1.WriteRequest(rw, req); err != nil {
		cl.pool.Discard(cl.key, cl.c)
		cl.c = nil
		return nil, err
	}
	if err := h1.ParseResponse(rw, req); err != nil {
		cl.pool.Discard(cl.key, cl.c)
		cl.c = nil
		return nil, err
	}
	if req.Method != "HEAD" && req.StatusCode != 204 && req.StatusCode != 304 {
		b, err := io.ReadAll(req.RespBody)
		if err != nil {
			cl.pool.Discard(cl.key, cl.c)
			cl.c = nil
			return nil, herrors.Wrap(herrors.KindReadBody, err, "read response body")
		}
		req.RespHeader.Add(header.Body, string(b))
	}
	if req.RespHeader.Get("Connection") == "close" {
		cl.c.Close()
		cl.c = nil
	}
	return req.RespHeader, nil
}

func (cl *Client) method2(req *request.Request, cc cancel.Context) (*header.Map, error) {
	s, err := cl.h2conn.MakeStream()
	if err != nil {
		return nil, err
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	var payload []byte
	if body != nil {
		defer body.Close()
		buf := make([]byte, 0, 4096)
		tmp := make([]byte, 4096)
		for {
			n, rerr := body.Read(tmp)
			buf = append(buf, tmp[:n]...)
			if rerr != nil {
				break
			}
		}
		payload = buf
	}

	hm := header.New()
	hm.Add(header.Method, req.Method)
	hm.Add(header.Scheme, cl.endpoint.Scheme)
	hm.Add(header.Authority, req.HeaderHost)
	hm.Add(header.Path, requestTarget(req))
	req.ReqHeader.Range(func(k, v string) {
		if !header.IsPseudo(k) {
			hm.Add(k, v)
		}
	})

	noBody := len(payload) == 0
	if err := cl.h2conn.SendHeaders(s, hm, noBody); err != nil {
		return nil, err
	}
	if !noBody {
		if err := cl.h2conn.SendBody(s, payload, true); err != nil {
			return nil, err
		}
	}

	for !s.Closed() {
		f, err := cl.h2conn.ReadFrame()
		if err != nil {
			return nil, herrors.Wrap(herrors.KindInvalidResponseFormat, err, "read h2 frame")
		}
		if _, err := cl.h2conn.Apply(f); err != nil {
			return nil, err
		}
	}

	s.Headers.Add(header.Body, string(s.Body()))
	return s.Headers, nil
}

func requestTarget(req *request.Request) string {
	if req.URL.RawQuery == "" {
		return req.URL.Path
	}
	return req.URL.Path + "?" + req.URL.RawQuery
}

// Host returns the current endpoint's host[:port].
func (cl *Client) Host() string {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.endpoint == nil {
		return ""
	}
	return cl.endpoint.Host
}

// URL returns the current endpoint's full URL.
func (cl *Client) URL() string {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.endpoint == nil {
		return ""
	}
	return cl.endpoint.String()
}

// IPAddress returns the peer address of the live transport, "" if closed.
func (cl *Client) IPAddress() string {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.c == nil {
		return ""
	}
	return cl.c.PeerAddress()
}

// HTTPVersion returns the version (1 or 2) installed by the last Open or
// Reopen, or 0 before Open and after Close. A transport dropped inside
// Method (an error, or Connection: close) leaves the version unchanged.
func (cl *Client) HTTPVersion() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.version
}

// Close tears down the current transport.
func (cl *Client) Close() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.closeLocked()
	return nil
}

func (cl *Client) closeLocked() {
	if cl.c != nil && cl.version == 1 {
		cl.pool.Release(cl.key, cl.c)
	}
	if cl.h2conn != nil {
		cl.h2conn.Close()
	}
	cl.c = nil
	cl.h2conn = nil
	cl.endpoint = nil
	cl.version = 0
}

// Metrics returns a read-only snapshot of connection/stream counters for
// the current HTTP/2 transport. The zero value is returned over HTTP/1 or
// before any transport is open.
func (cl *Client) Metrics() metrics.Snapshot {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.h2conn == nil {
		return metrics.Snapshot{}
	}
	return cl.h2conn.Metrics.Snapshot()
}

func (cl *Client) fail(kind herrors.Kind, err error, msg string) {
	cl.lastErr = herrors.Wrap(kind, err, msg)
	cl.log.Error(msg, zap.Error(cl.lastErr))
}
