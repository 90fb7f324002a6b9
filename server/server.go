// Package server implements the per-connection request cycle: a
// single-shot accept loop hands each accepted transport
// to a worker, which parses one request, invokes the caller's Handler,
// writes one response, and closes. Pipelining and keep-alive are out of
// scope for the core; Connection: close is emitted on every response.
package server

import (
	"bytes"
	"crypto/tls"
	"io"
	"net"
	"strconv"

	"github.com/kavdev/duohttp/h1"
	"github.com/kavdev/duohttp/h2"
	"github.com/kavdev/duohttp/header"
	"github.com/kavdev/duohttp/herrors"
	"github.com/kavdev/duohttp/internal/workerpool"
	"github.com/kavdev/duohttp/internal/xlog"
	"github.com/kavdev/duohttp/request"
	"go.uber.org/zap"
)

// Request is what a Handler sees: method, target, and the already-framed
// body, version-indifferent.
type Request struct {
	Method  string
	Path    string
	Query   string
	Header  *header.Map
	Body    io.Reader
	Version int // 1 or 2
}

// Response is what a Handler returns; Body may be nil for an empty
// response.
type Response struct {
	StatusCode int
	Header     *header.Map
	Body       io.Reader
}

// Handler answers one request. It must not retain Body past return.
type Handler func(*Request) *Response

// Server owns a listener and a bounded worker pool dispatching accepted
// connections: a synchronous per-connection model with goroutine dispatch
// shaped after a core/engine style worker loop.
type Server struct {
	Addr      string
	TLSConfig *tls.Config
	Handler   Handler
	Workers   int
	Queue     int
	Log       *xlog.Logger

	listener net.Listener
}

// ListenAndServe opens Addr and runs the accept loop until the listener
// is closed or an unrecoverable accept error occurs.
func (s *Server) ListenAndServe() error {
	if s.Log == nil {
		s.Log = xlog.Nop()
	}
	workers, queue := s.Workers, s.Queue
	if workers <= 0 {
		workers = 32
	}
	if queue <= 0 {
		queue = 256
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return herrors.Wrap(herrors.KindTCPFailure, err, "listen")
	}
	if s.TLSConfig != nil {
		cfg := s.TLSConfig.Clone()
		if len(cfg.NextProtos) == 0 {
			cfg.NextProtos = []string{"h2", "http/1.1"}
		}
		ln = tls.NewListener(ln, cfg)
	}
	s.listener = ln

	pool := workerpool.New(workers, queue)
	defer pool.Close()

	for {
		c, err := ln.Accept()
		if err != nil {
			return herrors.Wrap(herrors.KindTCPFailure, err, "accept")
		}
		pool.Submit(func() { s.serveOne(c) })
	}
}

// Close stops the accept loop by closing the listener; in-flight workers
// finish their one request before the pool drains.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// serveOne is the single-shot worker body: parse one request, call
// Handler, write one response, close. No keep-alive, no pipelining.
func (s *Server) serveOne(c net.Conn) {
	defer c.Close()

	if tc, ok := c.(*tls.Conn); ok {
		if err := tc.Handshake(); err != nil {
			s.Log.Warn("tls handshake failed", zap.Error(err))
			return
		}
		if tc.ConnectionState().NegotiatedProtocol == "h2" {
			s.serveH2(tc)
			return
		}
	}
	s.serveH1(c)
}

func (s *Server) serveH1(c net.Conn) {
	method, target, _, br, err := h1.ParseRequest(c, 0)
	if err != nil {
		s.Log.Warn("request line parse failed", zap.Error(err))
		return
	}
	h, body, err := h1.ReadRequestHeaders(br, method)
	if err != nil {
		s.Log.Warn("request header parse failed", zap.Error(err))
		return
	}
	path, query := h1.SplitTarget(target)

	resp := s.Handler(&Request{Method: method, Path: path, Query: query, Header: h, Body: body, Version: 1})
	if resp == nil {
		resp = &Response{StatusCode: 500}
	}

	req := &request.Request{
		Method:     method,
		StatusCode: resp.StatusCode,
		RespHeader: resp.Header,
	}
	if req.RespHeader == nil {
		req.RespHeader = header.New()
	}
	req.RespHeader.Set("Connection", "close")

	if err := h1.WriteResponse(c, req, resp.Body, false); err != nil {
		s.Log.Warn("write response failed", zap.Error(err))
	}
}

// serveH2 runs a single HTTP/2 exchange: preface+SETTINGS handshake, one
// HEADERS(+DATA)* request, one Handler call, one HEADERS(+DATA) response.
// Multiple concurrent streams are out of scope for this single-shot server
// cycle.
func (s *Server) serveH2(c net.Conn) {
	conn := h2.NewConnection(c, h2.RoleServer)
	if err := h2.ExpectPreface(c); err != nil {
		conn.AbortConnection(herrors.KindProtocolError, "bad connection preface")
		s.Log.Warn("bad h2 preface", zap.Error(err))
		return
	}
	if err := conn.Handshake(c); err != nil {
		s.Log.Warn("h2 handshake failed", zap.Error(err))
		return
	}

	// Wait for the request stream to reach half_closed_remote (its
	// HEADERS+DATA* fully received), not Closed: a bodyless request
	// leaves the stream open on the response side, and this single-shot
	// cycle's own response HEADERS is what eventually closes it. Blocking
	// on Closed() here would deadlock against a client doing the same.
	var st *h2.Stream
	for st == nil || !st.HalfClosedRemote() {
		f, err := conn.ReadFrame()
		if err != nil {
			s.Log.Warn("h2 read frame failed", zap.Error(err))
			return
		}
		applied, err := conn.Apply(f)
		if err != nil {
			s.Log.Warn("h2 apply frame failed", zap.Error(err))
			return
		}
		if applied != nil {
			st = applied
		}
	}

	h := header.New()
	st.Headers.Range(func(k, v string) {
		if !header.IsPseudo(k) {
			h.Add(k, v)
		}
	})
	resp := s.Handler(&Request{
		Method:  st.Headers.Get(header.Method),
		Path:    st.Path,
		Query:   st.Query,
		Header:  h,
		Body:    bytes.NewReader(st.Body()),
		Version: 2,
	})
	if resp == nil {
		resp = &Response{StatusCode: 500}
	}
	if resp.Header == nil {
		resp.Header = header.New()
	}

	respHeaders := header.New()
	respHeaders.Add(header.Status, strconv.Itoa(resp.StatusCode))
	resp.Header.Range(func(k, v string) {
		if !header.IsPseudo(k) {
			respHeaders.Add(k, v)
		}
	})

	var payload []byte
	if resp.Body != nil {
		b, _ := io.ReadAll(resp.Body)
		payload = b
	}
	if err := conn.SendHeaders(st, respHeaders, len(payload) == 0); err != nil {
		s.Log.Warn("h2 send headers failed", zap.Error(err))
		return
	}
	if len(payload) > 0 {
		if err := conn.SendBody(st, payload, true); err != nil {
			s.Log.Warn("h2 send data failed", zap.Error(err))
		}
	}
}

