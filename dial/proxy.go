package dial

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"io"
	"net"
	"net/url"

	"github.com/kavdev/duohttp/h1"
	"github.com/kavdev/duohttp/header"
	"github.com/kavdev/duohttp/herrors"
	"github.com/kavdev/duohttp/request"
)

// ProxyConfig controls how a CoreDialer tunnels through an HTTP(S) proxy.
type ProxyConfig struct {
	TLSConfig      *tls.Config
	ResolveLocally bool
	ResolveConfig  *ResolveConfig
}

func (c *ProxyConfig) Clone() *ProxyConfig {
	if c == nil {
		return nil
	}
	return &ProxyConfig{TLSConfig: c.TLSConfig, ResolveLocally: c.ResolveLocally, ResolveConfig: c.ResolveConfig.Clone()}
}

var schemePort = map[string]string{"http": "80", "https": "443"}

// dialOverProxy opens a TCP (optionally TLS) connection to proxy, then
// issues a CONNECT for remote's host:port, reusing the HTTP/1 codec for
// the tunnel-establishment exchange. On success the returned net.Conn is
// a raw byte pipe to remote, ready for a TLS handshake or plaintext use.
func (d *CoreDialer) dialOverProxy(ctx context.Context, remote, proxy *url.URL) (net.Conn, error) {
	if proxy.Scheme != "http" && proxy.Scheme != "https" {
		return nil, herrors.New(herrors.KindInvalidCondition, "unsupported proxy scheme: "+proxy.Scheme)
	}
	hostport := proxy.Host
	if proxy.Port() == "" {
		hostport = proxy.Hostname() + ":" + schemePort[proxy.Scheme]
	}

	conn, err := zeroDialer.DialContext(ctx, "tcp", hostport)
	if err != nil {
		return nil, herrors.Wrap(herrors.KindTCPFailure, err, "dial proxy")
	}

	if proxy.Scheme == "https" {
		cfg := d.ProxyConfig.TLSConfig
		if cfg == nil {
			cfg = d.TLSConfig
		}
		tc := tls.Client(conn, cfg)
		if err := tc.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, herrors.Wrap(herrors.KindTLSFailure, err, "tls handshake with proxy")
		}
		conn = tc
	}

	remoteHost, remotePort := remote.Host, schemePort[remote.Scheme]
	if h, p, err := net.SplitHostPort(remoteHost); err == nil {
		remoteHost, remotePort = h, p
	}

	if d.ProxyConfig != nil && d.ProxyConfig.ResolveLocally {
		cfg := d.ProxyConfig.ResolveConfig
		if cfg == nil {
			cfg = d.ResolveConfig
		}
		ips, err := lookup(ctx, cfg, remoteHost)
		if err != nil {
			conn.Close()
			return nil, herrors.Wrap(herrors.KindDNSFailure, err, "resolve proxy target")
		}
		if len(ips) == 0 {
			conn.Close()
			return nil, herrors.New(herrors.KindDNSFailure, "no addresses for "+remoteHost)
		}
		remoteHost = ips[0].String()
	}

	h := header.New()
	if auth := proxy.User.String(); auth != "" {
		h.Add("Proxy-Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(auth)))
	}
	req := &request.Request{
		Method:        "CONNECT",
		ReqHeader:     h,
		RespHeader:    header.New(),
		HeaderHost:    remote.Host,
		ContentLength: -1,
		GetBody:       func() (io.ReadCloser, error) { return nil, nil },
		Flags:         request.FlagNoReadBody,
	}
	req.URL = &url.URL{Host: net.JoinHostPort(remoteHost, remotePort), Path: net.JoinHostPort(remoteHost, remotePort)}

	if err := writeConnect(conn, req, remoteHost, remotePort); err != nil {
		conn.Close()
		return nil, err
	}
	if err := h1.ParseResponse(conn, req); err != nil {
		conn.Close()
		return nil, herrors.Wrap(herrors.KindInvalidResponseFormat, err, "read proxy CONNECT response")
	}
	if req.StatusCode != 200 {
		conn.Close()
		return nil, herrors.New(herrors.KindConnectError, "proxy CONNECT refused")
	}
	return conn, nil
}

// writeConnect writes the request line and headers for a CONNECT tunnel
// request by hand: CONNECT's request-target is authority-form ("host:port"),
// which h1.WriteRequest's origin-form writer does not produce.
func writeConnect(w io.Writer, req *request.Request, host, port string) error {
	req.Phase.Advance(request.PhaseRequestSending)
	target := net.JoinHostPort(host, port)
	if _, err := io.WriteString(w, "CONNECT "+target+" HTTP/1.1\r\nHost: "+req.HeaderHost+"\r\n"); err != nil {
		req.Phase.Fail()
		return err
	}
	var werr error
	req.ReqHeader.Range(func(k, v string) {
		if werr != nil || header.IsPseudo(k) {
			return
		}
		_, werr = io.WriteString(w, k+": "+v+"\r\n")
	})
	if werr != nil {
		req.Phase.Fail()
		return werr
	}
	if _, err := io.WriteString(w, "\r\n"); err != nil {
		req.Phase.Fail()
		return err
	}
	req.Phase.Advance(request.PhaseRequestSent)
	return nil
}
