// Package dial implements the transport-acquisition layer: DNS
// resolution, HTTP(S) proxy CONNECT tunnels, and the TLS handshake that
// yields an ALPN-selected conn.Conn, consolidated into one exported
// package (CoreDialer, DNS/proxy config shape).
package dial

import (
	"context"
	"crypto/tls"
	"net"
	"net/url"

	"github.com/kavdev/duohttp/conn"
	"github.com/kavdev/duohttp/herrors"
)

// alpnProtocols is the fixed ALPN offer: h2 first, then http/1.1, encoded
// as the wire literal "\x02h2\x08http/1.1" once crypto/tls serializes
// tls.Config.NextProtos.
var alpnProtocols = []string{"h2", "http/1.1"}

// CoreDialer resolves, optionally tunnels through a proxy, and TLS-shakes
// hands to produce a ready conn.Conn for one (scheme, host, port) endpoint.
type CoreDialer struct {
	ResolveConfig *ResolveConfig
	TLSConfig     *tls.Config

	// GetProxy returns the proxy URL to use for u ("" for none).
	GetProxy    func(ctx context.Context, u *url.URL) (string, error)
	ProxyConfig *ProxyConfig
}

// DialerOption configures a CoreDialer built with NewCoreDialer.
type DialerOption func(*CoreDialer)

// WithResolveConfig sets DNS resolution behavior: custom server, address
// family restriction, static hosts override.
func WithResolveConfig(cfg *ResolveConfig) DialerOption {
	return func(d *CoreDialer) { d.ResolveConfig = cfg }
}

// WithTLSConfig sets the base TLS config cloned for every "https" Dial;
// NextProtos and ServerName are filled in per-dial if left unset.
func WithTLSConfig(cfg *tls.Config) DialerOption {
	return func(d *CoreDialer) { d.TLSConfig = cfg }
}

// WithProxy routes every Dial through a fixed proxy URL ("" disables).
func WithProxy(proxyURL string) DialerOption {
	return func(d *CoreDialer) {
		d.GetProxy = func(ctx context.Context, u *url.URL) (string, error) { return proxyURL, nil }
	}
}

// WithProxyFunc sets GetProxy directly, for per-request proxy selection
// (e.g. NO_PROXY-style host exclusion) that a fixed WithProxy URL can't
// express.
func WithProxyFunc(fn func(ctx context.Context, u *url.URL) (string, error)) DialerOption {
	return func(d *CoreDialer) { d.GetProxy = fn }
}

// WithProxyConfig sets the tunnel-establishment behavior (proxy-side TLS,
// local vs. proxy-side DNS resolution) used once GetProxy names a proxy.
func WithProxyConfig(cfg *ProxyConfig) DialerOption {
	return func(d *CoreDialer) { d.ProxyConfig = cfg }
}

// NewCoreDialer builds a CoreDialer from functional options, defaulting to
// system DNS, no proxy, and a zero-value TLS config.
func NewCoreDialer(opts ...DialerOption) *CoreDialer {
	d := &CoreDialer{ResolveConfig: &ResolveConfig{}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *CoreDialer) Clone() *CoreDialer {
	c := &CoreDialer{ResolveConfig: d.ResolveConfig.Clone(), GetProxy: d.GetProxy, ProxyConfig: d.ProxyConfig.Clone()}
	if d.TLSConfig != nil {
		c.TLSConfig = d.TLSConfig.Clone()
	}
	return c
}

// Dial produces a conn.Conn for u: proxy CONNECT tunnel if GetProxy names
// one, else direct dial, with a TLS handshake layered on for "https". The
// returned Conn's SelectedALPN reports the negotiated protocol so the
// caller (the version-multiplexed client) can pick its engine.
func (d *CoreDialer) Dial(ctx context.Context, u *url.URL) (conn.Conn, error) {
	raw, err := d.dialRaw(ctx, u)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "https" {
		return conn.NewPlain(raw), nil
	}

	cfg := d.TLSConfig
	if cfg == nil {
		cfg = &tls.Config{}
	} else {
		cfg = cfg.Clone()
	}
	if cfg.NextProtos == nil {
		cfg.NextProtos = alpnProtocols
	}
	if cfg.ServerName == "" {
		cfg.ServerName = u.Hostname()
	}
	tc := tls.Client(raw, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, herrors.Wrap(herrors.KindTLSFailure, err, "tls handshake")
	}
	return conn.NewTLS(tc, tc.ConnectionState().NegotiatedProtocol), nil
}

func (d *CoreDialer) dialRaw(ctx context.Context, u *url.URL) (net.Conn, error) {
	if d.GetProxy != nil {
		proxy, err := d.GetProxy(ctx, u)
		if err != nil {
			return nil, err
		}
		if proxy != "" {
			proxyU, err := url.Parse(proxy)
			if err != nil {
				return nil, herrors.Wrap(herrors.KindParseURL, err, "parse proxy url")
			}
			return d.dialOverProxy(ctx, u, proxyU)
		}
	}

	host, port := u.Host, schemePort[u.Scheme]
	if h, p, err := net.SplitHostPort(host); err == nil {
		host, port = h, p
	}

	network := "tcp"
	if d.ResolveConfig != nil {
		switch d.ResolveConfig.Network {
		case "ip4":
			network = "tcp4"
		case "ip6":
			network = "tcp6"
		}
	}

	dst := net.JoinHostPort(host, port)
	dialCtx, dialer := ctx, &zeroDialer
	if d.ResolveConfig != nil {
		if static, ok := d.ResolveConfig.StaticHosts[host]; ok {
			dst = net.JoinHostPort(static, port)
		}
		if dns := d.ResolveConfig.CustomDNSServer; dns != "" {
			dialCtx = dnsServerCtx{ctx, dns}
			dialer = &net.Dialer{Resolver: &customServerResolver}
		}
	}

	raw, err := dialer.DialContext(dialCtx, network, dst)
	if err != nil {
		return nil, herrors.Wrap(herrors.KindTCPFailure, err, "dial "+dst)
	}
	return raw, nil
}
