package dial

import (
	"context"
	"net"
)

// ResolveConfig customizes name resolution: a specific DNS server, an
// address family restriction, and a static hosts override map checked
// first.
type ResolveConfig struct {
	CustomDNSServer string
	Network         string // "ip4", "ip6", or "" for either
	StaticHosts     map[string]string
}

func (c *ResolveConfig) Clone() *ResolveConfig {
	if c == nil {
		return nil
	}
	hosts := make(map[string]string, len(c.StaticHosts))
	for k, v := range c.StaticHosts {
		hosts[k] = v
	}
	return &ResolveConfig{CustomDNSServer: c.CustomDNSServer, Network: c.Network, StaticHosts: hosts}
}

// dnsServerCtx carries a per-call DNS server override into the resolver's
// Dial hook without leaking it into the caller's own context values, an
// unexported-key trick to keep the override invisible to callers.
type dnsServerCtx struct {
	context.Context
	server string
}

var dnsServerCtxKey = &dnsServerCtx{}

func (c dnsServerCtx) Value(key interface{}) interface{} {
	if key == dnsServerCtxKey {
		return c.server
	}
	return c.Context.Value(key)
}

var zeroDialer net.Dialer

var customServerResolver = net.Resolver{
	PreferGo: true,
	Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
		if v, ok := ctx.Value(dnsServerCtxKey).(string); ok && v != "" {
			return zeroDialer.DialContext(ctx, network, v)
		}
		return zeroDialer.DialContext(ctx, network, address)
	},
}

// lookup resolves host per cfg (nil means system defaults), returning the
// resolved addresses in the order the resolver produced them.
func lookup(ctx context.Context, cfg *ResolveConfig, host string) ([]net.IP, error) {
	if cfg == nil {
		return customServerResolver.LookupIP(ctx, "ip", host)
	}
	if resolved, ok := cfg.StaticHosts[host]; ok {
		ip := net.ParseIP(resolved)
		if ip == nil {
			return nil, &net.DNSError{Err: "static host entry is not an IP", Name: host}
		}
		return []net.IP{ip}, nil
	}
	network := cfg.Network
	if network == "" {
		network = "ip"
	}
	return customServerResolver.LookupIP(dnsServerCtx{ctx, cfg.CustomDNSServer}, network, host)
}
