package dial

import (
	"context"
	"crypto/tls"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCoreDialerDefaults(t *testing.T) {
	d := NewCoreDialer()
	require.NotNil(t, d.ResolveConfig)
	require.Nil(t, d.TLSConfig)
	require.Nil(t, d.GetProxy)
}

func TestWithProxyFixesURL(t *testing.T) {
	d := NewCoreDialer(WithProxy("http://proxy.internal:8080"))
	require.NotNil(t, d.GetProxy)
	got, err := d.GetProxy(context.Background(), &url.URL{Host: "example.test"})
	require.NoError(t, err)
	require.Equal(t, "http://proxy.internal:8080", got)
}

func TestWithProxyFuncOverridesPerRequest(t *testing.T) {
	d := NewCoreDialer(WithProxyFunc(func(ctx context.Context, u *url.URL) (string, error) {
		if u.Host == "internal.test" {
			return "", nil
		}
		return "http://proxy.internal:8080", nil
	}))
	got, err := d.GetProxy(context.Background(), &url.URL{Host: "internal.test"})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestWithResolveConfigAndTLSConfig(t *testing.T) {
	rc := &ResolveConfig{Network: "ip4"}
	tc := &tls.Config{ServerName: "fixed.test"}
	d := NewCoreDialer(WithResolveConfig(rc), WithTLSConfig(tc))
	require.Same(t, rc, d.ResolveConfig)
	require.Same(t, tc, d.TLSConfig)
}

func TestWithProxyConfig(t *testing.T) {
	pc := &ProxyConfig{ResolveLocally: true}
	d := NewCoreDialer(WithProxyConfig(pc))
	require.Same(t, pc, d.ProxyConfig)
}
