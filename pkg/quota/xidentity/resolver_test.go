package xidentity

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustResolver(t *testing.T, cfg Config) *Resolver {
	t.Helper()
	r, err := New(cfg)
	require.NoError(t, err)
	return r
}

func TestResolveHeader_Priority(t *testing.T) {
	r := mustResolver(t, Config{})

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"none", nil, Unknown},
		{"forwarded first element", map[string]string{"X-Forwarded-For": " 203.0.113.7 , 10.0.0.1"}, "203.0.113.7"},
		{"forwarded beats real ip", map[string]string{"X-Forwarded-For": "203.0.113.7", "X-Real-IP": "198.51.100.2"}, "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": " 198.51.100.2 "}, "198.51.100.2"},
		{"empty forwarded first element is unknown", map[string]string{"X-Forwarded-For": " , 10.0.0.1", "X-Real-IP": "198.51.100.2"}, Unknown},
		{"blank forwarded ignored", map[string]string{"X-Forwarded-For": "  ", "X-Real-IP": "198.51.100.2"}, "198.51.100.2"},
		{"cloudflare", map[string]string{"CF-Connecting-IP": "192.0.2.5"}, "192.0.2.5"},
		{"real ip beats provider", map[string]string{"X-Real-IP": "198.51.100.2", "True-Client-IP": "192.0.2.5"}, "198.51.100.2"},
		{"vercel", map[string]string{"X-Vercel-Forwarded-For": "192.0.2.9"}, "192.0.2.9"},
		{"ipv4 mapped", map[string]string{"X-Real-IP": "::ffff:192.0.2.1"}, "192.0.2.1"},
		{"with port", map[string]string{"X-Real-IP": "192.0.2.1:4430"}, "192.0.2.1"},
		{"ipv6 bracketed", map[string]string{"X-Forwarded-For": "[2001:db8::1]:443"}, "2001:db8::1"},
		{"non ip kept", map[string]string{"X-Real-IP": " edge-node-7 "}, "edge-node-7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			assert.Equal(t, tt.want, r.ResolveHeader(h, "10.9.9.9:5555"))
		})
	}
}

func TestResolveHeader_TrustedProxies(t *testing.T) {
	r := mustResolver(t, Config{TrustedProxies: []string{"10.0.0.0/8"}})
	h := http.Header{}
	h.Set("X-Forwarded-For", "203.0.113.7")

	assert.Equal(t, "203.0.113.7", r.ResolveHeader(h, "10.1.2.3:443"), "trusted peer")
	assert.Equal(t, "198.51.100.1", r.ResolveHeader(h, "198.51.100.1:443"), "untrusted peer uses its own address")
	assert.Equal(t, Unknown, r.ResolveHeader(h, "garbage"))
}

func TestResolveHeader_RemoteAddrFallback(t *testing.T) {
	r := mustResolver(t, Config{RemoteAddrFallback: true})
	assert.Equal(t, "192.0.2.44", r.ResolveHeader(http.Header{}, "192.0.2.44:1234"))
	assert.Equal(t, Unknown, r.ResolveHeader(http.Header{}, ""))

	// 代理写了 XFF 但首个元素为空时不回退到对端地址
	h := http.Header{}
	h.Set("X-Forwarded-For", ", 203.0.113.9")
	assert.Equal(t, Unknown, r.ResolveHeader(h, "192.0.2.44:1234"))
}

func TestResolve_CustomHeaders(t *testing.T) {
	r := mustResolver(t, Config{Headers: []string{"x-client-address"}})
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	req.Header.Set("X-Client-Address", "192.0.2.8")
	assert.Equal(t, "192.0.2.8", r.Resolve(req))
	assert.Equal(t, Unknown, r.Resolve(nil))
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Config{Headers: []string{" "}})
	assert.Error(t, err)
	_, err = New(Config{TrustedProxies: []string{"not-a-range"}})
	assert.Error(t, err)
}
