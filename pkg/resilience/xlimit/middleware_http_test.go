package xlimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xquota/pkg/context/xctx"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(t *testing.T, addr string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/quota", nil)
	if addr != "" {
		ctx, err := xctx.WithClientAddress(req.Context(), addr)
		require.NoError(t, err)
		req = req.WithContext(ctx)
	}
	return req
}

func TestHTTPMiddleware_Deny(t *testing.T) {
	l, err := NewLocal(testConfig(1), WithClock(newFakeClock().Now))
	require.NoError(t, err)
	defer l.Close()
	h := HTTPMiddleware(l)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestFrom(t, "192.0.2.1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, requestFrom(t, "192.0.2.1"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeBurstLimited, body.Error)
	assert.Equal(t, int64(1), body.RetryAfter)
}

func TestHTTPMiddleware_Keys(t *testing.T) {
	l, err := NewLocal(testConfig(1), WithClock(newFakeClock().Now))
	require.NoError(t, err)
	defer l.Close()
	h := HTTPMiddleware(l)(okHandler())

	// unknown 地址不限流
	for range 3 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestFrom(t, "unknown"))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	// 没有 context 地址时退回对端地址
	req := requestFrom(t, "")
	req.RemoteAddr = "198.51.100.4:5555"
	assert.Equal(t, "198.51.100.4", AddressKey(req))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHTTPMiddleware_StoreUnavailable(t *testing.T) {
	l, err := New(deadClient(t), testConfig(2))
	require.NoError(t, err)
	defer l.Close()

	called := false
	h := HTTPMiddleware(l)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestFrom(t, "192.0.2.1"))

	assert.False(t, called)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeStoreUnavailable, body.Error)
}

func TestHTTPMiddleware_Options(t *testing.T) {
	l, err := NewLocal(testConfig(1), WithClock(newFakeClock().Now))
	require.NoError(t, err)
	defer l.Close()

	var denied *Result
	h := HTTPMiddleware(l,
		WithAlwaysHeaders(true),
		WithKeyFunc(func(r *http.Request) string { return r.Header.Get("X-Key") }),
		WithSkipFunc(func(r *http.Request) bool { return r.URL.Path == "/healthz" }),
		WithDenyHandler(func(w http.ResponseWriter, _ *http.Request, res *Result) {
			denied = res
			w.WriteHeader(http.StatusTeapot)
		}),
	)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/quota", nil)
	req.Header.Set("X-Key", "k")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	require.NotNil(t, denied)
	assert.False(t, denied.Allowed)

	health := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	health.Header.Set("X-Key", "k")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, health)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPMiddleware_Disabled(t *testing.T) {
	cfg := testConfig(1)
	cfg.Enabled = false
	l, err := NewLocal(cfg)
	require.NoError(t, err)
	defer l.Close()

	for _, mw := range []func(http.Handler) http.Handler{HTTPMiddleware(l), HTTPMiddleware(nil)} {
		h := mw(okHandler())
		for range 3 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, requestFrom(t, "192.0.2.1"))
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	}
}
