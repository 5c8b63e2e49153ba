package xverify_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/omeyang/xquota/pkg/observability/xtrace"
	"github.com/omeyang/xquota/pkg/quota/xidentity"
	"github.com/omeyang/xquota/pkg/quota/xverify"
	"github.com/omeyang/xquota/pkg/resilience/xbreaker"
	"github.com/omeyang/xquota/pkg/resilience/xretry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSiteverify 记录收到的表单，按顺序返回预设响应
type fakeSiteverify struct {
	mu        sync.Mutex
	forms     []url.Values
	traces    []string
	responses []func(w http.ResponseWriter)
}

func (f *fakeSiteverify) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	f.mu.Lock()
	f.forms = append(f.forms, r.PostForm)
	f.traces = append(f.traces, r.Header.Get(xtrace.HeaderTraceparent))
	n := len(f.forms)
	f.mu.Unlock()

	respond := f.responses[len(f.responses)-1]
	if n <= len(f.responses) {
		respond = f.responses[n-1]
	}
	respond(w)
}

func (f *fakeSiteverify) calls() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.forms...)
}

func reply(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

const okBody = `{"success":true,"challenge_ts":"2026-10-19T09:00:00.123Z","hostname":"app.example.com","action":"quota","error-codes":[]}`

func newTurnstile(t *testing.T, mutate func(*xverify.Config), responses ...func(w http.ResponseWriter)) (*xverify.Turnstile, *fakeSiteverify) {
	t.Helper()
	fake := &fakeSiteverify{responses: responses}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := xverify.DefaultConfig()
	cfg.Endpoint = srv.URL
	cfg.Secret = "0x4AAAAAAAtestsecret"
	if mutate != nil {
		mutate(&cfg)
	}
	tv, err := xverify.NewTurnstile(cfg,
		xverify.WithHTTPClient(&http.Client{Transport: &http.Transport{DisableKeepAlives: true}}),
		xverify.WithRetryOptions(xretry.WithBackoff(xretry.NoBackoff{})),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tv.Close() })
	return tv, fake
}

func TestTurnstile_Accepts(t *testing.T) {
	tv, fake := newTurnstile(t, nil, reply(http.StatusOK, okBody))

	res, err := tv.Verify(context.Background(), "token-1", "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Empty(t, res.FailureCodes)
	assert.Equal(t, "app.example.com", res.Hostname)
	assert.Equal(t, "quota", res.Action)
	assert.Equal(t, time.Date(2026, 10, 19, 9, 0, 0, 123_000_000, time.UTC), res.ChallengeTS)

	calls := fake.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "0x4AAAAAAAtestsecret", calls[0].Get("secret"))
	assert.Equal(t, "token-1", calls[0].Get("response"))
	assert.Equal(t, "203.0.113.9", calls[0].Get("remoteip"))
	assert.NotEmpty(t, calls[0].Get("idempotency_key"))
}

func TestTurnstile_PropagatesTrace(t *testing.T) {
	tv, fake := newTurnstile(t, nil, reply(http.StatusOK, okBody))

	const traceparent = "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01"
	ctx := xtrace.Extract(context.Background(), http.Header{"Traceparent": []string{traceparent}})
	_, err := tv.Verify(ctx, "token-trace", "203.0.113.9")
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{traceparent}, fake.traces)
}

func TestTurnstile_OmitsUnknownAddress(t *testing.T) {
	tv, fake := newTurnstile(t, nil, reply(http.StatusOK, okBody))

	_, err := tv.Verify(context.Background(), "token-1", xidentity.Unknown)
	require.NoError(t, err)
	calls := fake.calls()
	require.Len(t, calls, 1)
	assert.False(t, calls[0].Has("remoteip"))
}

func TestTurnstile_Rejects(t *testing.T) {
	tv, _ := newTurnstile(t, nil,
		reply(http.StatusOK, `{"success":false,"error-codes":["timeout-or-duplicate"]}`))

	res, err := tv.Verify(context.Background(), "stale-token", "203.0.113.9")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, []string{"timeout-or-duplicate"}, res.FailureCodes)
}

func TestTurnstile_LocalRejections(t *testing.T) {
	tv, fake := newTurnstile(t, nil, reply(http.StatusOK, okBody))
	ctx := context.Background()

	res, err := tv.Verify(ctx, "  ", "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, []string{xverify.CodeMissingInputResponse}, res.FailureCodes)

	long := make([]byte, xverify.MaxTokenLength+1)
	for i := range long {
		long[i] = 'a'
	}
	res, err = tv.Verify(ctx, string(long), "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, []string{xverify.CodeInvalidInputResponse}, res.FailureCodes)

	assert.Empty(t, fake.calls())
}

func TestTurnstile_TokenUsedOnce(t *testing.T) {
	tv, fake := newTurnstile(t, nil, reply(http.StatusOK, okBody))
	ctx := context.Background()

	res, err := tv.Verify(ctx, "token-1", "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, res.OK)

	res, err = tv.Verify(ctx, "token-1", "203.0.113.9")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, []string{xverify.CodeDuplicateToken}, res.FailureCodes)
	assert.Len(t, fake.calls(), 1)
}

func TestTurnstile_RetriesWithSameIdempotencyKey(t *testing.T) {
	tv, fake := newTurnstile(t, nil,
		reply(http.StatusServiceUnavailable, ""),
		reply(http.StatusOK, okBody),
	)

	res, err := tv.Verify(context.Background(), "token-1", "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, res.OK)

	calls := fake.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0].Get("idempotency_key"), calls[1].Get("idempotency_key"))
}

func TestTurnstile_ProviderFault(t *testing.T) {
	tv, fake := newTurnstile(t, func(c *xverify.Config) {
		c.Breaker.FailureThreshold = 100
	}, reply(http.StatusInternalServerError, "oops"))

	_, err := tv.Verify(context.Background(), "token-1", "203.0.113.9")
	require.ErrorIs(t, err, xverify.ErrProvider)
	var pe *xverify.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusInternalServerError, pe.StatusCode)
	assert.Len(t, fake.calls(), 3)

	// 没有结论的令牌可以再次提交
	_, err = tv.Verify(context.Background(), "token-1", "203.0.113.9")
	require.ErrorIs(t, err, xverify.ErrProvider)
	assert.Len(t, fake.calls(), 6)
}

func TestTurnstile_PermanentFaultsNotRetried(t *testing.T) {
	tests := []struct {
		name    string
		respond func(w http.ResponseWriter)
	}{
		{"bad request", reply(http.StatusBadRequest, `{}`)},
		{"undecodable", reply(http.StatusOK, `<html>`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tv, fake := newTurnstile(t, nil, tt.respond)
			_, err := tv.Verify(context.Background(), "token-1", "203.0.113.9")
			assert.ErrorIs(t, err, xverify.ErrProvider)
			assert.Len(t, fake.calls(), 1)
		})
	}
}

func TestTurnstile_BreakerOpens(t *testing.T) {
	tv, fake := newTurnstile(t, func(c *xverify.Config) {
		c.Retry.Attempts = 1
		c.Breaker.FailureThreshold = 2
		c.Breaker.OpenTimeout = time.Minute
	}, reply(http.StatusBadGateway, ""))
	ctx := context.Background()

	for _, tok := range []string{"a", "b"} {
		_, err := tv.Verify(ctx, tok, "203.0.113.9")
		require.ErrorIs(t, err, xverify.ErrProvider)
	}
	assert.Equal(t, xbreaker.StateOpen, tv.Breaker().State())

	_, err := tv.Verify(ctx, "c", "203.0.113.9")
	require.ErrorIs(t, err, xverify.ErrProvider)
	assert.True(t, xbreaker.IsBreakerError(err))
	assert.Len(t, fake.calls(), 2)
}

func TestTurnstile_ClaimChecks(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*xverify.Config)
		ok     bool
		codes  []string
	}{
		{"matching", func(c *xverify.Config) {
			c.ExpectedAction = "quota"
			c.ExpectedHostnames = []string{"app.example.com"}
		}, true, nil},
		{"action mismatch", func(c *xverify.Config) { c.ExpectedAction = "login" }, false, []string{xverify.CodeActionMismatch}},
		{"hostname mismatch", func(c *xverify.Config) {
			c.ExpectedHostnames = []string{"other.example.com"}
		}, false, []string{xverify.CodeHostnameMismatch}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tv, _ := newTurnstile(t, tt.mutate, reply(http.StatusOK, okBody))
			res, err := tv.Verify(context.Background(), "token-1", "203.0.113.9")
			require.NoError(t, err)
			assert.Equal(t, tt.ok, res.OK)
			if tt.codes == nil {
				assert.Empty(t, res.FailureCodes)
			} else {
				assert.Equal(t, tt.codes, res.FailureCodes)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := xverify.DefaultConfig()
	assert.ErrorIs(t, cfg.Validate(), xverify.ErrInvalidConfig, "secret required")

	cfg.Secret = "s"
	assert.NoError(t, cfg.Validate())

	bad := cfg
	bad.Endpoint = "not a url"
	assert.ErrorIs(t, bad.Validate(), xverify.ErrInvalidConfig)

	bad = cfg
	bad.ReplaySize = 0
	assert.ErrorIs(t, bad.Validate(), xverify.ErrInvalidConfig)

	_, err := xverify.NewTurnstile(xverify.Config{})
	assert.True(t, errors.Is(err, xverify.ErrInvalidConfig))
}

func TestDisabled(t *testing.T) {
	res, err := xverify.Disabled{}.Verify(context.Background(), "", "")
	require.NoError(t, err)
	assert.True(t, res.OK)
}
