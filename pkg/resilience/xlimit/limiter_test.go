package xlimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig(burst int) Config {
	cfg := DefaultConfig()
	cfg.Rate = 60
	cfg.Period = time.Minute
	cfg.Burst = burst
	return cfg
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

// deadClient 指向无人监听的地址，所有命令都会失败
func deadClient(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"zero rate", func(c *Config) { c.Rate = 0 }, false},
		{"zero burst", func(c *Config) { c.Burst = 0 }, false},
		{"zero period", func(c *Config) { c.Period = 0 }, false},
		{"bad fallback", func(c *Config) { c.Fallback = "retry" }, false},
		{"empty fallback", func(c *Config) { c.Fallback = "" }, false},
		{"zero local size", func(c *Config) { c.LocalSize = 0 }, false},
		{"local fallback", func(c *Config) { c.Fallback = FallbackLocal }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(nil, DefaultConfig()); !errors.Is(err, ErrNilClient) {
		t.Errorf("expected ErrNilClient, got %v", err)
	}
	_, client := setupRedis(t)
	bad := DefaultConfig()
	bad.Burst = -1
	if _, err := New(client, bad); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := NewLocal(bad); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRedisLimiter_Burst(t *testing.T) {
	mr, client := setupRedis(t)
	l, err := New(client, testConfig(3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()
	ctx := context.Background()

	for i := range 3 {
		res, err := l.Allow(ctx, "192.0.2.1")
		if err != nil {
			t.Fatalf("Allow #%d: %v", i+1, err)
		}
		if !res.Allowed {
			t.Fatalf("Allow #%d: expected allowed", i+1)
		}
		if res.Limit != 3 || res.Remaining != 2-i {
			t.Errorf("Allow #%d: limit=%d remaining=%d", i+1, res.Limit, res.Remaining)
		}
		if res.Backend != "redis" {
			t.Errorf("backend = %q", res.Backend)
		}
	}

	res, err := l.Allow(ctx, "192.0.2.1")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if res.Allowed {
		t.Fatal("expected burst to be exhausted")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Second {
		t.Errorf("RetryAfter = %v, want (0, 1s]", res.RetryAfter)
	}
	if res.RetryAfterSeconds() != 1 {
		t.Errorf("RetryAfterSeconds = %d", res.RetryAfterSeconds())
	}

	// 其他地址不受影响
	res, err = l.Allow(ctx, "192.0.2.2")
	if err != nil || !res.Allowed {
		t.Fatalf("other address: allowed=%v err=%v", res != nil && res.Allowed, err)
	}

	if !mr.Exists("rate:" + DefaultKeyPrefix + "192.0.2.1") {
		t.Errorf("expected bucket key, got keys %v", mr.Keys())
	}

	if err := l.Reset(ctx, "192.0.2.1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	res, err = l.Allow(ctx, "192.0.2.1")
	if err != nil || !res.Allowed {
		t.Fatal("expected allowed after reset")
	}
}

func TestLimiter_EmptyKey(t *testing.T) {
	l, err := NewLocal(testConfig(1))
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	defer l.Close()
	if _, err := l.Allow(context.Background(), ""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
	if err := l.Reset(context.Background(), ""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

func TestLocalLimiter_Refill(t *testing.T) {
	clock := newFakeClock()
	l, err := NewLocal(testConfig(2), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	defer l.Close()
	ctx := context.Background()

	for i := range 2 {
		res, err := l.Allow(ctx, "a")
		if err != nil || !res.Allowed {
			t.Fatalf("Allow #%d: expected allowed, err=%v", i+1, err)
		}
	}
	res, err := l.Allow(ctx, "a")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if res.Allowed {
		t.Fatal("expected denied")
	}
	if res.RetryAfter != time.Second {
		t.Errorf("RetryAfter = %v, want 1s", res.RetryAfter)
	}
	if want := clock.Now().Add(2 * time.Second); !res.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", res.ResetAt, want)
	}

	clock.Advance(time.Second)
	res, err = l.Allow(ctx, "a")
	if err != nil || !res.Allowed {
		t.Fatal("expected one token after 1s")
	}
	if res.Remaining != 0 {
		t.Errorf("Remaining = %d", res.Remaining)
	}
	if res.Backend != "local" {
		t.Errorf("backend = %q", res.Backend)
	}
}

func TestLocalLimiter_DenyDoesNotConsume(t *testing.T) {
	clock := newFakeClock()
	l, err := NewLocal(testConfig(1), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	defer l.Close()
	ctx := context.Background()

	if res, err := l.Allow(ctx, "a"); err != nil || !res.Allowed {
		t.Fatalf("first Allow: %+v, %v", res, err)
	}
	for i := range 3 {
		res, err := l.Allow(ctx, "a")
		if err != nil || res.Allowed {
			t.Fatalf("denial #%d: %+v, %v", i+1, res, err)
		}
		// 拒绝不预支令牌，等待时间不随重试累积
		if res.RetryAfter != time.Second {
			t.Errorf("denial #%d RetryAfter = %v, want 1s", i+1, res.RetryAfter)
		}
	}

	clock.Advance(time.Second)
	if res, err := l.Allow(ctx, "a"); err != nil || !res.Allowed {
		t.Fatalf("Allow after refill: %+v, %v", res, err)
	}
}

func TestLocalLimiter_Concurrent(t *testing.T) {
	clock := newFakeClock()
	l, err := NewLocal(testConfig(5), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	defer l.Close()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 50 {
		wg.Go(func() {
			res, err := l.Allow(context.Background(), "shared")
			if err != nil {
				t.Errorf("Allow: %v", err)
				return
			}
			if res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	if allowed != 5 {
		t.Errorf("allowed = %d, want 5", allowed)
	}
}

func TestFallback(t *testing.T) {
	t.Run("close", func(t *testing.T) {
		l, err := New(deadClient(t), testConfig(2))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		defer l.Close()
		res, err := l.Allow(context.Background(), "192.0.2.1")
		if !errors.Is(err, ErrRedisUnavailable) {
			t.Fatalf("expected ErrRedisUnavailable, got %v", err)
		}
		if res == nil || res.Allowed {
			t.Fatal("expected a denied result")
		}
	})

	t.Run("open", func(t *testing.T) {
		cfg := testConfig(2)
		cfg.Fallback = FallbackOpen
		l, err := New(deadClient(t), cfg)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		defer l.Close()
		res, err := l.Allow(context.Background(), "192.0.2.1")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !res.Allowed || res.Limit != 0 || res.Backend != "open" {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("local", func(t *testing.T) {
		cfg := testConfig(1)
		cfg.Fallback = FallbackLocal
		l, err := New(deadClient(t), cfg, WithClock(newFakeClock().Now))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		defer l.Close()
		res, err := l.Allow(context.Background(), "192.0.2.1")
		if err != nil || !res.Allowed || res.Backend != "local" {
			t.Fatalf("first: %+v, %v", res, err)
		}
		res, err = l.Allow(context.Background(), "192.0.2.1")
		if err != nil || res.Allowed {
			t.Fatalf("second should be denied by the local bucket: %+v, %v", res, err)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		cfg := testConfig(2)
		cfg.Fallback = FallbackOpen
		l, err := New(deadClient(t), cfg)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		defer l.Close()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := l.Allow(ctx, "192.0.2.1"); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}
