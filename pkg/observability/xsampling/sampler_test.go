package xsampling

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
)

type testContextKey string

const testKeyName testContextKey = "key"

func keyFromContext(ctx context.Context) string {
	v, _ := ctx.Value(testKeyName).(string)
	return v
}

func TestAlwaysNever(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		if !Always().ShouldSample(ctx) {
			t.Fatal("Always() should always sample")
		}
		if Never().ShouldSample(ctx) {
			t.Fatal("Never() should never sample")
		}
	}
}

func TestNewRateSampler_Invalid(t *testing.T) {
	for _, rate := range []float64{-0.1, 1.1, math.NaN(), math.Inf(1)} {
		if _, err := NewRateSampler(rate); !errors.Is(err, ErrInvalidRate) {
			t.Errorf("NewRateSampler(%v) error = %v, want ErrInvalidRate", rate, err)
		}
	}
}

func TestRateSampler(t *testing.T) {
	ctx := context.Background()

	t.Run("bounds", func(t *testing.T) {
		zero, _ := NewRateSampler(0)
		one, _ := NewRateSampler(1)
		for i := 0; i < 100; i++ {
			if zero.ShouldSample(ctx) {
				t.Fatal("rate=0 should never sample")
			}
			if !one.ShouldSample(ctx) {
				t.Fatal("rate=1 should always sample")
			}
		}
	})

	t.Run("ratio", func(t *testing.T) {
		s, err := NewRateSampler(0.5)
		if err != nil {
			t.Fatal(err)
		}
		if s.Rate() != 0.5 {
			t.Errorf("Rate() = %v", s.Rate())
		}
		const n = 20000
		hits := 0
		for i := 0; i < n; i++ {
			if s.ShouldSample(ctx) {
				hits++
			}
		}
		if ratio := float64(hits) / n; ratio < 0.45 || ratio > 0.55 {
			t.Errorf("sample ratio = %.3f, want ~0.5", ratio)
		}
	})
}

func TestNewKeyBasedSampler_Invalid(t *testing.T) {
	if _, err := NewKeyBasedSampler(0.5, nil); !errors.Is(err, ErrNilKeyFunc) {
		t.Errorf("nil keyFunc error = %v, want ErrNilKeyFunc", err)
	}
	if _, err := NewKeyBasedSampler(2, keyFromContext); !errors.Is(err, ErrInvalidRate) {
		t.Errorf("rate=2 error = %v, want ErrInvalidRate", err)
	}
}

func TestKeyBasedSampler(t *testing.T) {
	s, err := NewKeyBasedSampler(0.3, keyFromContext)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("consistent", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			ctx := context.WithValue(context.Background(), testKeyName, fmt.Sprintf("fp_%04d", i))
			first := s.ShouldSample(ctx)
			for j := 0; j < 10; j++ {
				if s.ShouldSample(ctx) != first {
					t.Fatalf("key fp_%04d produced different decisions", i)
				}
			}
		}
	})

	t.Run("ratio", func(t *testing.T) {
		const n = 10000
		hits := 0
		for i := 0; i < n; i++ {
			ctx := context.WithValue(context.Background(), testKeyName, fmt.Sprintf("fp_%06d", i))
			if s.ShouldSample(ctx) {
				hits++
			}
		}
		if ratio := float64(hits) / n; ratio < 0.25 || ratio > 0.35 {
			t.Errorf("sample ratio = %.3f, want ~0.3", ratio)
		}
	})

	t.Run("bounds_ignore_key", func(t *testing.T) {
		never, _ := NewKeyBasedSampler(0, keyFromContext)
		always, _ := NewKeyBasedSampler(1, keyFromContext)
		ctx := context.WithValue(context.Background(), testKeyName, "fp_any")
		if never.ShouldSample(ctx) || !always.ShouldSample(ctx) {
			t.Error("rate bounds should short-circuit")
		}
	})

	t.Run("nil_context", func(t *testing.T) {
		//nolint:staticcheck // 验证 nil context 不会 panic
		_ = s.ShouldSample(nil)
	})
}

func TestConcurrency(t *testing.T) {
	rate, _ := NewRateSampler(0.5)
	keyed, _ := NewKeyBasedSampler(0.5, keyFromContext)
	ctx := context.WithValue(context.Background(), testKeyName, "fp_shared")
	want := keyed.ShouldSample(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				_ = rate.ShouldSample(ctx)
				if keyed.ShouldSample(ctx) != want {
					t.Error("keyed decision changed under concurrency")
					return
				}
			}
		}()
	}
	wg.Wait()
}
