package xretry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryer_RetriesUntilSuccess(t *testing.T) {
	var retries []int
	r := New(Config{Attempts: 3}, WithBackoff(NoBackoff{}), WithOnRetry(func(attempt int, _ error) {
		retries = append(retries, attempt)
	}))

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestRetryer_StopsAtAttempts(t *testing.T) {
	r := New(Config{Attempts: 2}, WithBackoff(NoBackoff{}))
	cause := errors.New("timeout")
	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return cause
	})
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 2, calls)
}

func TestRetryer_PermanentNotRetried(t *testing.T) {
	r := New(Config{Attempts: 5}, WithBackoff(NoBackoff{}))
	cause := errors.New("bad secret")
	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(cause)
	})
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, calls)
}

func TestRetryer_ContextCanceled(t *testing.T) {
	r := New(Config{Attempts: 10, InitialDelay: time.Hour, MaxDelay: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := r.Do(ctx, func(context.Context) error { return errors.New("down") })
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDoWithResult(t *testing.T) {
	r := New(DefaultConfig(), WithBackoff(NoBackoff{}))
	calls := 0
	v, err := DoWithResult(context.Background(), r, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("flaky")
		}
		return "PONG", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "PONG", v)

	_, err = DoWithResult[int](context.Background(), r, nil)
	assert.ErrorIs(t, err, ErrNilFunc)
	assert.ErrorIs(t, r.Do(context.Background(), nil), ErrNilFunc)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.ErrorIs(t, Config{}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Config{Attempts: 1, InitialDelay: -1}.Validate(), ErrInvalidConfig)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(errors.New("x")))
	assert.False(t, IsRetryable(Permanent(errors.New("x"))))
	assert.Nil(t, Permanent(nil))
	assert.Equal(t, "permanent error", (&PermanentError{}).Error())
}

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff{Initial: 100 * time.Millisecond, Max: time.Second}
	assert.Equal(t, 100*time.Millisecond, b.NextDelay(0))
	assert.Equal(t, 200*time.Millisecond, b.NextDelay(2))
	assert.Equal(t, time.Second, b.NextDelay(10))
	assert.Equal(t, time.Second, b.NextDelay(5000))

	jittered := ExponentialBackoff{Initial: 100 * time.Millisecond, Max: time.Second, Jitter: 0.5}
	for range 20 {
		d := jittered.NextDelay(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}
