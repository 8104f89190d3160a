package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		BaseDelay:    time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		JitterFactor: 0,
	}
}

func TestRetryWithResultSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	result, err := RetryWithResult(context.Background(), fastRetryConfig(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("503"), "")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	require.Equal(t, "ok", result)
	require.Equal(t, 3, calls)
}

func TestRetryWithResultStopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), fastRetryConfig(), func(ctx context.Context) (int, error) {
		calls++
		return 0, NewPermanentError(errors.New("401"), "auth failed")
	})

	require.Error(t, err)
	require.Equal(t, 1, calls)
	require.True(t, IsPermanent(err))
}

func TestRetryWithResultExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), fastRetryConfig(), func(ctx context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("timeout"), "")
	})

	require.Error(t, err)
	require.Equal(t, 4, calls) // first call + 3 retries
	require.Contains(t, err.Error(), "max retries exceeded")
}

func TestRetryWithResultHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := RetryWithResult(ctx, fastRetryConfig(), func(ctx context.Context) (int, error) {
		calls++
		return 0, nil
	})

	require.Error(t, err)
	require.Zero(t, calls)
}

func TestCalculateBackoffCapsAtMaxDelay(t *testing.T) {
	config := RetryConfig{BaseDelay: time.Second, MaxDelay: 3 * time.Second, JitterFactor: 0}

	require.Equal(t, time.Second, calculateBackoff(0, config))
	require.Equal(t, 2*time.Second, calculateBackoff(1, config))
	require.Equal(t, 3*time.Second, calculateBackoff(2, config))
	require.Equal(t, 3*time.Second, calculateBackoff(10, config))
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Millisecond,
	})

	require.NoError(t, cb.Allow())
	cb.Mark(errors.New("fail"))
	cb.Mark(errors.New("fail"))
	require.Equal(t, StateOpen, cb.State())
	require.Error(t, cb.Allow())

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, cb.Allow()) // half-open probe
	cb.Mark(nil)
	require.Equal(t, StateClosed, cb.State())
}
