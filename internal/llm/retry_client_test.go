package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	twinerrors "twinlab/internal/errors"
)

type flakyClient struct {
	failures int
	calls    int
	err      error
}

func (c *flakyClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	c.calls++
	if c.calls <= c.failures {
		return nil, c.err
	}
	return &CompletionResponse{Content: "Score: 4\nReason: fine"}, nil
}

func (c *flakyClient) Model() string { return "flaky" }

func testRetryConfig() twinerrors.RetryConfig {
	return twinerrors.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetryClientRecoversFromTransientErrors(t *testing.T) {
	base := &flakyClient{failures: 2, err: errors.New("API error 503: unavailable")}
	client := WrapWithRetry(base, testRetryConfig(), twinerrors.DefaultCircuitBreakerConfig())

	resp, err := client.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	require.Equal(t, "Score: 4\nReason: fine", resp.Content)
	require.Equal(t, 3, base.calls)
}

func TestRetryClientSurfacesModelUnavailable(t *testing.T) {
	base := &flakyClient{failures: 10, err: errors.New("API error 429: rate limited")}
	client := WrapWithRetry(base, testRetryConfig(), twinerrors.DefaultCircuitBreakerConfig())

	_, err := client.Complete(context.Background(), CompletionRequest{})
	require.Error(t, err)
	require.True(t, twinerrors.IsModelUnavailable(err))
	require.Equal(t, 3, base.calls) // first call + 2 retries
}

func TestRetryClientFailsFastOnPermanentError(t *testing.T) {
	base := &flakyClient{failures: 10, err: errors.New("API error 401: invalid key")}
	client := WrapWithRetry(base, testRetryConfig(), twinerrors.DefaultCircuitBreakerConfig())

	_, err := client.Complete(context.Background(), CompletionRequest{})
	require.Error(t, err)
	require.False(t, twinerrors.IsModelUnavailable(err))
	require.True(t, twinerrors.IsPermanent(err))
	require.Equal(t, 1, base.calls)
}

func TestPacedClientSpacingAndPassthrough(t *testing.T) {
	mock := NewMockClient("ok")
	client := WrapWithPacing(mock, 20*time.Millisecond)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.Complete(context.Background(), CompletionRequest{})
		require.NoError(t, err)
	}
	// first call is immediate, the next two wait one interval each
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	require.Equal(t, 3, mock.CallCount())
}

func TestRetryAttemptsArePaced(t *testing.T) {
	base := &flakyClient{failures: 2, err: errors.New("API error 503: unavailable")}
	client := WrapWithRetry(WrapWithPacing(base, 20*time.Millisecond), testRetryConfig(), twinerrors.DefaultCircuitBreakerConfig())

	start := time.Now()
	resp, err := client.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Equal(t, 3, base.calls)
	// the second and third attempts each wait out one pace interval
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestPacedClientZeroIntervalIsNoop(t *testing.T) {
	mock := NewMockClient("ok")
	require.Equal(t, Client(mock), WrapWithPacing(mock, 0))
}

func TestMockClientRules(t *testing.T) {
	mock := NewMockClient("Score: 5\nReason: default").
		ReplyWhen("question two", "Score: 9\nReason: too much").
		FailWhen("question three", errors.New("boom"))

	resp, err := mock.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "this is question two"}},
	})
	require.NoError(t, err)
	require.Contains(t, resp.Content, "9")

	_, err = mock.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "now question three"}},
	})
	require.Error(t, err)
}
