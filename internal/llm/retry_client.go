package llm

import (
	"context"
	"strings"
	"time"

	twinerrors "twinlab/internal/errors"
	"twinlab/internal/logging"
)

// retryClient wraps a model client with retry logic and a circuit breaker.
type retryClient struct {
	underlying     Client
	retryConfig    twinerrors.RetryConfig
	circuitBreaker *twinerrors.CircuitBreaker
	logger         logging.Logger
}

// WrapWithRetry wraps client with exponential-backoff retries for transient
// failures and a circuit breaker protecting the provider. Exhausting retries
// surfaces a ModelUnavailableError for the single call; permanent errors
// (auth, validation) fail immediately.
func WrapWithRetry(client Client, retryConfig twinerrors.RetryConfig, breakerConfig twinerrors.CircuitBreakerConfig) Client {
	return &retryClient{
		underlying:     client,
		retryConfig:    retryConfig,
		circuitBreaker: twinerrors.NewCircuitBreaker("llm-"+client.Model(), breakerConfig),
		logger:         logging.NewComponentLogger("llm-retry"),
	}
}

func (c *retryClient) Model() string { return c.underlying.Model() }

func (c *retryClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	resp, err := twinerrors.RetryWithResultAndLog(ctx, c.retryConfig, func(ctx context.Context) (*CompletionResponse, error) {
		if allowErr := c.circuitBreaker.Allow(); allowErr != nil {
			return nil, allowErr
		}
		response, callErr := c.underlying.Complete(ctx, req)
		if callErr != nil {
			classified := classifyProviderError(callErr)
			c.circuitBreaker.Mark(classified)
			return nil, classified
		}
		c.circuitBreaker.Mark(nil)
		return response, nil
	}, c.logger)

	if err != nil {
		duration := time.Since(start)
		c.logger.Warn("model request failed after %v: %v", duration.Round(time.Millisecond), err)
		if twinerrors.IsPermanent(err) {
			return nil, err
		}
		return nil, &twinerrors.ModelUnavailableError{
			Attempts: c.retryConfig.MaxAttempts + 1,
			Err:      err,
		}
	}

	return resp, nil
}

// classifyProviderError maps provider error text to the retry taxonomy.
// Unrecognized errors pass through and fall back to IsTransient heuristics.
func classifyProviderError(err error) error {
	if err == nil {
		return nil
	}
	lowerErr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(lowerErr, "429") || strings.Contains(lowerErr, "rate limit"):
		return twinerrors.NewTransientError(err, "provider rate limit reached, backing off")
	case strings.Contains(lowerErr, "500") || strings.Contains(lowerErr, "internal server error"),
		strings.Contains(lowerErr, "502") || strings.Contains(lowerErr, "bad gateway"),
		strings.Contains(lowerErr, "503") || strings.Contains(lowerErr, "service unavailable"),
		strings.Contains(lowerErr, "504") || strings.Contains(lowerErr, "gateway timeout"):
		return twinerrors.NewTransientError(err, "provider server error, retrying")
	case strings.Contains(lowerErr, "timeout") || strings.Contains(lowerErr, "deadline exceeded"):
		return twinerrors.NewTransientError(err, "request timed out, retrying with backoff")
	case strings.Contains(lowerErr, "connection refused") || strings.Contains(lowerErr, "connection reset"):
		return twinerrors.NewTransientError(err, "provider connection failed, retrying")
	case strings.Contains(lowerErr, "401") || strings.Contains(lowerErr, "unauthorized"):
		return twinerrors.NewPermanentError(err, "authentication failed, check the API key")
	case strings.Contains(lowerErr, "403") || strings.Contains(lowerErr, "forbidden"):
		return twinerrors.NewPermanentError(err, "permission denied for this model or resource")
	case strings.Contains(lowerErr, "404") || strings.Contains(lowerErr, "not found"):
		return twinerrors.NewPermanentError(err, "model or endpoint not found, verify the model name")
	case strings.Contains(lowerErr, "400") || strings.Contains(lowerErr, "bad request"):
		return twinerrors.NewPermanentError(err, "invalid request parameters")
	}

	return err
}
