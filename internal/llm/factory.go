package llm

import (
	"twinlab/internal/config"
	twinerrors "twinlab/internal/errors"
)

// NewClientFromConfig assembles the production client stack: the HTTP
// provider client behind the global pacing limiter, with retries and the
// circuit breaker outermost so every retry attempt waits out the pace
// interval too.
func NewClientFromConfig(cfg config.LLMConfig) (Client, error) {
	base, err := NewOpenAIClient(cfg.Model, Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.TimeoutSeconds,
	})
	if err != nil {
		return nil, err
	}

	retryConfig := twinerrors.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retryConfig.MaxAttempts = cfg.MaxRetries
	}
	paced := WrapWithPacing(base, cfg.PaceInterval)
	return WrapWithRetry(paced, retryConfig, twinerrors.DefaultCircuitBreakerConfig()), nil
}
