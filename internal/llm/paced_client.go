package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// pacedClient enforces a minimum inter-call delay shared by every caller in
// the process. Pacing is global, not per-persona: the provider sees one
// logical caller regardless of how many personas a run covers.
type pacedClient struct {
	base    Client
	limiter *rate.Limiter
}

// WrapWithPacing wraps client so that successive calls are at least interval
// apart. A non-positive interval returns the client unchanged.
func WrapWithPacing(client Client, interval time.Duration) Client {
	if interval <= 0 {
		return client
	}
	return &pacedClient{
		base:    client,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

func (c *pacedClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.base.Complete(ctx, req)
}

func (c *pacedClient) Model() string { return c.base.Model() }
