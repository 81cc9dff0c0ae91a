// Package adapters implements the ingest domain's external-system
// interfaces (DriveSync, DocParser, VisionLLM, Embedder) against concrete
// third-party clients.
package adapters

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedContext waits for a token before letting the caller proceed,
// wrapping every outbound call the LLM adapters make so a burst of captions
// or embeddings never exceeds the upstream API's rate limit (C3).
type RateLimitedContext struct {
	limiter *rate.Limiter
}

// NewRateLimitedContext constructs a limiter allowing ratePerSecond sustained
// calls with a short burst allowance.
func NewRateLimitedContext(ratePerSecond float64) *RateLimitedContext {
	if ratePerSecond <= 0 {
		ratePerSecond = 2
	}
	burst := int(ratePerSecond * 2)
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedContext{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimitedContext) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
