package provider

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"github.com/semtest-ai/semtest/engine/pkg/types"
)

// RateLimiterConfig configures client-side throttling and rate-limit retries
// for a wrapped provider.
type RateLimiterConfig struct {
	// RequestsPerMinute caps the sustained request rate. Must be > 0.
	RequestsPerMinute int
	// Burst is the short-term burst allowance. Must be >= 1.
	Burst int
	// MaxRetries bounds retries after a rate_limit error. 0 disables retries.
	MaxRetries int
	// InitialBackoff is the first retry delay; it doubles per attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration
}

// Validate checks the configuration values.
func (c RateLimiterConfig) Validate() error {
	if c.RequestsPerMinute <= 0 {
		return errors.New("requests per minute must be positive")
	}
	if c.Burst < 1 {
		return errors.New("burst must be at least 1")
	}
	if c.MaxRetries < 0 {
		return errors.New("max retries cannot be negative")
	}
	if c.InitialBackoff < 0 || c.MaxBackoff < 0 {
		return errors.New("backoff durations cannot be negative")
	}
	return nil
}

// DefaultRateLimiterConfig suits typical hosted-API quotas.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerMinute: 60,
		Burst:             5,
		MaxRetries:        3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
	}
}

// RateLimitedProvider wraps a Provider with a token-bucket limiter and
// bounded retries on rate_limit errors. All other errors pass through
// untouched for the judge engine's own retry/fallback policy.
type RateLimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
	cfg     RateLimiterConfig
}

// NewRateLimitedProvider wraps p with the given rate limit configuration.
func NewRateLimitedProvider(p Provider, cfg RateLimiterConfig) (*RateLimitedProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("rate limiter config: %w", err)
	}
	perSecond := rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	return &RateLimitedProvider{
		inner:   p,
		limiter: rate.NewLimiter(perSecond, cfg.Burst),
		cfg:     cfg,
	}, nil
}

func (r *RateLimitedProvider) Name() string         { return r.inner.Name() }
func (r *RateLimitedProvider) DefaultModel() string { return r.inner.DefaultModel() }

func (r *RateLimitedProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := r.inner.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRateLimit(err) || attempt >= r.cfg.MaxRetries {
			return nil, err
		}

		backoff := min(r.cfg.InitialBackoff<<attempt, r.cfg.MaxBackoff)
		// Jitter up to half the backoff to avoid synchronized retries.
		if backoff > 0 {
			backoff += rand.N(backoff/2 + 1)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, lastErr
}

func isRateLimit(err error) bool {
	var pe *types.ProviderError
	return errors.As(err, &pe) && pe.Kind == types.ProviderRateLimit
}
