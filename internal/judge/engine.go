// Package judge orchestrates semantic judgments: prompt canonicalization,
// cache lookup, request coalescing, provider calls with retry and fallback,
// and schema validation. It is the piece that makes a stochastic model
// behave deterministically enough for CI.
package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/semtest-ai/semtest/engine/internal/cache"
	"github.com/semtest-ai/semtest/engine/internal/prompt"
	"github.com/semtest-ai/semtest/engine/internal/provider"
	"github.com/semtest-ai/semtest/engine/internal/schema"
	"github.com/semtest-ai/semtest/engine/pkg/types"
)

// Config configures an Engine.
type Config struct {
	// Providers is the fallback chain, tried in order. At least one required.
	Providers []provider.Provider

	// Cache stores judgments by fingerprint. Nil means an in-memory,
	// per-run store.
	Cache cache.Store

	// SchemaRetries is the number of additional attempts with the same
	// prompt after a malformed response, before moving to the next provider.
	SchemaRetries int

	// MaxRetries bounds provider-level retries (timeout, rate limit,
	// unavailable) per provider.
	MaxRetries int

	// Backoff schedule for provider-level retries.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	MaxJitter   time.Duration

	Logger *slog.Logger
}

const (
	defaultSchemaRetries = 2
	defaultMaxRetries    = 2
	defaultBaseBackoff   = 500 * time.Millisecond
	defaultMaxBackoff    = 15 * time.Second
	defaultMaxJitter     = 250 * time.Millisecond
)

// Engine resolves judgment requests to verdicts.
type Engine struct {
	providers     []provider.Provider
	cache         cache.Store
	schemaRetries int
	maxRetries    int
	baseBackoff   time.Duration
	maxBackoff    time.Duration
	maxJitter     time.Duration
	logger        *slog.Logger

	// flight coalesces concurrent judgments of the same fingerprint into a
	// single provider call; all waiters observe the same result or failure.
	flight singleflight.Group
}

// New creates an Engine from cfg. cfg.Providers must be non-empty.
func New(cfg Config) (*Engine, error) {
	if len(cfg.Providers) == 0 {
		return nil, errors.New("judge engine requires at least one provider")
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewMemoryStore()
	}
	if cfg.SchemaRetries == 0 {
		cfg.SchemaRetries = defaultSchemaRetries
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BaseBackoff == 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.MaxJitter == 0 {
		cfg.MaxJitter = defaultMaxJitter
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		providers:     cfg.Providers,
		cache:         cfg.Cache,
		schemaRetries: cfg.SchemaRetries,
		maxRetries:    cfg.MaxRetries,
		baseBackoff:   cfg.BaseBackoff,
		maxBackoff:    cfg.MaxBackoff,
		maxJitter:     cfg.MaxJitter,
		logger:        cfg.Logger,
	}, nil
}

// InvalidateCache removes every cached judgment.
func (e *Engine) InvalidateCache() error { return e.cache.Invalidate() }

// Judge resolves a request to a judgment. Identical canonical requests
// resolve to the same judgment for the lifetime of the cache; an empty
// Actual is sent to the model like any other value, never short-circuited
// to FAIL. Returns *types.JudgeFailure when every provider is exhausted.
func (e *Engine) Judge(ctx context.Context, req *types.JudgmentRequest) (*types.Judgment, error) {
	p, err := prompt.Build(req.Actual, req.Expected, req.Context)
	if err != nil {
		return nil, err
	}

	// The fingerprint needs a concrete model identity, so an unpinned
	// request is keyed under the primary's default. The completion request
	// keeps the empty ModelID: on fallback each provider must serve its own
	// default model, not the primary's.
	fpModel := req.ModelID
	if fpModel == "" {
		fpModel = e.providers[0].DefaultModel()
	}
	params := req.Params
	if params.MaxTokens == 0 {
		params.MaxTokens = types.DefaultParams.MaxTokens
	}

	fp := prompt.Fingerprint(p, fpModel, params)

	if j, ok, err := e.cache.Get(fp); err != nil {
		e.logger.Warn("judgment cache read error", "err", err)
	} else if ok {
		return j, nil
	}

	v, err, _ := e.flight.Do(fp, func() (any, error) {
		// Re-check under the flight: a prior holder may have populated the
		// cache between our miss and acquiring the slot.
		if j, ok, err := e.cache.Get(fp); err == nil && ok {
			return j, nil
		}

		j, err := e.judgeUncached(ctx, p, req.ModelID, params)
		if err != nil {
			return nil, err
		}
		if putErr := e.cache.Put(fp, j); putErr != nil {
			e.logger.Warn("judgment cache write error", "err", putErr)
		}
		return j, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Judgment), nil
}

// judgeUncached walks the provider fallback chain until one yields a valid
// judgment. An empty modelID means each provider serves its own default
// model.
func (e *Engine) judgeUncached(ctx context.Context, p *prompt.CanonicalPrompt, modelID string, params types.Params) (*types.Judgment, error) {
	creq := &provider.CompletionRequest{
		Model:        modelID,
		SystemPrompt: prompt.SystemPrompt,
		Messages:     []provider.Message{{Role: "user", Content: p.Text}},
		Temperature:  params.Temperature,
		MaxTokens:    params.MaxTokens,
	}

	var attempts []types.AttemptError
	for i, prov := range e.providers {
		j, provAttempts := e.tryProvider(ctx, prov, creq)
		attempts = append(attempts, provAttempts...)
		if j != nil {
			if i > 0 {
				e.logger.Info("judge fell back from primary provider",
					"provider", prov.Name(),
					"failed_attempts", len(attempts))
			}
			return j, nil
		}
		if ctx.Err() != nil {
			break
		}
	}

	return nil, &types.JudgeFailure{Attempts: attempts}
}

// tryProvider exhausts one provider: schema violations are retried with the
// same prompt, provider-level failures are retried after exponential backoff.
// Returns the judgment on success plus every failed attempt along the way.
func (e *Engine) tryProvider(ctx context.Context, prov provider.Provider, creq *provider.CompletionRequest) (*types.Judgment, []types.AttemptError) {
	var attempts []types.AttemptError
	schemaAttempts := 0
	provAttempts := 0

	for {
		resp, err := prov.Complete(ctx, creq)
		if err != nil {
			attempts = append(attempts, types.AttemptError{
				Provider: prov.Name(),
				Attempt:  len(attempts) + 1,
				Err:      err,
			})
			provAttempts++
			if provAttempts > e.maxRetries || ctx.Err() != nil {
				return nil, attempts
			}
			if !e.sleepBackoff(ctx, provAttempts-1) {
				return nil, attempts
			}
			continue
		}

		j, err := schema.Validate(resp.Content)
		if err != nil {
			attempts = append(attempts, types.AttemptError{
				Provider: prov.Name(),
				Attempt:  len(attempts) + 1,
				Err:      err,
			})
			schemaAttempts++
			if schemaAttempts > e.schemaRetries {
				return nil, attempts
			}
			// Malformed output is usually transient; same prompt, no backoff.
			continue
		}

		j.Provider = prov.Name()
		j.Model = resp.Model
		if j.Model == "" {
			j.Model = creq.Model
		}
		return j, attempts
	}
}

// sleepBackoff waits BaseBackoff*2^attempt capped at MaxBackoff, plus
// jitter. Returns false if the context expired while waiting.
func (e *Engine) sleepBackoff(ctx context.Context, attempt int) bool {
	backoff := min(e.baseBackoff<<attempt, e.maxBackoff)
	if e.maxJitter > 0 {
		backoff += rand.N(e.maxJitter)
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(backoff):
		return true
	}
}

// Describe returns a short human-readable summary of the engine's chain,
// used in logs at startup.
func (e *Engine) Describe() string {
	names := make([]string, len(e.providers))
	for i, p := range e.providers {
		names[i] = p.Name()
	}
	return fmt.Sprintf("providers=%v schema_retries=%d max_retries=%d", names, e.schemaRetries, e.maxRetries)
}
