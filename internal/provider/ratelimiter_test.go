package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/semtest-ai/semtest/engine/pkg/types"
)

func TestRateLimiter_Concurrency(t *testing.T) {
	mock := NewVerdictProvider("PASS", "ok")

	cfg := RateLimiterConfig{
		RequestsPerMinute: 600, // 10/sec
		Burst:             10,
		MaxRetries:        0,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        time.Second,
	}
	rl, err := NewRateLimitedProvider(mock, cfg)
	if err != nil {
		t.Fatalf("NewRateLimitedProvider: %v", err)
	}

	const numRequests = 20
	var wg sync.WaitGroup
	errs := make(chan error, numRequests)

	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := &CompletionRequest{
				Model:        "mock-model",
				SystemPrompt: "test",
				Messages:     []Message{{Role: "user", Content: "hello"}},
			}
			if _, err := rl.Complete(context.Background(), req); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Complete: %v", err)
	}
	if mock.Calls() != numRequests {
		t.Errorf("Calls = %d, want %d", mock.Calls(), numRequests)
	}
}

func TestRateLimiter_RetriesRateLimitErrors(t *testing.T) {
	rlErr := &types.ProviderError{Provider: "mock", Kind: types.ProviderRateLimit, Err: errors.New("429")}
	mock := NewMockProvider(
		[]*CompletionResponse{nil, nil, {Content: `{"verdict": "PASS", "rationale": "ok"}`, Model: "mock-model"}},
		[]error{rlErr, rlErr, nil},
	)

	cfg := RateLimiterConfig{
		RequestsPerMinute: 6000,
		Burst:             10,
		MaxRetries:        3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
	}
	rl, err := NewRateLimitedProvider(mock, cfg)
	if err != nil {
		t.Fatalf("NewRateLimitedProvider: %v", err)
	}

	resp, err := rl.Complete(context.Background(), &CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete after retries: %v", err)
	}
	if resp.Content == "" {
		t.Error("empty response content")
	}
	if mock.Calls() != 3 {
		t.Errorf("Calls = %d, want 3 (two rate-limited, one success)", mock.Calls())
	}
}

func TestRateLimiter_PassesThroughOtherErrors(t *testing.T) {
	authErr := &types.ProviderError{Provider: "mock", Kind: types.ProviderAuth, Err: errors.New("401")}
	mock := NewMockProvider(nil, []error{authErr})

	rl, err := NewRateLimitedProvider(mock, DefaultRateLimiterConfig())
	if err != nil {
		t.Fatalf("NewRateLimitedProvider: %v", err)
	}

	_, err = rl.Complete(context.Background(), &CompletionRequest{})
	var pe *types.ProviderError
	if !errors.As(err, &pe) || pe.Kind != types.ProviderAuth {
		t.Fatalf("got %v, want auth error passed through", err)
	}
	if mock.Calls() != 1 {
		t.Errorf("Calls = %d, want 1 (no retry on auth)", mock.Calls())
	}
}

func TestRateLimiter_RejectsInvalidConfig(t *testing.T) {
	mock := NewMockProvider(nil, nil)
	bad := []RateLimiterConfig{
		{RequestsPerMinute: 0, Burst: 1},
		{RequestsPerMinute: 60, Burst: 0},
		{RequestsPerMinute: 60, Burst: 1, MaxRetries: -1},
	}
	for i, cfg := range bad {
		if _, err := NewRateLimitedProvider(mock, cfg); err == nil {
			t.Errorf("config %d: expected validation error", i)
		}
	}
}
