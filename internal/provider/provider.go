// Package provider abstracts model backends behind a single capability:
// send a prompt, receive a text response. Concrete providers handle auth,
// per-call timeouts, and mapping backend errors into the ProviderError
// taxonomy the judge engine retries and falls back on.
package provider

import (
	"context"
	"os"
	"strconv"
	"time"
)

// Message is a single conversation message.
type Message struct {
	Role    string
	Content string
}

// CompletionRequest describes one judge call to a model backend.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Temperature  float64
	MaxTokens    int
}

// CompletionResponse is the raw backend response before schema validation.
type CompletionResponse struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	Cost         float64
	DurationMS   int64
}

// Provider is the uniform interface over model backends.
type Provider interface {
	// Name identifies the backend in logs, errors, and judgments.
	Name() string

	// DefaultModel is used when a request does not pin a model.
	DefaultModel() string

	// Complete sends a prompt and returns the raw response. Failures are
	// *types.ProviderError values classified by kind.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// callTimeout reads the per-call provider timeout from SEMTEST_PROVIDER_TIMEOUT_S.
// Defaults to 30 seconds if unset or invalid.
func callTimeout() time.Duration {
	v := os.Getenv("SEMTEST_PROVIDER_TIMEOUT_S")
	if v == "" {
		return 30 * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 30 * time.Second
	}
	return time.Duration(n) * time.Second
}
