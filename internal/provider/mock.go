package provider

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockProvider implements Provider with scripted responses for testing.
// Responses and Errors are consulted by call index; an error configured for
// an index takes priority over a response.
type MockProvider struct {
	mu               sync.Mutex
	Responses        []*CompletionResponse
	Errors           []error
	callCount        int
	lastRequest      *CompletionRequest
	requestHistory   []CompletionRequest
	ReplayMode       bool
	SimulatedLatency time.Duration
	MatchFunc        func(*CompletionRequest) *CompletionResponse
}

// NewMockProvider creates a MockProvider cycling through the given responses.
// With no responses and no errors configured, every call returns a default
// PASS judgment payload.
func NewMockProvider(responses []*CompletionResponse, errors []error) *MockProvider {
	return &MockProvider{Responses: responses, Errors: errors}
}

// NewReplayProvider creates a MockProvider that consumes responses exactly
// once in order and errors once they are exhausted.
func NewReplayProvider(responses []*CompletionResponse) *MockProvider {
	return &MockProvider{Responses: responses, ReplayMode: true}
}

// NewVerdictProvider creates a MockProvider that always returns the given
// verdict and rationale in valid judgment JSON.
func NewVerdictProvider(verdict, rationale string) *MockProvider {
	return NewMockProvider([]*CompletionResponse{{
		Content: fmt.Sprintf(`{"verdict": %q, "confidence": 0.9, "rationale": %q}`, verdict, rationale),
		Model:   "mock-model",
	}}, nil)
}

func (m *MockProvider) Name() string         { return "mock" }
func (m *MockProvider) DefaultModel() string { return "mock-model" }

func (m *MockProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	latency := m.SimulatedLatency
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.callCount
	m.callCount++
	m.lastRequest = req
	m.requestHistory = append(m.requestHistory, *req)

	if idx < len(m.Errors) && m.Errors[idx] != nil {
		return nil, m.Errors[idx]
	}

	if m.MatchFunc != nil {
		if resp := m.MatchFunc(req); resp != nil {
			return resp, nil
		}
	}

	if m.ReplayMode {
		if idx >= len(m.Responses) {
			return nil, fmt.Errorf("mock provider: all %d responses exhausted at call %d", len(m.Responses), idx)
		}
		return m.Responses[idx], nil
	}

	if len(m.Responses) > 0 {
		return m.Responses[idx%len(m.Responses)], nil
	}

	return &CompletionResponse{
		Content:      `{"verdict": "PASS", "confidence": 0.9, "rationale": "default mock judgment"}`,
		Model:        "mock-model",
		InputTokens:  10,
		OutputTokens: 10,
		DurationMS:   1,
	}, nil
}

// Calls returns the number of times Complete has been called.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastRequest returns the most recent request, or nil before any call.
func (m *MockProvider) LastRequest() *CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequest
}

// History returns a copy of all requests made to this provider.
func (m *MockProvider) History() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.requestHistory...)
}
