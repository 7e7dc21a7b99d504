package judge

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/semtest-ai/semtest/engine/internal/cache"
	"github.com/semtest-ai/semtest/engine/internal/provider"
	"github.com/semtest-ai/semtest/engine/pkg/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func fastConfig(providers ...provider.Provider) Config {
	return Config{
		Providers:   providers,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
		MaxJitter:   time.Millisecond,
		Logger:      quietLogger(),
	}
}

func passResponse(rationale string) *provider.CompletionResponse {
	return &provider.CompletionResponse{
		Content: `{"verdict": "PASS", "confidence": 0.95, "rationale": "` + rationale + `"}`,
		Model:   "mock-model",
	}
}

func request(actual, expected string) *types.JudgmentRequest {
	return &types.JudgmentRequest{
		Actual:   actual,
		Expected: expected,
		Params:   types.DefaultParams,
	}
}

func TestJudge_CacheDeterminism(t *testing.T) {
	mock := provider.NewVerdictProvider("PASS", "satisfies the criterion")
	e, err := New(fastConfig(mock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	j1, err := e.Judge(ctx, request("The capital of France is Paris.", "mentions that Paris is the capital of France"))
	if err != nil {
		t.Fatalf("first Judge: %v", err)
	}

	// Incidental formatting differences must hit the cache.
	j2, err := e.Judge(ctx, request("The capital of France is Paris.\r\n", "mentions that Paris is the capital of France\n"))
	if err != nil {
		t.Fatalf("second Judge: %v", err)
	}

	if mock.Calls() != 1 {
		t.Errorf("provider calls = %d, want 1 (second call must be served from cache)", mock.Calls())
	}
	if j1.Verdict != j2.Verdict || j1.Rationale != j2.Rationale {
		t.Errorf("cached judgment differs: %+v vs %+v", j1, j2)
	}
}

func TestJudge_Coalescing(t *testing.T) {
	mock := provider.NewVerdictProvider("PASS", "ok")
	mock.SimulatedLatency = 50 * time.Millisecond

	e, err := New(fastConfig(mock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const n = 10
	var wg sync.WaitGroup
	judgments := make([]*types.Judgment, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			judgments[idx], errs[idx] = e.Judge(context.Background(), request("same actual", "same expected"))
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("goroutine %d: %v", i, errs[i])
		}
		if judgments[i].Verdict != judgments[0].Verdict || judgments[i].Rationale != judgments[0].Rationale {
			t.Errorf("goroutine %d observed a different judgment", i)
		}
	}
	if mock.Calls() != 1 {
		t.Errorf("provider calls = %d, want exactly 1 for %d concurrent identical requests", mock.Calls(), n)
	}
}

func TestJudge_SchemaErrorRetriesSamePrompt(t *testing.T) {
	mock := provider.NewMockProvider([]*provider.CompletionResponse{
		{Content: `{"verdict": "MAYBE", "rationale": "on the fence"}`, Model: "mock-model"},
		passResponse("resolved on retry"),
	}, nil)

	e, err := New(fastConfig(mock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	j, err := e.Judge(context.Background(), request("out", "criterion"))
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if j.Verdict != types.VerdictPass {
		t.Errorf("Verdict = %q, want PASS", j.Verdict)
	}
	if mock.Calls() != 2 {
		t.Errorf("provider calls = %d, want 2 (malformed then retry)", mock.Calls())
	}

	hist := mock.History()
	if hist[0].Messages[0].Content != hist[1].Messages[0].Content {
		t.Error("schema retry must reuse the same prompt")
	}
}

func TestJudge_SchemaRetriesExhaustEscalateToFallback(t *testing.T) {
	malformed := &provider.CompletionResponse{Content: `no json here`, Model: "mock-model"}
	primary := provider.NewMockProvider([]*provider.CompletionResponse{malformed}, nil)
	secondary := provider.NewVerdictProvider("FAIL", "does not mention Paris")

	e, err := New(fastConfig(primary, secondary))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	j, err := e.Judge(context.Background(), request("I don't know.", "mentions Paris"))
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if j.Verdict != types.VerdictFail {
		t.Errorf("Verdict = %q, want FAIL from secondary", j.Verdict)
	}
	if j.Provider != "mock" {
		t.Errorf("Provider = %q", j.Provider)
	}
	// 1 initial + 2 schema retries on the primary, then the secondary.
	if primary.Calls() != 3 {
		t.Errorf("primary calls = %d, want 3", primary.Calls())
	}
	if secondary.Calls() != 1 {
		t.Errorf("secondary calls = %d, want 1", secondary.Calls())
	}
}

// alwaysFailingProvider returns the same ProviderError on every call.
type alwaysFailingProvider struct {
	name  string
	kind  types.ProviderErrorKind
	calls int
	mu    sync.Mutex
}

func (p *alwaysFailingProvider) Name() string         { return p.name }
func (p *alwaysFailingProvider) DefaultModel() string { return "m" }
func (p *alwaysFailingProvider) Complete(_ context.Context, _ *provider.CompletionRequest) (*provider.CompletionResponse, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return nil, &types.ProviderError{Provider: p.name, Kind: p.kind, Err: errors.New(string(p.kind))}
}

func TestJudge_FallbackChain(t *testing.T) {
	primary := &alwaysFailingProvider{name: "local", kind: types.ProviderUnavailable}
	secondary := provider.NewVerdictProvider("PASS", "criterion satisfied")

	e, err := New(fastConfig(primary, secondary))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	j, err := e.Judge(context.Background(), request("output", "criterion"))
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if j.Verdict != types.VerdictPass {
		t.Errorf("Verdict = %q, want PASS", j.Verdict)
	}
	// Fallback must be recorded on the judgment.
	if j.Provider != "mock" {
		t.Errorf("Provider = %q, want the secondary's name", j.Provider)
	}
	// Initial attempt + MaxRetries on the primary.
	if primary.calls != 3 {
		t.Errorf("primary calls = %d, want 3", primary.calls)
	}
}

// namedProvider gives a scripted mock a distinct provider name and default
// model, for exercising chains of unlike backends.
type namedProvider struct {
	*provider.MockProvider
	name         string
	defaultModel string
}

func (p *namedProvider) Name() string         { return p.name }
func (p *namedProvider) DefaultModel() string { return p.defaultModel }

func TestJudge_FallbackDoesNotPinPrimaryModel(t *testing.T) {
	primary := &alwaysFailingProvider{name: "anthropic", kind: types.ProviderUnavailable}
	secondary := &namedProvider{
		MockProvider: provider.NewVerdictProvider("PASS", "ok"),
		name:         "openai",
		defaultModel: "gpt-judge",
	}

	e, err := New(fastConfig(primary, secondary))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Unpinned request: the fallback provider must serve its own default
	// model, never the primary's.
	j, err := e.Judge(context.Background(), request("output", "criterion"))
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if j.Provider != "openai" {
		t.Fatalf("Provider = %q, want the secondary", j.Provider)
	}
	got := secondary.LastRequest().Model
	if got == primary.DefaultModel() {
		t.Errorf("fallback was asked for the primary's default model %q", got)
	}
	if got != "" {
		t.Errorf("unpinned request sent Model = %q, want empty so the provider defaults it", got)
	}

	// A pinned model is passed through to every provider unchanged.
	req := request("other output", "criterion")
	req.ModelID = "pinned-model"
	if _, err := e.Judge(context.Background(), req); err != nil {
		t.Fatalf("Judge with pinned model: %v", err)
	}
	if got := secondary.LastRequest().Model; got != "pinned-model" {
		t.Errorf("pinned request sent Model = %q, want pinned-model", got)
	}
}

func TestJudge_AllProvidersExhausted(t *testing.T) {
	p1 := &alwaysFailingProvider{name: "local", kind: types.ProviderTimeout}
	p2 := &alwaysFailingProvider{name: "hosted", kind: types.ProviderTimeout}

	e, err := New(fastConfig(p1, p2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = e.Judge(context.Background(), request("out", "criterion"))
	var jf *types.JudgeFailure
	if !errors.As(err, &jf) {
		t.Fatalf("got %v, want JudgeFailure", err)
	}

	// Both providers' timeout errors must be listed.
	msg := jf.Error()
	if !strings.Contains(msg, "local") || !strings.Contains(msg, "hosted") {
		t.Errorf("failure should name both providers: %s", msg)
	}
	if !strings.Contains(msg, "timeout") {
		t.Errorf("failure should describe the timeout errors: %s", msg)
	}
	if len(jf.Attempts) != 6 {
		t.Errorf("attempts = %d, want 6 (3 per provider)", len(jf.Attempts))
	}
}

func TestJudge_FailureNotCached(t *testing.T) {
	flaky := &alwaysFailingProvider{name: "flaky", kind: types.ProviderUnavailable}
	e, err := New(fastConfig(flaky))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := e.Judge(context.Background(), request("out", "criterion")); err == nil {
		t.Fatal("expected JudgeFailure")
	}
	before := flaky.calls

	// A second call must reach the provider again, not a cached failure.
	if _, err := e.Judge(context.Background(), request("out", "criterion")); err == nil {
		t.Fatal("expected JudgeFailure")
	}
	if flaky.calls == before {
		t.Error("second judge call after failure performed no provider calls")
	}
}

func TestJudge_EmptyActualSentToModel(t *testing.T) {
	mock := provider.NewVerdictProvider("PASS", "no error was produced, as required")
	e, err := New(fastConfig(mock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	j, err := e.Judge(context.Background(), request("", "must not produce an error"))
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if j.Verdict != types.VerdictPass {
		t.Errorf("Verdict = %q; empty actual must not short-circuit to FAIL", j.Verdict)
	}
	if mock.Calls() != 1 {
		t.Errorf("provider calls = %d, want 1", mock.Calls())
	}
	if !strings.Contains(mock.LastRequest().Messages[0].Content, "(no output produced)") {
		t.Error("empty actual not represented in the prompt sent to the model")
	}
}

func TestJudge_EmptyExpectedRejected(t *testing.T) {
	e, err := New(fastConfig(provider.NewMockProvider(nil, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := e.Judge(context.Background(), request("out", "  ")); err == nil {
		t.Fatal("expected error for empty criterion")
	}
}

func TestJudge_SharedCacheAcrossEngines(t *testing.T) {
	store := cache.NewMemoryStore()

	m1 := provider.NewVerdictProvider("PASS", "ok")
	e1, _ := New(Config{Providers: []provider.Provider{m1}, Cache: store, Logger: quietLogger()})
	if _, err := e1.Judge(context.Background(), request("a", "b")); err != nil {
		t.Fatalf("Judge: %v", err)
	}

	// A fresh engine over the same store (same default model) reuses the entry.
	m2 := provider.NewVerdictProvider("FAIL", "should never be consulted")
	e2, _ := New(Config{Providers: []provider.Provider{m2}, Cache: store, Logger: quietLogger()})
	j, err := e2.Judge(context.Background(), request("a", "b"))
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if j.Verdict != types.VerdictPass {
		t.Errorf("Verdict = %q, want cached PASS", j.Verdict)
	}
	if m2.Calls() != 0 {
		t.Errorf("provider calls = %d, want 0", m2.Calls())
	}
}
