// Package assertion is the public surface a test calls: semantic equality
// checks backed by the judge engine. A FAIL verdict is a failing test with
// the judge's rationale in the message; a JudgeFailure is an infrastructure
// error reported in a distinct category so CI can tell them apart.
package assertion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/semtest-ai/semtest/engine/internal/judge"
	"github.com/semtest-ai/semtest/engine/pkg/types"
)

// judgeUnavailablePrefix marks infrastructure failures in test output.
// CI reporting keys off this prefix to separate "the code is wrong" from
// "the judge couldn't run".
const judgeUnavailablePrefix = "SEMTEST JUDGE UNAVAILABLE"

// Option adjusts a single assertion call.
type Option func(*callOptions)

type callOptions struct {
	context string
	modelID string
	params  types.Params
}

// WithContext supplies background text given verbatim to the judge.
func WithContext(c string) Option {
	return func(o *callOptions) { o.context = c }
}

// WithModel pins the judge model for this assertion.
func WithModel(m string) Option {
	return func(o *callOptions) { o.modelID = m }
}

// WithTemperature overrides the judge temperature. Non-zero temperatures
// weaken run-to-run stability; the default is 0.
func WithTemperature(t float64) Option {
	return func(o *callOptions) { o.params.Temperature = t }
}

// WithMaxTokens overrides the judge response budget.
func WithMaxTokens(n int) Option {
	return func(o *callOptions) { o.params.MaxTokens = n }
}

// Asserter binds assertions to a judge engine.
type Asserter struct {
	engine *judge.Engine
}

// New creates an Asserter over the given engine.
func New(engine *judge.Engine) *Asserter {
	return &Asserter{engine: engine}
}

// Check judges whether actual semantically satisfies expected. The returned
// error is non-nil only for infrastructure failures (*types.JudgeFailure or
// an invalid request); a FAIL verdict is a successful check with
// Passed=false and a formatted failure message.
func (a *Asserter) Check(ctx context.Context, actual, expected string, opts ...Option) (*types.AssertionOutcome, error) {
	o := callOptions{params: types.DefaultParams}
	for _, opt := range opts {
		opt(&o)
	}

	req := &types.JudgmentRequest{
		Actual:   actual,
		Expected: expected,
		Context:  o.context,
		ModelID:  o.modelID,
		Params:   o.params,
	}

	j, err := a.engine.Judge(ctx, req)
	if err != nil {
		return nil, err
	}

	out := &types.AssertionOutcome{Passed: j.Passed(), Judgment: j}
	if !out.Passed {
		out.FailureMessage = formatFailure(actual, expected, j)
	}
	return out, nil
}

// Equal asserts that actual semantically satisfies expected, failing the
// test with the judge's rationale otherwise. Infrastructure failures fail
// the test too, but under a distinguishable category.
func (a *Asserter) Equal(tb testing.TB, actual, expected string, opts ...Option) {
	tb.Helper()

	out, err := a.Check(context.Background(), actual, expected, opts...)
	if err != nil {
		var jf *types.JudgeFailure
		if errors.As(err, &jf) {
			tb.Fatalf("%s: could not judge assertion (this is an infrastructure failure, not a failing test):\n%v", judgeUnavailablePrefix, jf)
			return
		}
		tb.Fatalf("semantic assertion misconfigured: %v", err)
		return
	}
	if !out.Passed {
		tb.Fatalf("%s", out.FailureMessage)
	}
}

// IsJudgeUnavailable reports whether a test failure message came from judge
// infrastructure rather than a semantic FAIL.
func IsJudgeUnavailable(message string) bool {
	return strings.HasPrefix(message, judgeUnavailablePrefix)
}

func formatFailure(actual, expected string, j *types.Judgment) string {
	var sb strings.Builder
	sb.WriteString("semantic assertion failed\n")
	fmt.Fprintf(&sb, "  expected: %s\n", indentContinuation(expected))
	if actual == "" {
		sb.WriteString("  actual:   (no output produced)\n")
	} else {
		fmt.Fprintf(&sb, "  actual:   %s\n", indentContinuation(actual))
	}
	fmt.Fprintf(&sb, "  judge:    %s", indentContinuation(j.Rationale))
	if j.Confidence != nil {
		fmt.Fprintf(&sb, " (confidence %.2f)", *j.Confidence)
	}
	if j.Provider != "" {
		fmt.Fprintf(&sb, "\n  judged by %s", j.Provider)
		if j.Model != "" {
			fmt.Fprintf(&sb, " (%s)", j.Model)
		}
	}
	return sb.String()
}

// indentContinuation keeps multi-line values aligned under their label.
func indentContinuation(s string) string {
	return strings.ReplaceAll(s, "\n", "\n            ")
}
