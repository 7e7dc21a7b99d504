// Package suite semantically tests functions against their own
// documentation: given a function's doc comment and source, the judge
// decides whether the implementation does what the docs claim. This catches
// the class of bug where the code drifts from its contract while every
// structural test still passes.
package suite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/semtest-ai/semtest/engine/internal/assertion"
	"github.com/semtest-ai/semtest/engine/internal/funcinfo"
	"github.com/semtest-ai/semtest/engine/internal/judge"
	"github.com/semtest-ai/semtest/engine/pkg/types"
)

// ErrNoDoc is returned for functions without a doc comment: there is no
// documented behavior to judge the implementation against.
var ErrNoDoc = errors.New("function has no doc comment to test against")

// defaultConcurrency bounds parallel judge calls in TestAll.
const defaultConcurrency = 4

// Suite runs documentation-conformance checks through a judge engine.
type Suite struct {
	asserter    *assertion.Asserter
	modelID     string
	concurrency int
	debug       bool
	logger      *slog.Logger
}

// SuiteOption configures a Suite.
type SuiteOption func(*Suite)

// WithModel pins the judge model for all checks in this suite.
func WithModel(m string) SuiteOption {
	return func(s *Suite) { s.modelID = m }
}

// WithConcurrency bounds parallel checks in TestAll.
func WithConcurrency(n int) SuiteOption {
	return func(s *Suite) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithDebug logs each judgment as it resolves.
func WithDebug(debug bool) SuiteOption {
	return func(s *Suite) { s.debug = debug }
}

// WithLogger sets the suite logger.
func WithLogger(l *slog.Logger) SuiteOption {
	return func(s *Suite) { s.logger = l }
}

// New creates a Suite over the given engine.
func New(engine *judge.Engine, opts ...SuiteOption) *Suite {
	s := &Suite{
		asserter:    assertion.New(engine),
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result pairs a function with its conformance outcome.
type Result struct {
	Function string
	Outcome  *types.AssertionOutcome
}

// Test judges whether fn's implementation matches its documented behavior.
// Returns ErrNoDoc for undocumented functions and *types.JudgeFailure when
// the judge infrastructure is down.
func (s *Suite) Test(ctx context.Context, fn *funcinfo.FunctionInfo) (*types.AssertionOutcome, error) {
	if fn.Doc == "" {
		return nil, fmt.Errorf("%s: %w", fn.Name, ErrNoDoc)
	}

	expected := fmt.Sprintf(
		"The implementation must actually do what its documentation describes. Documentation of %s:\n%s",
		fn.Name, fn.Doc,
	)

	opts := []assertion.Option{}
	if ctxText := fn.ContextText(); ctxText != "" {
		opts = append(opts, assertion.WithContext(ctxText))
	}
	if s.modelID != "" {
		opts = append(opts, assertion.WithModel(s.modelID))
	}

	out, err := s.asserter.Check(ctx, fn.Source, expected, opts...)
	if err != nil {
		return nil, err
	}
	if s.debug {
		s.logger.Info("documentation conformance judged",
			"function", fn.Name,
			"passed", out.Passed,
			"rationale", out.Judgment.Rationale)
	}
	return out, nil
}

// TestAll judges several functions concurrently. Judgments for identical
// functions coalesce inside the engine, so duplicates cost one provider
// call. The first infrastructure failure cancels the remaining checks.
func (s *Suite) TestAll(ctx context.Context, fns []*funcinfo.FunctionInfo) ([]Result, error) {
	results := make([]Result, len(fns))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, fn := range fns {
		g.Go(func() error {
			out, err := s.Test(ctx, fn)
			if err != nil {
				return err
			}
			results[i] = Result{Function: fn.Name, Outcome: out}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
