package types

import (
	"fmt"
	"strings"
)

// SchemaError means the model's response did not match the judgment schema.
// This signals a judge malfunction, not a failing test: the engine retries
// the same prompt before escalating to the next provider.
type SchemaError struct {
	// Reason describes what was malformed.
	Reason string
	// Raw is the offending response text, truncated for messages.
	Raw string
}

func (e *SchemaError) Error() string {
	raw := e.Raw
	if len(raw) > 200 {
		raw = raw[:200] + "..."
	}
	return fmt.Sprintf("judgment schema violation: %s (response: %q)", e.Reason, raw)
}

// ProviderErrorKind classifies provider-level failures.
type ProviderErrorKind string

const (
	ProviderTimeout     ProviderErrorKind = "timeout"
	ProviderAuth        ProviderErrorKind = "auth"
	ProviderRateLimit   ProviderErrorKind = "rate_limit"
	ProviderUnavailable ProviderErrorKind = "unavailable"
)

// ProviderError wraps a failure from a model backend. Eligible for backoff
// retry and provider fallback; never surfaced as a semantic FAIL.
type ProviderError struct {
	Provider string
	Kind     ProviderErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// AttemptError records one failed attempt during judgment, including which
// provider and which attempt number it was.
type AttemptError struct {
	Provider string `json:"provider"`
	Attempt  int    `json:"attempt"`
	Err      error  `json:"-"`
}

func (a AttemptError) String() string {
	return fmt.Sprintf("%s attempt %d: %v", a.Provider, a.Attempt, a.Err)
}

// JudgeFailure means every provider in the fallback chain was exhausted.
// It is an infrastructure failure, reported distinctly from a FAIL verdict
// so CI can separate "the code is wrong" from "the judge couldn't run".
type JudgeFailure struct {
	Attempts []AttemptError
}

func (e *JudgeFailure) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "all judge providers exhausted after %d attempts", len(e.Attempts))
	for _, a := range e.Attempts {
		sb.WriteString("\n  ")
		sb.WriteString(a.String())
	}
	return sb.String()
}
