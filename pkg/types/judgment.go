package types

// Verdict is the outcome of a semantic judgment.
type Verdict string

const (
	VerdictPass Verdict = "PASS"
	VerdictFail Verdict = "FAIL"
)

// Params holds the model parameters that affect judgment output.
// They participate in the request fingerprint.
type Params struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// DefaultParams are the standard judge parameters: zero temperature for
// consistency, enough tokens for a verdict plus a short rationale.
var DefaultParams = Params{Temperature: 0.0, MaxTokens: 256}

// JudgmentRequest describes one semantic comparison. It is a value type and
// is never mutated after creation; one is built per assertion call.
type JudgmentRequest struct {
	// Actual is the output under test. May be empty; "no output produced"
	// is a valid and meaningful case.
	Actual string `json:"actual"`

	// Expected is the criterion the actual output must satisfy. Required.
	Expected string `json:"expected"`

	// Context is optional background given verbatim to the judge.
	Context string `json:"context,omitempty"`

	// ModelID selects the judge model. Empty means the primary provider's
	// default model.
	ModelID string `json:"model_id,omitempty"`

	// Params are the model parameters for this judgment.
	Params Params `json:"params"`
}

// Judgment is the parsed, validated result of one judge call.
// Immutable after creation.
type Judgment struct {
	Verdict Verdict `json:"verdict"`

	// Confidence is the judge's self-reported confidence in [0, 1].
	// Nil when the model omitted it.
	Confidence *float64 `json:"confidence,omitempty"`

	// Rationale explains the verdict. Shown to the developer on failure.
	Rationale string `json:"rationale"`

	// Provider and Model record which backend produced this judgment,
	// making fallback observable.
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	// Clamped is set when an out-of-range confidence was clamped into [0, 1]
	// rather than rejected.
	Clamped bool `json:"clamped,omitempty"`
}

// Passed reports whether the judgment is a PASS verdict.
func (j *Judgment) Passed() bool {
	return j.Verdict == VerdictPass
}

// AssertionOutcome is the result of one assertion call. Ephemeral: it is
// not cached and not shared across calls.
type AssertionOutcome struct {
	Passed         bool      `json:"passed"`
	Judgment       *Judgment `json:"judgment"`
	FailureMessage string    `json:"failure_message,omitempty"`
}
