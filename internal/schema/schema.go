// Package schema validates raw judge responses against the strict judgment
// contract. Parsing fails closed: anything that is not a well-formed verdict
// object is a SchemaError, never a guessed PASS or FAIL.
package schema

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/segmentio/encoding/json"

	"github.com/semtest-ai/semtest/engine/pkg/types"
)

// Version tags cached judgments. Bump on any change to the judgment shape so
// persisted entries from older schemas are never silently reused.
const Version = 1

const judgmentSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["verdict", "rationale"],
	"properties": {
		"verdict": {"type": "string", "enum": ["PASS", "FAIL"]},
		"confidence": {"type": "number"},
		"rationale": {"type": "string"}
	}
}`

var compiled = mustCompile()

func mustCompile() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(judgmentSchema))
	if err != nil {
		panic(fmt.Sprintf("judgment schema is not valid JSON: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("judgment.json", doc); err != nil {
		panic(fmt.Sprintf("add judgment schema resource: %v", err))
	}
	s, err := c.Compile("judgment.json")
	if err != nil {
		panic(fmt.Sprintf("compile judgment schema: %v", err))
	}
	return s
}

// rawJudgment is the wire shape before confidence clamping.
type rawJudgment struct {
	Verdict    string   `json:"verdict"`
	Confidence *float64 `json:"confidence"`
	Rationale  string   `json:"rationale"`
}

// Validate parses a raw model response into a Judgment. The response may
// wrap its JSON in markdown code fences or surrounding prose; the object is
// located first, then validated strictly. A verdict embedded in free text
// instead of the structured slot is a SchemaError. Out-of-range confidence
// is clamped into [0, 1] and flagged rather than rejected, since the
// rationale remains usable.
func Validate(raw string) (*types.Judgment, error) {
	body := extractJSON(raw)
	if body == "" {
		return nil, &types.SchemaError{Reason: "no JSON object found", Raw: raw}
	}

	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, &types.SchemaError{Reason: fmt.Sprintf("invalid JSON: %v", err), Raw: raw}
	}
	if err := compiled.Validate(doc); err != nil {
		return nil, &types.SchemaError{Reason: err.Error(), Raw: raw}
	}

	var rj rawJudgment
	if err := json.Unmarshal([]byte(body), &rj); err != nil {
		return nil, &types.SchemaError{Reason: fmt.Sprintf("decode judgment: %v", err), Raw: raw}
	}

	j := &types.Judgment{
		Verdict:   types.Verdict(rj.Verdict),
		Rationale: rj.Rationale,
	}
	if rj.Confidence != nil {
		c := *rj.Confidence
		switch {
		case c < 0:
			c = 0
			j.Clamped = true
		case c > 1:
			c = 1
			j.Clamped = true
		}
		j.Confidence = &c
	}
	return j, nil
}

// extractJSON locates the JSON object in a model response. Preference order:
// a ```json fenced block, then the outermost brace pair. Models frequently
// decorate structured output with prose or markdown; the schema check after
// extraction is what keeps this from guessing.
func extractJSON(s string) string {
	if fenced := extractFenced(s); fenced != "" {
		return fenced
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return s[start : end+1]
}

func extractFenced(s string) string {
	lines := strings.Split(s, "\n")
	var body []string
	in := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !in && (trimmed == "```json" || trimmed == "```") {
			in = true
			continue
		}
		if in && trimmed == "```" {
			return strings.TrimSpace(strings.Join(body, "\n"))
		}
		if in {
			body = append(body, line)
		}
	}
	return ""
}
