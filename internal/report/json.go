// Package report renders judgment run results for machines (JSON) and for
// humans (Markdown, suitable for a PR comment).
package report

import (
	"fmt"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/semtest-ai/semtest/engine/pkg/types"
)

// Record statuses. A judge failure is infrastructure giving out, not the
// code under test failing, and is counted separately.
const (
	StatusPass         = "pass"
	StatusFail         = "fail"
	StatusJudgeFailure = "judge_failure"
)

// Record is one judged assertion in a run.
type Record struct {
	Name           string          `json:"name"`
	Status         string          `json:"status"`
	Judgment       *types.Judgment `json:"judgment,omitempty"`
	FailureMessage string          `json:"failure_message,omitempty"`
	Error          string          `json:"error,omitempty"`
	DurationMS     int64           `json:"duration_ms,omitempty"`
}

// RecordFromOutcome converts an assertion outcome to a Record.
func RecordFromOutcome(name string, out *types.AssertionOutcome) Record {
	r := Record{Name: name, Judgment: out.Judgment, FailureMessage: out.FailureMessage}
	if out.Passed {
		r.Status = StatusPass
	} else {
		r.Status = StatusFail
	}
	return r
}

// RecordFromError converts a judge infrastructure error to a Record.
func RecordFromError(name string, err error) Record {
	return Record{Name: name, Status: StatusJudgeFailure, Error: err.Error()}
}

type JSONReport struct {
	Version       string      `json:"version"`
	Timestamp     string      `json:"timestamp"`
	Records       []Record    `json:"records"`
	Summary       JSONSummary `json:"summary"`
	TotalDuration int64       `json:"total_duration_ms"`
}

type JSONSummary struct {
	Total         int `json:"total"`
	Passed        int `json:"passed"`
	Failed        int `json:"failed"`
	JudgeFailures int `json:"judge_failures"`
}

// summarize tallies records by status.
func summarize(records []Record) JSONSummary {
	s := JSONSummary{Total: len(records)}
	for _, r := range records {
		switch r.Status {
		case StatusPass:
			s.Passed++
		case StatusFail:
			s.Failed++
		case StatusJudgeFailure:
			s.JudgeFailures++
		}
	}
	return s
}

// GenerateJSONReport generates a structured JSON report from judged records.
func GenerateJSONReport(records []Record, totalDurationMS int64) ([]byte, error) {
	report := JSONReport{
		Version:       "1.0",
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Records:       records,
		Summary:       summarize(records),
		TotalDuration: totalDurationMS,
	}

	output, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return output, nil
}
