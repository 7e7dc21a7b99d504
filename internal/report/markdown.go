package report

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// MarkdownReport holds data for a Markdown PR comment report.
type MarkdownReport struct {
	Title      string
	RunAt      time.Time
	Records    []Record
	DurationMS int64
}

// GenerateMarkdown writes a Markdown-formatted report to w.
func GenerateMarkdown(w io.Writer, r *MarkdownReport) error {
	title := r.Title
	if title == "" {
		title = "Semantic Test Report"
	}

	if _, err := fmt.Fprintf(w, "## %s\n\n", title); err != nil {
		return err
	}

	if !r.RunAt.IsZero() {
		if _, err := fmt.Fprintf(w, "**Run at:** %s\n\n", r.RunAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}

	s := summarize(r.Records)
	if _, err := fmt.Fprintf(w, "**Results:** %d total — %d passed, %d failed, %d judge failures\n\n",
		s.Total, s.Passed, s.Failed, s.JudgeFailures); err != nil {
		return err
	}

	if r.DurationMS > 0 {
		if _, err := fmt.Fprintf(w, "**Duration:** %dms\n\n", r.DurationMS); err != nil {
			return err
		}
	}

	if len(r.Records) == 0 {
		_, err := fmt.Fprintln(w, "_No assertions judged._")
		return err
	}

	if _, err := fmt.Fprintln(w, "| Assertion | Status | Confidence | Rationale |"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "|-----------|--------|------------|-----------|"); err != nil {
		return err
	}

	for _, rec := range r.Records {
		if _, err := fmt.Fprintf(w, "| `%s` | %s %s | %s | %s |\n",
			rec.Name, statusIcon(rec.Status), rec.Status, confidenceCell(rec), rationaleCell(rec)); err != nil {
			return err
		}
	}

	return nil
}

func statusIcon(status string) string {
	switch status {
	case StatusPass:
		return ":white_check_mark:"
	case StatusFail:
		return ":x:"
	case StatusJudgeFailure:
		return ":warning:"
	default:
		return ":grey_question:"
	}
}

func confidenceCell(r Record) string {
	if r.Judgment == nil || r.Judgment.Confidence == nil {
		return "—"
	}
	return fmt.Sprintf("%.2f", *r.Judgment.Confidence)
}

// rationaleCell renders the judge rationale or error, escaped and truncated
// to keep the table readable.
func rationaleCell(r Record) string {
	text := r.Error
	if r.Judgment != nil {
		text = r.Judgment.Rationale
	}
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "|", "\\|")
	if len(text) > 100 {
		text = text[:97] + "..."
	}
	return text
}
