package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/semtest-ai/semtest/engine/internal/funcinfo"
	"github.com/semtest-ai/semtest/engine/internal/report"
	"github.com/semtest-ai/semtest/engine/internal/suite"
)

// check judges whether the named functions in a Go source file do what
// their doc comments say, then prints a report. Exits non-zero when any
// function fails or the judge is unavailable.
func check(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	format := fs.String("format", "json", "report format: json or markdown")
	depth := fs.Int("depth", funcinfo.DefaultMaxDepth, "dependency depth included as judge context")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: semtest-engine check [-format json|markdown] <file.go> <func> [func...]")
	}
	file := fs.Arg(0)
	names := fs.Args()[1:]

	ctx := context.Background()
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return fmt.Errorf("processing config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))

	engine, err := buildEngine(&cfg, logger)
	if err != nil {
		return err
	}

	s := suite.New(engine, suite.WithLogger(logger))

	start := time.Now()
	records := make([]report.Record, 0, len(names))
	failed := false
	for _, name := range names {
		fn, err := funcinfo.FromFile(file, name, *depth)
		if err != nil {
			return fmt.Errorf("analyzing %s: %w", name, err)
		}
		out, err := s.Test(ctx, fn)
		if err != nil {
			records = append(records, report.RecordFromError(name, err))
			failed = true
			continue
		}
		records = append(records, report.RecordFromOutcome(name, out))
		if !out.Passed {
			failed = true
		}
	}
	elapsed := time.Since(start).Milliseconds()

	switch *format {
	case "markdown":
		err = report.GenerateMarkdown(os.Stdout, &report.MarkdownReport{
			RunAt:      time.Now(),
			Records:    records,
			DurationMS: elapsed,
		})
	default:
		var out []byte
		out, err = report.GenerateJSONReport(records, elapsed)
		if err == nil {
			_, err = fmt.Fprintf(os.Stdout, "%s\n", out)
		}
	}
	if err != nil {
		return err
	}

	if failed {
		os.Exit(1)
	}
	return nil
}
