// Command semtest-engine runs the semantic judgment engine. `serve` speaks
// newline-delimited JSON-RPC 2.0 on stdin/stdout for test-harness SDKs;
// logs go to stderr so they never interleave with protocol traffic.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sethvargo/go-envconfig"

	"github.com/semtest-ai/semtest/engine/internal/server"
)

const version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("semtest-engine %s\n", version)
	case "serve":
		if err := serve(); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "semtest-engine: %v\n", err)
			os.Exit(1)
		}
	case "check":
		if err := check(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "semtest-engine: %v\n", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: semtest-engine <command>")
	fmt.Fprintln(os.Stderr, "Commands: serve, check, version")
}

func serve() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

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

	srv := server.NewWithConcurrency(os.Stdin, os.Stdout, logger, cfg.MaxConcurrent)
	server.RegisterBuiltinHandlers(srv, engine)

	logger.Info("engine serving",
		"version", version,
		"max_concurrent", cfg.MaxConcurrent,
		"chain", engine.Describe())
	return srv.Run(ctx)
}
