package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/semtest-ai/semtest/engine/internal/cache"
	"github.com/semtest-ai/semtest/engine/internal/judge"
	"github.com/semtest-ai/semtest/engine/internal/provider"
)

// config is read from SEMTEST_* environment variables.
type config struct {
	// Provider pins the judge backend: "anthropic", "openai", or empty for
	// auto-detection by available API key.
	Provider string `env:"SEMTEST_PROVIDER"`
	Model    string `env:"SEMTEST_MODEL"`

	AnthropicAPIKey string `env:"SEMTEST_ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `env:"SEMTEST_OPENAI_API_KEY"`
	// OpenAIBaseURL points the OpenAI-compatible provider at a local or
	// proxy endpoint (e.g. Ollama).
	OpenAIBaseURL string `env:"SEMTEST_OPENAI_BASE_URL"`

	// CachePath enables the persistent judgment cache. Empty means the
	// default per-run in-memory cache.
	CachePath string `env:"SEMTEST_CACHE_PATH"`

	RequestsPerMinute int    `env:"SEMTEST_RPM,default=60"`
	MaxConcurrent     int    `env:"SEMTEST_MAX_CONCURRENT,default=1"`
	LogLevel          string `env:"SEMTEST_LOG_LEVEL,default=info"`
}

var errNoProvider = errors.New("no judge provider configured: set SEMTEST_ANTHROPIC_API_KEY, SEMTEST_OPENAI_API_KEY, or SEMTEST_OPENAI_BASE_URL")

// buildProviders constructs the fallback chain from the configuration.
// The pinned or auto-detected primary comes first; every provider is
// wrapped with client-side rate limiting.
func buildProviders(cfg *config, logger *slog.Logger) ([]provider.Provider, error) {
	var providers []provider.Provider

	wantAnthropic := cfg.Provider == "" || cfg.Provider == "anthropic"
	wantOpenAI := cfg.Provider == "" || cfg.Provider == "openai"

	if wantAnthropic && cfg.AnthropicAPIKey != "" {
		p, err := provider.NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("anthropic provider: %w", err)
		}
		providers = append(providers, p)
	}

	if wantOpenAI && (cfg.OpenAIAPIKey != "" || cfg.OpenAIBaseURL != "") {
		p, err := provider.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.Model, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, fmt.Errorf("openai provider: %w", err)
		}
		providers = append(providers, p)
	}

	if len(providers) == 0 {
		if cfg.Provider != "" {
			return nil, fmt.Errorf("provider %q requested but its API key is not set", cfg.Provider)
		}
		return nil, errNoProvider
	}

	rlCfg := provider.DefaultRateLimiterConfig()
	rlCfg.RequestsPerMinute = cfg.RequestsPerMinute
	limited := make([]provider.Provider, 0, len(providers))
	for _, p := range providers {
		rl, err := provider.NewRateLimitedProvider(p, rlCfg)
		if err != nil {
			return nil, err
		}
		logger.Info("judge provider ready", "provider", p.Name(), "model", p.DefaultModel())
		limited = append(limited, rl)
	}
	return limited, nil
}

// buildEngine assembles the judge engine: providers, cache, logging.
func buildEngine(cfg *config, logger *slog.Logger) (*judge.Engine, error) {
	providers, err := buildProviders(cfg, logger)
	if err != nil {
		return nil, err
	}

	var store cache.Store
	if cfg.CachePath != "" {
		s, err := cache.NewSQLiteStore(cfg.CachePath)
		if err != nil {
			return nil, fmt.Errorf("opening judgment cache %s: %w", cfg.CachePath, err)
		}
		logger.Info("persistent judgment cache enabled", "path", cfg.CachePath)
		store = s
	}

	return judge.New(judge.Config{
		Providers: providers,
		Cache:     store,
		Logger:    logger,
	})
}

func parseLogLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
