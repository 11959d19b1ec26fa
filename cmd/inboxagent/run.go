// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/bcem/inboxagent/internal/browser"
	"github.com/bcem/inboxagent/internal/cache"
	"github.com/bcem/inboxagent/internal/config"
	"github.com/bcem/inboxagent/internal/ledger"
	"github.com/bcem/inboxagent/internal/llm"
	"github.com/bcem/inboxagent/internal/logging"
	"github.com/bcem/inboxagent/internal/metrics"
	"github.com/bcem/inboxagent/internal/pipeline"
	"github.com/bcem/inboxagent/internal/ui"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start an interactive inbox session",
		Long: `Open Gmail in the configured Chrome profile, summarize every unread email
at the top of the inbox and wait for commands:

  refresh                    scan the inbox again
  reply <n> [instructions]   draft a reply to email n, then confirm or discard
  retry <n>                  summarize email n again
  quit                       exit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), opts)
		},
	}
}

func runSession(ctx context.Context, opts *rootOptions) error {
	cfg, closeLog, err := setup(opts)
	if err != nil {
		return err
	}
	defer closeLog()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.SetDefault(slog.Default().With(logging.KeyRunID, uuid.NewString()))
	if !ui.IsInteractive(os.Stdin) {
		slog.Warn("stdin is not a terminal, commands are read as plain lines")
	}

	checks := make(map[string]metrics.HealthCheck)

	store, closeCache := openCache(ctx, cfg, checks)
	defer closeCache()

	client, err := llm.New(llmConfig(cfg))
	if err != nil {
		return fmt.Errorf("create language model client: %w", err)
	}

	var replies pipeline.Ledger
	if cfg.DatabaseURL != "" {
		pool, err := openLedger(ctx, cfg)
		if err != nil {
			slog.Warn("reply ledger unavailable, continuing without it", logging.KeyError, err)
		} else {
			defer pool.Close()
			replies = pool.store
			checks["postgres"] = pool.store.Ping
		}
	}

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		metrics.Serve(ctx, cfg.MetricsAddr, m, checks)
	}

	coord := pipeline.New(pipeline.Config{
		OpenSession: func(ctx context.Context) (browser.Controller, error) {
			s, err := browser.Open(ctx, browserOptions(cfg))
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		LLM:         client,
		Cache:       store,
		Presenter:   ui.NewTerminal(os.Stdin, os.Stdout),
		Ledger:      replies,
		Metrics:     m,
		Concurrency: cfg.LLM.Concurrency,
	})

	slog.Info("session starting")
	err = coord.Run(ctx)
	if errors.Is(err, context.Canceled) {
		slog.Info("session interrupted")
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("session ended")
	return nil
}

// openCache returns the Redis store when a URL is configured and the
// in-memory store otherwise. An unreachable Redis is logged, not fatal:
// lookups then degrade to misses.
func openCache(ctx context.Context, cfg *config.Config, checks map[string]metrics.HealthCheck) (cache.Store, func()) {
	if cfg.RedisURL == "" {
		slog.Info("using in-memory summary cache")
		return cache.NewMemoryStore(cfg.CacheTTL), func() {}
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Warn("invalid REDIS_URL, using in-memory summary cache", logging.KeyError, err)
		return cache.NewMemoryStore(cfg.CacheTTL), func() {}
	}
	rdb := redis.NewClient(opt)
	store := cache.NewRedisStore(rdb, cfg.CacheTTL)

	if err := store.Ping(ctx); err != nil {
		slog.Warn("redis unreachable, summaries will not be cached until it recovers", logging.KeyError, err)
	} else {
		slog.Info("connected to Redis")
	}
	checks["redis"] = store.Ping
	return store, func() { rdb.Close() }
}

type ledgerPool struct {
	pool  *pgxpool.Pool
	store *ledger.Store
}

func (p *ledgerPool) Close() { p.pool.Close() }

func openLedger(ctx context.Context, cfg *config.Config) (*ledgerPool, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("create Postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to PostgreSQL: %w", err)
	}
	slog.Info("connected to PostgreSQL")

	store, err := ledger.NewStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &ledgerPool{pool: pool, store: store}, nil
}

func llmConfig(cfg *config.Config) llm.Config {
	return llm.Config{
		Provider:      llm.ProviderType(cfg.LLM.Provider),
		GroqAPIKey:    cfg.LLM.GroqAPIKey,
		GroqModel:     cfg.LLM.GroqModel,
		OllamaBaseURL: cfg.LLM.OllamaURL,
		OllamaModel:   cfg.LLM.OllamaModel,
		Temperature:   cfg.LLM.Temperature,
		Retry: llm.RetryConfig{
			MaxTries:          uint(cfg.LLM.MaxRetries),
			RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		},
	}
}

func browserOptions(cfg *config.Config) browser.Options {
	return browser.Options{
		ProfilePath: cfg.Browser.ProfilePath,
		ExecPath:    cfg.Browser.ExecPath,
		Headless:    cfg.Browser.Headless,
		InboxURL:    cfg.Browser.InboxURL,
		Timeout:     cfg.Browser.Timeout,
	}
}
