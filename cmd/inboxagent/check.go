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
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bcem/inboxagent/internal/llm"
	"github.com/bcem/inboxagent/internal/metrics"
)

const checkTimeout = 10 * time.Second

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify configuration and reachability of Redis, Postgres and the language model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
}

func runCheck(ctx context.Context, out io.Writer, opts *rootOptions) error {
	cfg, closeLog, err := setup(opts)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	failed := 0
	report := func(name string, err error) {
		if err != nil {
			failed++
			fmt.Fprintf(out, "FAIL  %-10s %v\n", name, err)
			return
		}
		fmt.Fprintf(out, "ok    %s\n", name)
	}

	report("config", cfg.Validate())

	if cfg.Browser.ProfilePath != "" {
		_, err := os.Stat(cfg.Browser.ProfilePath)
		report("profile", err)
	}

	checks := make(map[string]metrics.HealthCheck)
	if cfg.RedisURL != "" {
		_, closeCache := openCache(ctx, cfg, checks)
		if ping, ok := checks["redis"]; ok {
			report("redis", ping(ctx))
		} else {
			report("redis", errors.New("invalid REDIS_URL"))
		}
		closeCache()
	}

	if cfg.DatabaseURL != "" {
		pool, err := openLedger(ctx, cfg)
		report("postgres", err)
		if pool != nil {
			pool.Close()
		}
	}

	client, err := llm.New(llmConfig(cfg))
	switch {
	case err != nil:
		report("llm", err)
	default:
		if p, ok := client.(llm.Pinger); ok {
			report("llm", p.Ping(ctx))
		}
	}

	if failed > 0 {
		return errors.New("one or more checks failed")
	}
	return nil
}
