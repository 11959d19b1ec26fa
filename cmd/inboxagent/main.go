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

// Command inboxagent summarizes unread Gmail messages in a signed-in Chrome
// profile and sends replies the user has reviewed and confirmed.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bcem/inboxagent/internal/config"
	"github.com/bcem/inboxagent/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
	logFile    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "inboxagent",
		Short: "Summarizes unread Gmail and drafts replies with a language model",
		Long: `inboxagent drives your signed-in Chrome profile to read unread Gmail
messages, summarizes each one with a language model (Groq or Ollama) and
drafts replies from your instructions. Nothing is sent until you confirm.

Running inboxagent without a subcommand starts an interactive session.`,
		SilenceUsage: true,
		Version:      version,
	}
	root.SetVersionTemplate(`{{printf "inboxagent version %s\n" .Version}}`)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yaml (default $CONFIG_PATH or ./config.yaml)")
	root.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "write JSON logs to this file instead of stderr")

	run := newRunCmd(opts)
	root.RunE = run.RunE
	root.AddCommand(run, newCheckCmd(opts), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "inboxagent version %s\n", version)
		},
	}
}

// setup loads configuration and installs the default logger. The returned
// func closes the log file, if any.
func setup(opts *rootOptions) (*config.Config, func(), error) {
	if opts.configPath != "" {
		os.Setenv("CONFIG_PATH", opts.configPath)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = os.Stderr
	closeLog := func() {}
	if opts.logFile != "" {
		f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeLog = func() { f.Close() }
	}
	logging.Setup(out, level)

	slog.Info("configuration loaded",
		"llm_provider", cfg.LLM.Provider,
		"llm_concurrency", cfg.LLM.Concurrency,
		"cache", cacheKind(cfg),
		"cache_ttl", cfg.CacheTTL.String(),
		"ledger_enabled", cfg.DatabaseURL != "",
		"metrics_addr", cfg.MetricsAddr,
	)
	return cfg, closeLog, nil
}

func cacheKind(cfg *config.Config) string {
	if cfg.RedisURL == "" {
		return "memory"
	}
	return "redis"
}
