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

// Package config loads configuration from config.yaml, a .env file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LLMConfig selects and tunes the language model backend.
type LLMConfig struct {
	Provider    string // "groq", "ollama" or "auto"
	GroqAPIKey  string
	GroqModel   string
	Temperature float64
	OllamaURL   string
	OllamaModel string

	// Concurrency bounds parallel summarization requests.
	Concurrency       int
	MaxRetries        int
	RequestsPerSecond float64
}

// BrowserConfig locates the signed-in Chrome profile.
type BrowserConfig struct {
	ProfilePath string
	ExecPath    string
	Headless    bool
	InboxURL    string
	Timeout     time.Duration
}

// Config holds all configuration for the agent.
type Config struct {
	LLM     LLMConfig
	Browser BrowserConfig

	// Summary cache. An empty RedisURL selects the in-memory store.
	RedisURL string
	CacheTTL time.Duration

	// Reply ledger. Empty disables it.
	DatabaseURL string

	// Metrics listener. Empty disables it.
	MetricsAddr string

	LogLevel string
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	LLM struct {
		Provider          string   `yaml:"provider"`
		GroqAPIKey        string   `yaml:"groq_api_key"`
		GroqModel         string   `yaml:"groq_model"`
		Temperature       *float64 `yaml:"temperature"`
		OllamaURL         string   `yaml:"ollama_url"`
		OllamaModel       string   `yaml:"ollama_model"`
		Concurrency       int      `yaml:"concurrency"`
		MaxRetries        int      `yaml:"max_retries"`
		RequestsPerSecond float64  `yaml:"requests_per_second"`
	} `yaml:"llm"`
	Browser struct {
		ProfilePath string `yaml:"profile_path"`
		ExecPath    string `yaml:"exec_path"`
		Headless    *bool  `yaml:"headless"`
		InboxURL    string `yaml:"inbox_url"`
		Timeout     string `yaml:"timeout"`
	} `yaml:"browser"`
	Cache struct {
		URL string `yaml:"url"`
		TTL string `yaml:"ttl"`
	} `yaml:"cache"`
	Ledger struct {
		DatabaseURL string `yaml:"database_url"`
	} `yaml:"ledger"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load reads the .env file (if any) into the environment, then config.yaml
// (if any, with env var expansion), then environment variables for anything
// the YAML leaves unset.
func Load() (*Config, error) {
	envFile := envOrDefault("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	configPath := envOrDefault("CONFIG_PATH", "config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Environment only.
	case err != nil:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	default:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	var env envReader
	cfg := &Config{
		LLM: LLMConfig{
			Provider:          strings.ToLower(firstNonEmpty(raw.LLM.Provider, envOrDefault("LLM_PROVIDER", "auto"))),
			GroqAPIKey:        firstNonEmpty(raw.LLM.GroqAPIKey, os.Getenv("GROQ_API_KEY")),
			GroqModel:         firstNonEmpty(raw.LLM.GroqModel, envOrDefault("GROQ_MODEL", "llama-3.3-70b-versatile")),
			Temperature:       env.floatValue("LLM_TEMPERATURE", 0.7),
			OllamaURL:         firstNonEmpty(raw.LLM.OllamaURL, envOrDefault("OLLAMA_URL", "http://localhost:11434")),
			OllamaModel:       firstNonEmpty(raw.LLM.OllamaModel, envOrDefault("OLLAMA_MODEL", "llama3")),
			Concurrency:       firstPositive(raw.LLM.Concurrency, env.intValue("LLM_CONCURRENCY", 2)),
			MaxRetries:        firstPositive(raw.LLM.MaxRetries, env.intValue("LLM_MAX_RETRIES", 3)),
			RequestsPerSecond: env.floatValue("LLM_REQUESTS_PER_SECOND", 0),
		},
		Browser: BrowserConfig{
			ProfilePath: firstNonEmpty(raw.Browser.ProfilePath, os.Getenv("CHROME_PROFILE_PATH")),
			ExecPath:    firstNonEmpty(raw.Browser.ExecPath, os.Getenv("CHROME_PATH")),
			Headless:    env.boolValue("BROWSER_HEADLESS", false),
			InboxURL:    firstNonEmpty(raw.Browser.InboxURL, envOrDefault("GMAIL_URL", "https://mail.google.com")),
			Timeout:     env.durationValue("BROWSER_TIMEOUT", 30*time.Second),
		},
		RedisURL:    firstNonEmpty(raw.Cache.URL, os.Getenv("REDIS_URL")),
		CacheTTL:    env.durationValue("CACHE_TTL", time.Hour),
		DatabaseURL: firstNonEmpty(raw.Ledger.DatabaseURL, os.Getenv("DATABASE_URL")),
		MetricsAddr: firstNonEmpty(raw.Metrics.Addr, os.Getenv("METRICS_ADDR")),
		LogLevel:    firstNonEmpty(raw.Log.Level, envOrDefault("LOG_LEVEL", "info")),
	}

	if err := errors.Join(env.errs...); err != nil {
		return nil, err
	}

	// Typed YAML values win over the environment, as strings do above.
	if raw.LLM.Temperature != nil {
		cfg.LLM.Temperature = *raw.LLM.Temperature
	}
	if raw.LLM.RequestsPerSecond > 0 {
		cfg.LLM.RequestsPerSecond = raw.LLM.RequestsPerSecond
	}
	if raw.Browser.Headless != nil {
		cfg.Browser.Headless = *raw.Browser.Headless
	}
	if raw.Browser.Timeout != "" {
		d, err := parseDuration(raw.Browser.Timeout)
		if err != nil {
			return nil, fmt.Errorf("parse browser.timeout %q: %w", raw.Browser.Timeout, err)
		}
		cfg.Browser.Timeout = d
	}
	if raw.Cache.TTL != "" {
		d, err := parseDuration(raw.Cache.TTL)
		if err != nil {
			return nil, fmt.Errorf("parse cache.ttl %q: %w", raw.Cache.TTL, err)
		}
		cfg.CacheTTL = d
	}

	return cfg, nil
}

// Validate reports every setting that prevents a run.
func (c *Config) Validate() error {
	var errs []error

	switch c.LLM.Provider {
	case "groq":
		if c.LLM.GroqAPIKey == "" {
			errs = append(errs, errors.New("llm provider groq requires GROQ_API_KEY"))
		}
	case "ollama", "auto":
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q (want groq, ollama or auto)", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm temperature %.2f out of range [0, 2]", c.LLM.Temperature))
	}
	if c.LLM.Concurrency < 1 {
		errs = append(errs, errors.New("llm concurrency must be at least 1"))
	}
	if c.Browser.ProfilePath == "" {
		errs = append(errs, errors.New("CHROME_PROFILE_PATH is not set"))
	}
	if c.Browser.Timeout <= 0 {
		errs = append(errs, errors.New("browser timeout must be positive"))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, errors.New("cache ttl must be positive"))
	}

	return errors.Join(errs...)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envReader parses typed environment variables, collecting every malformed
// value so Load can report them together.
type envReader struct {
	errs []error
}

func (r *envReader) lookup(key string, parse func(string) error) {
	if v := os.Getenv(key); v != "" {
		if err := parse(v); err != nil {
			r.errs = append(r.errs, fmt.Errorf("parse %s %q: %w", key, v, err))
		}
	}
}

func (r *envReader) intValue(key string, fallback int) int {
	out := fallback
	r.lookup(key, func(v string) error {
		n, err := strconv.Atoi(v)
		if err == nil {
			out = n
		}
		return err
	})
	return out
}

func (r *envReader) floatValue(key string, fallback float64) float64 {
	out := fallback
	r.lookup(key, func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			out = f
		}
		return err
	})
	return out
}

func (r *envReader) boolValue(key string, fallback bool) bool {
	out := fallback
	r.lookup(key, func(v string) error {
		b, err := strconv.ParseBool(v)
		if err == nil {
			out = b
		}
		return err
	})
	return out
}

func (r *envReader) durationValue(key string, fallback time.Duration) time.Duration {
	out := fallback
	r.lookup(key, func(v string) error {
		d, err := parseDuration(v)
		if err == nil {
			out = d
		}
		return err
	})
	return out
}

// parseDuration accepts Go durations ("90m") and bare seconds ("3600").
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
