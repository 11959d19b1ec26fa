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

package llm

import (
	"errors"
	"fmt"
)

// Config holds language model provider configuration.
type Config struct {
	Provider ProviderType

	GroqAPIKey string
	GroqModel  string

	OllamaBaseURL string
	OllamaModel   string

	Temperature float64
	Retry       RetryConfig
}

// New builds the Client described by cfg, wrapped with pacing and retries.
// ProviderAuto prefers Groq when an API key is configured and falls back to
// Ollama.
func New(cfg Config) (Client, error) {
	var client Client

	switch cfg.Provider {
	case ProviderGroq:
		if cfg.GroqAPIKey == "" {
			return nil, errors.New("GROQ_API_KEY is required for the groq provider")
		}
		client = newGroq(cfg)

	case ProviderOllama:
		o, err := NewOllamaClient(cfg.OllamaBaseURL, cfg.OllamaModel, cfg.Temperature)
		if err != nil {
			return nil, err
		}
		client = o

	case ProviderAuto, "":
		o, err := NewOllamaClient(cfg.OllamaBaseURL, cfg.OllamaModel, cfg.Temperature)
		if err != nil {
			return nil, err
		}
		if cfg.GroqAPIKey == "" {
			client = o
		} else {
			client = NewFallback(string(ProviderGroq), newGroq(cfg), string(ProviderOllama), o)
		}

	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}

	return NewRetrying(client, cfg.Retry), nil
}

func newGroq(cfg Config) *GroqClient {
	return NewGroqClient(GroqConfig{
		APIKey:      cfg.GroqAPIKey,
		Model:       cfg.GroqModel,
		Temperature: cfg.Temperature,
	})
}
