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
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/bcem/inboxagent/internal/models"
)

const (
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultOllamaModel   = "llama3"
)

// OllamaClient runs prompts against a local Ollama server.
type OllamaClient struct {
	client      *api.Client
	model       string
	temperature float64
}

// NewOllamaClient creates an Ollama-backed Client.
func NewOllamaClient(baseURL, model string, temperature float64) (*OllamaClient, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url %q: %w", baseURL, err)
	}
	return &OllamaClient{
		client:      api.NewClient(u, &http.Client{Timeout: 2 * time.Minute}),
		model:       model,
		temperature: temperature,
	}, nil
}

// Summarize implements Client.
func (o *OllamaClient) Summarize(ctx context.Context, msg models.EmailMessage) (string, error) {
	prompt, err := buildSummaryPrompt(msg)
	if err != nil {
		return "", err
	}
	text, err := o.generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text, err = checkOutput(text, "summary")
	if err != nil {
		return "", err
	}
	return normalizeSummary(text), nil
}

// ComposeReply implements Client.
func (o *OllamaClient) ComposeReply(ctx context.Context, msg models.EmailMessage, instruction string) (string, error) {
	prompt, err := buildReplyPrompt(msg, instruction)
	if err != nil {
		return "", err
	}
	text, err := o.generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return checkOutput(text, "reply")
}

// Ping checks that the Ollama server answers.
func (o *OllamaClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := o.client.Heartbeat(ctx); err != nil {
		return classify(fmt.Errorf("ollama heartbeat: %w", err))
	}
	return nil
}

func (o *OllamaClient) generate(ctx context.Context, prompt string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: &stream,
		Options: map[string]any{
			"temperature": o.temperature,
		},
	}

	var out strings.Builder
	err := o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			switch {
			case statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500:
				return "", errors.Join(ErrTransient, fmt.Errorf("ollama generate: %w", err))
			case statusErr.StatusCode == http.StatusBadRequest:
				return "", errors.Join(ErrContent, fmt.Errorf("ollama generate: %w", err))
			}
		}
		return "", classify(fmt.Errorf("ollama generate: %w", err))
	}

	return out.String(), nil
}
