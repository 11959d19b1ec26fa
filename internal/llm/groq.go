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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bcem/inboxagent/internal/models"
)

const (
	// DefaultGroqBaseURL is Groq's OpenAI-compatible endpoint.
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
	DefaultGroqModel   = "llama-3.3-70b-versatile"
)

// GroqClient talks to Groq's chat completions API.
type GroqClient struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
}

// GroqConfig holds the settings for a GroqClient.
type GroqConfig struct {
	HTTPClient  *http.Client
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
}

// NewGroqClient creates a Groq-backed Client.
func NewGroqClient(cfg GroqConfig) *GroqClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultGroqBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGroqModel
	}
	return &GroqClient{
		httpClient:  httpClient,
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		model:       model,
		temperature: cfg.Temperature,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// modelUnavailable reports whether a 400 body says the configured model is
// retired or unknown. That is a provider problem, not one with the email.
func modelUnavailable(body []byte) bool {
	var e apiError
	if err := json.Unmarshal(body, &e); err != nil {
		return false
	}
	switch e.Error.Code {
	case "model_decommissioned", "model_not_found":
		return true
	}
	msg := strings.ToLower(e.Error.Message)
	return strings.Contains(msg, "model") &&
		(strings.Contains(msg, "decommissioned") || strings.Contains(msg, "does not exist"))
}

// Summarize implements Client.
func (g *GroqClient) Summarize(ctx context.Context, msg models.EmailMessage) (string, error) {
	prompt, err := buildSummaryPrompt(msg)
	if err != nil {
		return "", err
	}
	text, err := g.complete(ctx, prompt)
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
func (g *GroqClient) ComposeReply(ctx context.Context, msg models.EmailMessage, instruction string) (string, error) {
	prompt, err := buildReplyPrompt(msg, instruction)
	if err != nil {
		return "", err
	}
	text, err := g.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return checkOutput(text, "reply")
}

// Ping lists the available models to check the key and endpoint.
func (g *GroqClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return classify(fmt.Errorf("groq request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("groq API returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func (g *GroqClient) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       g.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: g.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", classify(fmt.Errorf("groq request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classify(fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", errors.Join(ErrTransient, fmt.Errorf("groq API error (%d): %s", resp.StatusCode, respBody))
	case resp.StatusCode == http.StatusBadRequest && modelUnavailable(respBody):
		return "", fmt.Errorf("groq model %q unavailable: %s", g.model, respBody)
	case resp.StatusCode == http.StatusBadRequest:
		return "", errors.Join(ErrContent, fmt.Errorf("groq API rejected request: %s", respBody))
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("groq API error (%d): %s", resp.StatusCode, respBody)
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", errors.Join(ErrContent, fmt.Errorf("parse response: %w", err))
	}
	if len(result.Choices) == 0 {
		return "", errors.Join(ErrContent, errors.New("groq returned no choices"))
	}

	return result.Choices[0].Message.Content, nil
}
