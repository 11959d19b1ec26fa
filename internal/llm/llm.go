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

// Package llm turns email text into summaries and replies using a language
// model provider. Providers are interchangeable behind Client; Retrying and
// Fallback compose them.
package llm

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/bcem/inboxagent/internal/models"
)

var (
	// ErrTransient marks failures worth retrying: rate limits, timeouts,
	// unreachable providers.
	ErrTransient = errors.New("language model temporarily unavailable")

	// ErrContent marks empty or unusable input or output. Retrying the same
	// request will not help.
	ErrContent = errors.New("language model content error")
)

// Client is what the pipeline needs from a language model.
type Client interface {
	Summarize(ctx context.Context, msg models.EmailMessage) (string, error)
	ComposeReply(ctx context.Context, msg models.EmailMessage, instruction string) (string, error)
}

// Pinger is implemented by providers that can check their own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderType selects the language model backend.
type ProviderType string

const (
	ProviderGroq   ProviderType = "groq"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)

// isConnectionError checks if the error is a network/connection error.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, indicator := range []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"timeout",
		"dial tcp",
		"eof",
	} {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// isQuotaError checks if the error indicates rate limiting or quota exhaustion.
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, indicator := range []string{
		"429",
		"quota",
		"rate limit",
		"too many requests",
		"resource exhausted",
	} {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// classify wraps err with ErrTransient when it looks retryable. Errors that
// already carry a kind are returned unchanged.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrTransient) || errors.Is(err, ErrContent) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if isConnectionError(err) || isQuotaError(err) {
		return errors.Join(ErrTransient, err)
	}
	return err
}

// checkOutput rejects empty model output.
func checkOutput(text, what string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.Join(ErrContent, errors.New("empty "+what+" returned"))
	}
	return text, nil
}
