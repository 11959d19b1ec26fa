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
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/bcem/inboxagent/internal/logging"
	"github.com/bcem/inboxagent/internal/models"
)

// Retrying paces calls to the wrapped Client and retries transient failures
// with exponential backoff. Content errors are returned immediately.
type Retrying struct {
	next     Client
	limiter  *rate.Limiter
	maxTries uint

	initialInterval time.Duration
	maxInterval     time.Duration
}

// RetryConfig holds the pacing and retry settings.
type RetryConfig struct {
	MaxTries          uint    // attempts including the first, default 3
	RequestsPerSecond float64 // zero disables pacing
	InitialInterval   time.Duration
	MaxInterval       time.Duration
}

// NewRetrying wraps next with pacing and bounded retries.
func NewRetrying(next Client, cfg RetryConfig) *Retrying {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	maxTries := cfg.MaxTries
	if maxTries == 0 {
		maxTries = 3
	}
	initial := cfg.InitialInterval
	if initial == 0 {
		initial = time.Second
	}
	maxInterval := cfg.MaxInterval
	if maxInterval == 0 {
		maxInterval = 15 * time.Second
	}
	return &Retrying{
		next:            next,
		limiter:         rate.NewLimiter(limit, 1),
		maxTries:        maxTries,
		initialInterval: initial,
		maxInterval:     maxInterval,
	}
}

// Summarize implements Client.
func (r *Retrying) Summarize(ctx context.Context, msg models.EmailMessage) (string, error) {
	return r.do(ctx, "summarize", msg.ID, func() (string, error) {
		return r.next.Summarize(ctx, msg)
	})
}

// ComposeReply implements Client.
func (r *Retrying) ComposeReply(ctx context.Context, msg models.EmailMessage, instruction string) (string, error) {
	return r.do(ctx, "compose_reply", msg.ID, func() (string, error) {
		return r.next.ComposeReply(ctx, msg, instruction)
	})
}

// Ping forwards to the wrapped client when it supports it.
func (r *Retrying) Ping(ctx context.Context) error {
	if p, ok := r.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (r *Retrying) do(ctx context.Context, op, messageID string, call func() (string, error)) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval
	b.MaxInterval = r.maxInterval

	attempt := 0
	return backoff.Retry(ctx, func() (string, error) {
		attempt++
		if err := r.limiter.Wait(ctx); err != nil {
			return "", backoff.Permanent(err)
		}

		out, err := call()
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, ErrTransient) {
			return "", backoff.Permanent(err)
		}

		logging.WithOperation(slog.Default(), op).Warn("language model call failed, will retry",
			logging.KeyMessageID, messageID,
			"attempt", attempt,
			logging.KeyError, err,
		)
		return "", err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(r.maxTries))
}
