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

	"github.com/bcem/inboxagent/internal/logging"
	"github.com/bcem/inboxagent/internal/models"
)

// Fallback tries the primary provider and, when it fails with anything other
// than a content error, the secondary one. Content errors come from the email
// itself, so a second provider would only repeat them.
type Fallback struct {
	primary   Client
	secondary Client
	names     [2]string
}

// NewFallback creates a two-provider Client.
func NewFallback(primaryName string, primary Client, secondaryName string, secondary Client) *Fallback {
	return &Fallback{
		primary:   primary,
		secondary: secondary,
		names:     [2]string{primaryName, secondaryName},
	}
}

// Summarize implements Client.
func (f *Fallback) Summarize(ctx context.Context, msg models.EmailMessage) (string, error) {
	return f.try(ctx, "summarize", func(c Client) (string, error) {
		return c.Summarize(ctx, msg)
	})
}

// ComposeReply implements Client.
func (f *Fallback) ComposeReply(ctx context.Context, msg models.EmailMessage, instruction string) (string, error) {
	return f.try(ctx, "compose_reply", func(c Client) (string, error) {
		return c.ComposeReply(ctx, msg, instruction)
	})
}

// Ping succeeds when either provider is reachable.
func (f *Fallback) Ping(ctx context.Context) error {
	var errs []error
	for _, c := range []Client{f.primary, f.secondary} {
		p, ok := c.(Pinger)
		if !ok {
			return nil
		}
		err := p.Ping(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (f *Fallback) try(ctx context.Context, op string, call func(Client) (string, error)) (string, error) {
	out, err := call(f.primary)
	if err == nil || errors.Is(err, ErrContent) || ctx.Err() != nil {
		return out, err
	}

	logging.WithOperation(slog.Default(), op).Warn("language model provider failed, falling back",
		"provider", f.names[0],
		"fallback", f.names[1],
		logging.KeyError, err,
	)

	return call(f.secondary)
}
