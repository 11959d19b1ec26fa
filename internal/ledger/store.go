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

// Package ledger provides a Postgres-backed record of replies sent by the
// agent. It stores identifiers and timestamps only, never message or reply
// text, and is used to warn before a second reply to the same email.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bcem/inboxagent/internal/models"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Store records sent replies in Postgres.
type Store struct {
	db DB
}

// NewStore creates a ledger backed by db. It ensures the replies table
// exists on creation.
func NewStore(ctx context.Context, db DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure ledger schema: %w", err)
	}
	slog.Info("reply ledger initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sent_replies (
			id           BIGSERIAL PRIMARY KEY,
			draft_id     TEXT NOT NULL UNIQUE,
			message_id   TEXT NOT NULL,
			fingerprint  TEXT DEFAULT '',
			sent_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_replies_message ON sent_replies(message_id);
	`)
	return err
}

// RecordReply stores that draft was sent. Recording the same draft twice is
// a no-op.
func (s *Store) RecordReply(ctx context.Context, draft models.ReplyDraft, fp models.Fingerprint) error {
	if draft.ID == "" || draft.MessageID == "" {
		return errors.New("record reply: draft id and message id are required")
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO sent_replies (draft_id, message_id, fingerprint, sent_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (draft_id) DO NOTHING
	`, draft.ID, draft.MessageID, string(fp))
	if err != nil {
		return fmt.Errorf("record reply for %s: %w", draft.MessageID, err)
	}
	return nil
}

// HasReplied reports whether any reply to messageID was recorded.
func (s *Store) HasReplied(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM sent_replies WHERE message_id = $1)
	`, messageID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check replies for %s: %w", messageID, err)
	}
	return exists, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
