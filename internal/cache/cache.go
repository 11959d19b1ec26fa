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

// Package cache stores email summaries keyed by fingerprint so that a message
// seen again within the time-to-live is not summarized twice.
//
// Two implementations satisfy Store: RedisStore for the configured Redis
// instance and MemoryStore for runs without one. Both hide expired entries on
// read even when the backing store has not purged them yet.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/bcem/inboxagent/internal/models"
)

// DefaultTTL is how long a summary stays valid.
const DefaultTTL = time.Hour

// ErrUnavailable wraps any failure to reach the backing store. Callers treat
// it as a miss on read and as best-effort on write.
var ErrUnavailable = errors.New("cache unavailable")

// Store maps fingerprints to summaries.
type Store interface {
	// Get returns the record for fp. ok is false when the entry is absent or expired.
	Get(ctx context.Context, fp models.Fingerprint) (rec *models.SummaryRecord, ok bool, err error)

	// Put stores summary under fp, replacing any previous record.
	Put(ctx context.Context, fp models.Fingerprint, summary string) error
}
