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

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bcem/inboxagent/internal/models"
)

// keyPrefix namespaces summary keys in Redis.
const keyPrefix = "inboxagent:summary:"

// RedisStore keeps summaries in Redis with a per-key expiry.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisStore creates a summary cache backed by Redis. A non-positive ttl
// falls back to DefaultTTL.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		rdb: rdb,
		ttl: ttl,
		now: time.Now,
	}
}

func key(fp models.Fingerprint) string {
	return keyPrefix + string(fp)
}

// Get reads the record for fp. Records past their TTL are reported absent
// even if Redis still holds them.
func (s *RedisStore) Get(ctx context.Context, fp models.Fingerprint) (*models.SummaryRecord, bool, error) {
	data, err := s.rdb.Get(ctx, key(fp)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: redis GET: %w", ErrUnavailable, err)
	}

	var rec models.SummaryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		// A record we cannot decode is as good as absent; the next Put replaces it.
		return nil, false, nil
	}

	if rec.Expired(s.now(), s.ttl) {
		return nil, false, nil
	}

	return &rec, true, nil
}

// Put overwrites the record for fp and resets its expiry.
func (s *RedisStore) Put(ctx context.Context, fp models.Fingerprint, summary string) error {
	rec := models.SummaryRecord{
		Fingerprint: fp,
		Summary:     summary,
		CreatedAt:   s.now().UTC(),
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal summary record: %w", err)
	}

	if err := s.rdb.Set(ctx, key(fp), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis SET: %w", ErrUnavailable, err)
	}

	return nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.rdb.Ping(ctx).Err()
}
