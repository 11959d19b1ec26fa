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
	"sync"
	"time"

	"github.com/bcem/inboxagent/internal/models"
)

// MemoryStore is a process-local Store. Expired entries are dropped lazily
// when read.
type MemoryStore struct {
	mu      sync.Mutex
	records map[models.Fingerprint]models.SummaryRecord
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an in-memory cache. A non-positive ttl falls back to
// DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		records: make(map[models.Fingerprint]models.SummaryRecord),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, fp models.Fingerprint) (*models.SummaryRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[fp]
	if !ok {
		return nil, false, nil
	}
	if rec.Expired(s.now(), s.ttl) {
		delete(s.records, fp)
		return nil, false, nil
	}
	return &rec, true, nil
}

func (s *MemoryStore) Put(_ context.Context, fp models.Fingerprint, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[fp] = models.SummaryRecord{
		Fingerprint: fp,
		Summary:     summary,
		CreatedAt:   s.now().UTC(),
	}
	return nil
}

// Len reports how many records are held, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
