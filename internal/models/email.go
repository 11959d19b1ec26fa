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

// Package models defines the data structures shared across the inbox agent.
package models

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/cespare/xxhash/v2"
)

// EmailMessage is one inbox row plus its body, as read from the live
// browser session. It is never persisted.
type EmailMessage struct {
	ID      string `json:"id"` // Gmail legacy message id
	Sender  string `json:"sender"`
	Subject string `json:"subject"`

	// Received is the raw timestamp title shown in the inbox row.
	// ReceivedAt is its parsed form, zero when Gmail's format is not recognised.
	Received   string    `json:"received"`
	ReceivedAt time.Time `json:"received_at,omitempty"`

	Body   string `json:"-"`
	Unread bool   `json:"unread"`
}

// Fingerprint identifies an EmailMessage as a cache key. It is stable across
// repeated fetches of the same message.
type Fingerprint string

// Fingerprint derives the message's cache key from its id, sender, received
// timestamp and body.
func (m EmailMessage) Fingerprint() Fingerprint {
	d := xxhash.New()
	for _, part := range []string{m.ID, m.Sender, m.Received} {
		d.WriteString(part)
		d.Write([]byte{0})
	}

	var body [8]byte
	binary.BigEndian.PutUint64(body[:], xxhash.Sum64String(m.Body))
	d.Write(body[:])

	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], d.Sum64())
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// SummaryRecord is a cached summary for one fingerprint.
type SummaryRecord struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	Summary     string      `json:"summary"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Expired reports whether the record is older than ttl at now.
// A non-positive ttl never expires.
func (r SummaryRecord) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return !now.Before(r.CreatedAt.Add(ttl))
}

// ReplyDraft is a generated reply awaiting the user's confirmation.
type ReplyDraft struct {
	ID          string    `json:"id"`
	MessageID   string    `json:"message_id"`
	Instruction string    `json:"instruction"`
	Reply       string    `json:"reply"`
	CreatedAt   time.Time `json:"created_at"`
}
