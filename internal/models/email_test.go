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

package models

import (
	"testing"
	"time"
)

func testMessage() EmailMessage {
	return EmailMessage{
		ID:       "18c2f0a1b2",
		Sender:   "Alice Example",
		Subject:  "Quarterly numbers",
		Received: "Mon, Oct 19, 2026, 9:14 AM",
		Body:     "Hi, the Q3 report is attached.",
		Unread:   true,
	}
}

// TestFingerprint_Deterministic verifies identical content yields identical keys.
func TestFingerprint_Deterministic(t *testing.T) {
	a := testMessage()
	b := testMessage()

	if a.Fingerprint() != b.Fingerprint() {
		t.Errorf("fingerprints differ for identical messages: %q vs %q", a.Fingerprint(), b.Fingerprint())
	}

	if len(a.Fingerprint()) != 16 {
		t.Errorf("fingerprint length = %d, want 16", len(a.Fingerprint()))
	}
}

// TestFingerprint_IgnoresReadFlag verifies the unread flag is not part of the key,
// so a message keeps its cache entry after Gmail marks it read.
func TestFingerprint_IgnoresReadFlag(t *testing.T) {
	a := testMessage()
	b := testMessage()
	b.Unread = false

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("read flag changed the fingerprint")
	}
}

// TestFingerprint_ContentSensitive verifies each identifying field changes the key.
func TestFingerprint_ContentSensitive(t *testing.T) {
	base := testMessage().Fingerprint()

	mutations := map[string]func(*EmailMessage){
		"body":     func(m *EmailMessage) { m.Body += "!" },
		"sender":   func(m *EmailMessage) { m.Sender = "Bob" },
		"received": func(m *EmailMessage) { m.Received = "Tue, Oct 20, 2026, 9:14 AM" },
		"id":       func(m *EmailMessage) { m.ID = "other" },
	}

	for name, mutate := range mutations {
		m := testMessage()
		mutate(&m)
		if m.Fingerprint() == base {
			t.Errorf("changing %s did not change the fingerprint", name)
		}
	}
}

// TestFingerprint_FieldBoundaries verifies fields are separated, not concatenated.
func TestFingerprint_FieldBoundaries(t *testing.T) {
	a := EmailMessage{Sender: "ab", Received: "c"}
	b := EmailMessage{Sender: "a", Received: "bc"}

	if a.Fingerprint() == b.Fingerprint() {
		t.Error("shifting characters across fields produced the same fingerprint")
	}
}

// TestSummaryRecord_Expired verifies the TTL boundary.
func TestSummaryRecord_Expired(t *testing.T) {
	created := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	r := SummaryRecord{Fingerprint: "fp", Summary: "s", CreatedAt: created}

	tests := []struct {
		name string
		now  time.Time
		ttl  time.Duration
		want bool
	}{
		{"within ttl", created.Add(59 * time.Minute), time.Hour, false},
		{"at ttl", created.Add(time.Hour), time.Hour, true},
		{"past ttl", created.Add(2 * time.Hour), time.Hour, true},
		{"zero ttl never expires", created.Add(1000 * time.Hour), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Expired(tt.now, tt.ttl); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}
