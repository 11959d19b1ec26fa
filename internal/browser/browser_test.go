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

package browser

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var _ Controller = (*Session)(nil)

// TestScanUnread_StopsAtFirstRead verifies 3 unread rows followed by a read
// row yield exactly the first 3, in order.
func TestScanUnread_StopsAtFirstRead(t *testing.T) {
	rows := []inboxRow{
		{ID: "a", Sender: "Alice", Unread: true},
		{ID: "b", Sender: "Bob", Unread: true},
		{ID: "c", Sender: "Carol", Unread: true},
		{ID: "d", Sender: "Dave", Unread: false},
		{ID: "e", Sender: "Eve", Unread: true},
	}

	got := scanUnread(rows)

	var ids []string
	for _, m := range got {
		ids = append(ids, m.ID)
		if !m.Unread {
			t.Errorf("message %s not marked unread", m.ID)
		}
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, ids); diff != "" {
		t.Errorf("unread ids mismatch (-want +got):\n%s", diff)
	}
}

// TestScanUnread_FirstRowRead verifies a read first row yields nothing.
func TestScanUnread_FirstRowRead(t *testing.T) {
	got := scanUnread([]inboxRow{{ID: "a"}, {ID: "b", Unread: true}})
	if len(got) != 0 {
		t.Errorf("got %d messages, want 0", len(got))
	}
}

// TestScanUnread_SkipsRowsWithoutID verifies unreadable rows do not end the
// scan or reach the fetch step.
func TestScanUnread_SkipsRowsWithoutID(t *testing.T) {
	got := scanUnread([]inboxRow{
		{ID: "a", Unread: true},
		{ID: "", Sender: "Promo", Unread: true},
		{ID: "b", Unread: true},
		{ID: "c"},
	})

	var ids []string
	for _, m := range got {
		ids = append(ids, m.ID)
	}
	if diff := cmp.Diff([]string{"a", "b"}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

// TestScanUnread_CopiesMetadata verifies row fields reach the message.
func TestScanUnread_CopiesMetadata(t *testing.T) {
	got := scanUnread([]inboxRow{{
		ID:       "18c2",
		Sender:   "Alice",
		Subject:  "Lunch?",
		Received: "Mon, Oct 19, 2026, 9:14 AM",
		Unread:   true,
	}})

	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1", len(got))
	}
	m := got[0]
	if m.Sender != "Alice" || m.Subject != "Lunch?" || m.Received != "Mon, Oct 19, 2026, 9:14 AM" {
		t.Errorf("metadata not copied: %+v", m)
	}
	if m.ReceivedAt.IsZero() {
		t.Error("ReceivedAt not parsed")
	}
	if m.Body != "" {
		t.Errorf("body = %q, want empty before OpenMessage", m.Body)
	}
}

// TestParseReceived verifies Gmail's hover title formats.
func TestParseReceived(t *testing.T) {
	want := time.Date(2026, 10, 19, 9, 14, 0, 0, time.Local)

	tests := []struct {
		name string
		in   string
		zero bool
	}{
		{"us format", "Mon, Oct 19, 2026, 9:14 AM", false},
		{"narrow nbsp", "Mon, Oct 19, 2026, 9:14\u202fAM", false},
		{"24h format", "Mon, 19 Oct 2026, 09:14", false},
		{"unknown", "yesterday", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseReceived(tt.in)
			if tt.zero {
				if !got.IsZero() {
					t.Errorf("parseReceived(%q) = %v, want zero", tt.in, got)
				}
				return
			}
			if !got.Equal(want) {
				t.Errorf("parseReceived(%q) = %v, want %v", tt.in, got, want)
			}
		})
	}
}

// TestSplitProfilePath verifies profile directories are split from the data dir.
func TestSplitProfilePath(t *testing.T) {
	userData := filepath.Join("home", "me", ".config", "google-chrome")

	tests := []struct {
		in          string
		wantDir     string
		wantProfile string
	}{
		{filepath.Join(userData, "Profile 6"), userData, "Profile 6"},
		{filepath.Join(userData, "Default"), userData, "Default"},
		{userData, userData, ""},
	}

	for _, tt := range tests {
		dir, profile := splitProfilePath(tt.in)
		if dir != tt.wantDir || profile != tt.wantProfile {
			t.Errorf("splitProfilePath(%q) = (%q, %q), want (%q, %q)", tt.in, dir, profile, tt.wantDir, tt.wantProfile)
		}
	}
}

// TestClickRowScript verifies the id is embedded as a quoted literal.
func TestClickRowScript(t *testing.T) {
	js := clickRowScript(`18c2"x`)
	if !strings.Contains(js, `var id = "18c2\"x";`) {
		t.Errorf("id not quoted in script:\n%s", js)
	}
}
