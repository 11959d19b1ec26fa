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

// Package browser drives a signed-in Gmail tab through Chrome. The session
// uses the user's own Chrome profile, so no credentials pass through the agent.
package browser

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/bcem/inboxagent/internal/models"
)

// ErrAutomation wraps navigation and element failures. They usually mean the
// page is not in the state we expect (signed out, layout changed) and need
// the user's attention.
var ErrAutomation = errors.New("browser automation failed")

// Controller is the part of a browser session the pipeline drives.
type Controller interface {
	OpenInbox(ctx context.Context) error
	ListUnread(ctx context.Context) ([]models.EmailMessage, error)
	OpenMessage(ctx context.Context, id string) (string, error)
	SendReply(ctx context.Context, id, text string) error
	Close() error
}

// Gmail selectors, as rendered by the standard web client.
const (
	selInboxRow    = `tr.zA`
	selMessageBody = `div.a3s`
	selReplyButton = `span.ams.bkH`
	selReplyEditor = `div[aria-label="Message Body"][contenteditable="true"]`
	selSendButton  = `div[role="button"].T-I.aoO`
)

// inboxRow is one row of the inbox list as extracted by listRowsScript.
type inboxRow struct {
	ID       string `json:"id"`
	Sender   string `json:"sender"`
	Subject  string `json:"subject"`
	Received string `json:"received"`
	Unread   bool   `json:"unread"`
}

// listRowsScript returns every inbox row in display order.
const listRowsScript = `Array.from(document.querySelectorAll('tr.zA')).map(function (row) {
	function pick(sel, attr) {
		var el = row.querySelector(sel);
		if (!el) { return ''; }
		return attr ? (el.getAttribute(attr) || '') : el.textContent.trim();
	}
	var id = row.getAttribute('data-legacy-message-id') || pick('[data-legacy-message-id]', 'data-legacy-message-id');
	return {
		id: id,
		sender: pick('.yX.xY .yW span'),
		subject: pick('.y6 span'),
		received: pick('.xW.xY span', 'title'),
		unread: row.classList.contains('zE')
	};
})`

// scanUnread converts rows to messages, stopping at the first read row.
// Gmail lists newest first, so unread mail is expected at the top. Unread
// rows without a message id cannot be opened and are skipped.
func scanUnread(rows []inboxRow) []models.EmailMessage {
	var out []models.EmailMessage
	for i, r := range rows {
		if !r.Unread {
			break
		}
		if r.ID == "" {
			slog.Warn("skipping unread row without message id, the inbox layout may have changed",
				"row", i, "sender", r.Sender)
			continue
		}
		out = append(out, models.EmailMessage{
			ID:         r.ID,
			Sender:     r.Sender,
			Subject:    r.Subject,
			Received:   r.Received,
			ReceivedAt: parseReceived(r.Received),
			Unread:     true,
		})
	}
	return out
}

var receivedLayouts = []string{
	"Mon, Jan 2, 2006, 3:04 PM",
	"Mon, 2 Jan 2006, 15:04",
	"Jan 2, 2006, 3:04 PM",
}

// parseReceived parses the title Gmail shows on hover. It returns the zero
// time for formats it does not know.
func parseReceived(s string) time.Time {
	s = strings.NewReplacer("\u202f", " ", "\u00a0", " ").Replace(strings.TrimSpace(s))
	for _, layout := range receivedLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}
