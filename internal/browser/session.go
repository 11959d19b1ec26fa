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
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/bcem/inboxagent/internal/models"
)

// DefaultInboxURL is where the session starts.
const DefaultInboxURL = "https://mail.google.com"

// Options configures the Chrome instance behind a Session.
type Options struct {
	// ProfilePath is a Chrome profile directory, e.g.
	// ".../Google/Chrome/User Data/Profile 6". A path whose last element is
	// "Default" or "Profile N" is split into user data dir and profile name.
	ProfilePath string
	Headless    bool
	ExecPath    string
	InboxURL    string

	// Timeout bounds each browser operation.
	Timeout time.Duration
}

// Session is a live Chrome tab. It is owned by one caller at a time; methods
// serialise on an internal lock so the tab is never driven concurrently.
type Session struct {
	mu sync.Mutex

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	inboxURL string
	timeout  time.Duration
}

// Open launches Chrome with the configured profile. The caller must Close
// the session to release the browser.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.InboxURL == "" {
		opts.InboxURL = DefaultInboxURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.Flag("headless", opts.Headless))
	if opts.ProfilePath != "" {
		dataDir, profile := splitProfilePath(opts.ProfilePath)
		allocOpts = append(allocOpts, chromedp.UserDataDir(dataDir))
		if profile != "" {
			allocOpts = append(allocOpts, chromedp.Flag("profile-directory", profile))
		}
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithErrorf(func(format string, args ...any) {
		slog.Debug("chromedp", "detail", fmt.Sprintf(format, args...))
	}))

	// Gmail raises beforeunload prompts while a send is settling; a pending
	// dialog blocks every later action on the tab.
	chromedp.ListenTarget(tabCtx, func(ev any) {
		d, ok := ev.(*page.EventJavascriptDialogOpening)
		if !ok {
			return
		}
		slog.Warn("accepting browser dialog", "type", string(d.Type), "text", d.Message)
		go func() {
			if err := chromedp.Run(tabCtx, page.HandleJavaScriptDialog(true)); err != nil {
				slog.Debug("dialog handling failed", "error", err)
			}
		}()
	})

	s := &Session{
		ctx:         tabCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		inboxURL:    opts.InboxURL,
		timeout:     opts.Timeout,
	}

	// The first Run allocates Chrome and starts the tab's event loop on the
	// context it is given, so it must run on tabCtx itself. A derived timeout
	// context would kill the browser when it is cancelled. Only the caller's
	// ctx may abort startup.
	stop := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(tabCtx)
	aborted := !stop()
	if err == nil && aborted {
		err = ctx.Err()
	}
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: start browser: %w", ErrAutomation, err)
	}

	slog.Info("browser session opened",
		"profile", opts.ProfilePath,
		"headless", opts.Headless,
	)
	return s, nil
}

// splitProfilePath separates a Chrome profile directory from its user data dir.
func splitProfilePath(path string) (dataDir, profile string) {
	clean := filepath.Clean(path)
	base := filepath.Base(clean)
	if base == "Default" || strings.HasPrefix(base, "Profile ") {
		return filepath.Dir(clean), base
	}
	return clean, ""
}

// run executes actions against the tab, bounded by the session timeout and
// by the caller's context. The browser must already be running: the timeout
// context is a child of the tab context and is cancelled on return.
func (s *Session) run(ctx context.Context, what string, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrAutomation, what, err)
	}
	return nil
}

// OpenInbox navigates to the inbox and waits for the message list.
func (s *Session) OpenInbox(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openInbox(ctx)
}

func (s *Session) openInbox(ctx context.Context) error {
	return s.run(ctx, "open inbox",
		chromedp.Navigate(s.inboxURL),
		chromedp.WaitVisible(selInboxRow, chromedp.ByQuery),
	)
}

// ListUnread returns the unread messages at the top of the inbox, in display
// order, without their bodies.
func (s *Session) ListUnread(ctx context.Context) ([]models.EmailMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.openInbox(ctx); err != nil {
		return nil, err
	}

	var rows []inboxRow
	if err := s.run(ctx, "list inbox rows", chromedp.Evaluate(listRowsScript, &rows)); err != nil {
		return nil, err
	}

	msgs := scanUnread(rows)
	slog.Debug("inbox scanned", "rows", len(rows), "unread", len(msgs))
	return msgs, nil
}

// OpenMessage opens a message from the inbox and returns its body text.
func (s *Session) OpenMessage(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.openMessage(ctx, id); err != nil {
		return "", err
	}

	var body string
	if err := s.run(ctx, "read message "+id, chromedp.Text(selMessageBody, &body, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return strings.TrimSpace(body), nil
}

func (s *Session) openMessage(ctx context.Context, id string) error {
	if err := s.openInbox(ctx); err != nil {
		return err
	}

	var clicked bool
	if err := s.run(ctx, "open message "+id,
		chromedp.Evaluate(clickRowScript(id), &clicked),
	); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("%w: message %s is no longer in the inbox", ErrAutomation, id)
	}

	return s.run(ctx, "wait for message "+id,
		chromedp.WaitVisible(selMessageBody, chromedp.ByQuery),
	)
}

// clickRowScript clicks the inbox row carrying the legacy message id.
func clickRowScript(id string) string {
	return fmt.Sprintf(`(function () {
	var id = %s;
	var rows = document.querySelectorAll('tr.zA');
	for (var i = 0; i < rows.length; i++) {
		var row = rows[i];
		var tagged = row.getAttribute('data-legacy-message-id') === id ||
			row.querySelector('[data-legacy-message-id="' + id + '"]') !== null;
		if (tagged) { row.click(); return true; }
	}
	return false;
})()`, strconv.Quote(id))
}

// SendReply opens the message, types text into a reply and sends it.
func (s *Session) SendReply(ctx context.Context, id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.openMessage(ctx, id); err != nil {
		return err
	}

	err := s.run(ctx, "send reply to "+id,
		chromedp.Click(selReplyButton, chromedp.ByQuery),
		chromedp.WaitVisible(selReplyEditor, chromedp.ByQuery),
		chromedp.SendKeys(selReplyEditor, text, chromedp.ByQuery),
		chromedp.Click(selSendButton, chromedp.ByQuery),
		chromedp.WaitNotPresent(selReplyEditor, chromedp.ByQuery),
	)
	if err != nil {
		return err
	}

	slog.Info("reply sent", "message_id", id)
	return nil
}

// Close shuts the tab and the browser.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.ctx != nil {
		err = chromedp.Cancel(s.ctx)
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	return err
}
