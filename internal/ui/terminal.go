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

// Package ui implements the terminal front end of the inbox agent: it prints
// summaries, reads the user's commands and asks for confirmation before a
// reply is sent.
package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/bcem/inboxagent/internal/models"
	"github.com/bcem/inboxagent/internal/pipeline"
)

const (
	defaultWidth = 80
	maxWidth     = 100
	prompt       = "> "
)

const helpText = `Commands:
  refresh                      scan the inbox again
  reply <n> [instructions]     draft a reply to email n
  retry <n>                    summarize email n again
  help                         show this help
  quit                         exit
`

// Terminal is a line-oriented Presenter.
type Terminal struct {
	out   io.Writer
	width int

	mu    sync.Mutex
	lines chan string
	err   error
}

// NewTerminal reads commands from in and writes to out. When out is a
// terminal its width is used for wrapping.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	t := &Terminal{
		out:   out,
		width: terminalWidth(out),
		lines: make(chan string),
	}
	go t.readLines(in)
	return t
}

func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return defaultWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return min(width, maxWidth)
}

// IsInteractive reports whether f is attached to a terminal.
func IsInteractive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// readLines feeds input lines to the channel until in is exhausted.
func (t *Terminal) readLines(in io.Reader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		t.lines <- sc.Text()
	}
	t.mu.Lock()
	t.err = sc.Err()
	t.mu.Unlock()
	close(t.lines)
}

// readLine returns the next input line, io.EOF once input is closed, or
// ctx.Err() on cancellation.
func (t *Terminal) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-t.lines:
		if ok {
			return strings.TrimSpace(line), nil
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.err != nil {
			return "", fmt.Errorf("read input: %w", t.err)
		}
		return "", io.EOF
	}
}

// Render prints one block per email.
func (t *Terminal) Render(_ context.Context, items []pipeline.Item) error {
	var b strings.Builder

	if len(items) == 0 {
		b.WriteString("No unread emails found.\n")
		_, err := io.WriteString(t.out, b.String())
		return err
	}

	fmt.Fprintf(&b, "Found %d unread emails\n", len(items))
	for i, it := range items {
		b.WriteString(t.divider())
		msg := it.Message
		fmt.Fprintf(&b, "[%d] From: %s - %s\n", i+1, msg.Sender, msg.Received)
		fmt.Fprintf(&b, "    Subject: %s\n", msg.Subject)
		if it.Failed() {
			fmt.Fprintf(&b, "    Summary unavailable. %s\n", pipeline.Describe("summarize", it.Err))
			continue
		}
		label := "Summary:"
		if it.Cached {
			label = "Summary (cached):"
		}
		fmt.Fprintf(&b, "    %s\n", label)
		b.WriteString(wrap(it.Summary, t.width, "    "))
	}
	b.WriteString(t.divider())

	_, err := io.WriteString(t.out, b.String())
	return err
}

// NextAction reads commands until one maps to a pipeline event.
func (t *Terminal) NextAction(ctx context.Context, items []pipeline.Item) (pipeline.Event, error) {
	for {
		fmt.Fprint(t.out, prompt)
		line, err := t.readLine(ctx)
		if err != nil {
			return nil, err
		}

		ev, msg := parseCommand(line, items)
		if msg != "" {
			fmt.Fprintln(t.out, msg)
		}
		if ev == nil {
			continue
		}

		if r, ok := ev.(pipeline.ReplyRequested); ok && r.Instruction == "" {
			fmt.Fprint(t.out, "Reply instructions: ")
			instr, err := t.readLine(ctx)
			if err != nil {
				return nil, err
			}
			if instr == "" {
				fmt.Fprintln(t.out, "No instructions given.")
				continue
			}
			r.Instruction = instr
			ev = r
		}
		return ev, nil
	}
}

// parseCommand maps an input line to an event. A nil event with a message
// means the line was handled locally (help or a usage error).
func parseCommand(line string, items []pipeline.Item) (pipeline.Event, string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, ""
	}

	switch strings.ToLower(fields[0]) {
	case "r", "refresh":
		return pipeline.Refresh{}, ""
	case "q", "quit", "exit":
		return pipeline.Quit{}, ""
	case "h", "help", "?":
		return nil, helpText
	case "retry":
		if len(fields) != 2 {
			return nil, "Usage: retry <n>"
		}
		id, ok := resolveTarget(fields[1], items)
		if !ok {
			return nil, fmt.Sprintf("No email %q in the current list.", fields[1])
		}
		return pipeline.RetrySummary{MessageID: id}, ""
	case "reply":
		if len(fields) < 2 {
			return nil, "Usage: reply <n> [instructions]"
		}
		id, ok := resolveTarget(fields[1], items)
		if !ok {
			return nil, fmt.Sprintf("No email %q in the current list.", fields[1])
		}
		instr := strings.TrimSpace(strings.Join(fields[2:], " "))
		return pipeline.ReplyRequested{MessageID: id, Instruction: instr}, ""
	default:
		return nil, fmt.Sprintf("Unknown command %q. Type help for commands.", fields[0])
	}
}

// resolveTarget accepts a 1-based list position or a message id.
func resolveTarget(s string, items []pipeline.Item) (string, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > len(items) {
			return "", false
		}
		return items[n-1].Message.ID, true
	}
	for _, it := range items {
		if it.Message.ID == s {
			return s, true
		}
	}
	return "", false
}

// Review shows the draft and asks for confirmation. Anything but an explicit
// yes cancels.
func (t *Terminal) Review(ctx context.Context, msg models.EmailMessage, draft models.ReplyDraft) (bool, error) {
	var b strings.Builder
	b.WriteString("Generated reply")
	if msg.Sender != "" {
		fmt.Fprintf(&b, " to %s", msg.Sender)
	}
	if msg.Subject != "" {
		fmt.Fprintf(&b, " (Re: %s)", msg.Subject)
	}
	b.WriteString(":\n")
	b.WriteString(t.divider())
	b.WriteString(wrap(draft.Reply, t.width, ""))
	b.WriteString(t.divider())
	if _, err := io.WriteString(t.out, b.String()); err != nil {
		return false, err
	}

	for {
		fmt.Fprint(t.out, "Send this reply? [y/N]: ")
		line, err := t.readLine(ctx)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(line) {
		case "y", "yes":
			return true, nil
		case "", "n", "no":
			return false, nil
		}
		fmt.Fprintln(t.out, "Please answer y or n.")
	}
}

// Notify prints a one-line status message.
func (t *Terminal) Notify(_ context.Context, level pipeline.Level, text string) {
	switch level {
	case pipeline.LevelError:
		fmt.Fprintf(t.out, "Error: %s\n", text)
	case pipeline.LevelWarn:
		fmt.Fprintf(t.out, "Warning: %s\n", text)
	default:
		fmt.Fprintln(t.out, text)
	}
}

func (t *Terminal) divider() string {
	return strings.Repeat("-", t.width) + "\n"
}

// wrap word-wraps text to width, prefixing every line with indent. Existing
// line breaks are kept.
func wrap(text string, width int, indent string) string {
	limit := width - len(indent)
	if limit < 20 {
		limit = 20
	}

	var b strings.Builder
	for _, para := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			b.WriteString("\n")
			continue
		}

		// Continuation lines of a bullet align with its text.
		hang := ""
		if strings.HasPrefix(strings.TrimSpace(para), "- ") {
			hang = "  "
		}

		b.WriteString(indent)
		col := 0
		for i, w := range words {
			switch {
			case i == 0:
			case col+1+len(w) > limit:
				b.WriteString("\n")
				b.WriteString(indent)
				b.WriteString(hang)
				col = len(hang)
			default:
				b.WriteString(" ")
				col++
			}
			b.WriteString(w)
			col += len(w)
		}
		b.WriteString("\n")
	}
	return b.String()
}

var _ pipeline.Presenter = (*Terminal)(nil)
