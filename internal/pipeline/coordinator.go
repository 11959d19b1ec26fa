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

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bcem/inboxagent/internal/browser"
	"github.com/bcem/inboxagent/internal/cache"
	"github.com/bcem/inboxagent/internal/llm"
	"github.com/bcem/inboxagent/internal/logging"
	"github.com/bcem/inboxagent/internal/metrics"
	"github.com/bcem/inboxagent/internal/models"
)

// Level is the severity of a user notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Presenter shows results to the user and collects their decisions.
type Presenter interface {
	Render(ctx context.Context, items []Item) error

	// NextAction blocks until the user picks Refresh, ReplyRequested or Quit.
	// io.EOF means the user closed the input.
	NextAction(ctx context.Context, items []Item) (Event, error)

	// Review shows the draft and reports whether the user confirmed sending it.
	Review(ctx context.Context, msg models.EmailMessage, draft models.ReplyDraft) (bool, error)

	Notify(ctx context.Context, level Level, text string)
}

// Ledger remembers which messages were already answered. It stores ids only.
type Ledger interface {
	HasReplied(ctx context.Context, messageID string) (bool, error)
	RecordReply(ctx context.Context, draft models.ReplyDraft, fp models.Fingerprint) error
}

// SessionOpener acquires the browser session for one Run.
type SessionOpener func(ctx context.Context) (browser.Controller, error)

// Coordinator runs the session flow.
type Coordinator struct {
	openSession SessionOpener
	llm         llm.Client
	cache       cache.Store
	ui          Presenter
	ledger      Ledger
	metrics     *metrics.Metrics
	concurrency int
	now         func() time.Time

	session browser.Controller
	machine Machine
	locks   fingerprintLocks
}

// Config holds the Coordinator's collaborators. Ledger and Metrics are optional.
type Config struct {
	OpenSession SessionOpener
	LLM         llm.Client
	Cache       cache.Store
	Presenter   Presenter
	Ledger      Ledger
	Metrics     *metrics.Metrics

	// Concurrency bounds parallel summarization requests. Default 1.
	Concurrency int
}

// New creates a Coordinator.
func New(cfg Config) *Coordinator {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Coordinator{
		openSession: cfg.OpenSession,
		llm:         cfg.LLM,
		cache:       cfg.Cache,
		ui:          cfg.Presenter,
		ledger:      cfg.Ledger,
		metrics:     cfg.Metrics,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// State returns the current state machine snapshot.
func (c *Coordinator) State() Machine {
	return c.machine
}

// Run acquires the browser session, performs an initial scan and then serves
// user actions until the user quits, the input closes or ctx is cancelled.
// The session is released before Run returns.
func (c *Coordinator) Run(ctx context.Context) error {
	session, err := c.openSession(ctx)
	if err != nil {
		c.ui.Notify(ctx, LevelError, Describe("open browser", err))
		return fmt.Errorf("open browser session: %w", err)
	}
	c.session = session
	defer func() {
		if err := session.Close(); err != nil {
			slog.Warn("browser session close failed", logging.KeyError, err)
		}
		c.session = nil
	}()

	if err := session.OpenInbox(ctx); err != nil {
		c.ui.Notify(ctx, LevelError, Describe("open inbox", err))
		return fmt.Errorf("open inbox: %w", err)
	}

	ev := Event(Refresh{})
	for {
		if err := c.Dispatch(ctx, ev); err != nil {
			return err
		}
		if _, ok := ev.(Quit); ok {
			return nil
		}

		ev, err = c.ui.NextAction(ctx, c.machine.Items)
		if errors.Is(err, io.EOF) {
			ev = Quit{}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read user action: %w", err)
		}
	}
}

// Dispatch feeds ev to the state machine and performs the resulting effects
// until the machine waits for the user again. Failures are reported through
// the Presenter; only cancellation of ctx is returned.
func (c *Coordinator) Dispatch(ctx context.Context, ev Event) error {
	queue := []Event{ev}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		ev := queue[0]
		queue = queue[1:]

		from := c.machine.State
		next, effects, err := Transition(c.machine, ev)
		if err != nil {
			slog.Warn("ignoring event", "state", from.String(), logging.KeyError, err)
			c.ui.Notify(ctx, LevelWarn, "That action is not available right now.")
			continue
		}
		c.machine = next
		slog.Debug("state transition", "from", from.String(), "to", next.State.String(), "event", fmt.Sprintf("%T", ev))

		for _, eff := range effects {
			if follow := c.execute(ctx, eff); follow != nil {
				queue = append(queue, follow)
			}
		}
	}
	return nil
}

func (c *Coordinator) execute(ctx context.Context, eff Effect) Event {
	switch e := eff.(type) {
	case FetchUnread:
		msgs, err := c.fetch(ctx)
		if err != nil {
			c.metrics.Run(metrics.ResultFailed)
			return FetchFailed{Err: err}
		}
		return Fetched{Messages: msgs}

	case SummarizeBatch:
		return Summarized{Items: c.SummarizeBatch(ctx, e.Messages)}

	case SummarizeOne:
		it := c.summarizeOne(ctx, e.Message)
		if it.Failed() {
			c.ui.Notify(ctx, LevelError, Describe("summarize", it.Err))
		}
		return Resummarized{Item: it}

	case Present:
		c.metrics.Run(metrics.ResultOK)
		if err := c.ui.Render(ctx, e.Items); err != nil {
			slog.Error("render failed", logging.KeyError, err)
		}
		return Presented{}

	case Compose:
		draft, err := c.compose(ctx, e.Message, e.Instruction)
		if err != nil {
			return ComposeFailed{MessageID: e.Message.ID, Err: err}
		}
		return Composed{Draft: draft}

	case Review:
		msg, _ := c.findMessage(e.Draft.MessageID)
		c.warnIfReplied(ctx, e.Draft.MessageID)
		ok, err := c.ui.Review(ctx, msg, e.Draft)
		if err != nil {
			slog.Warn("review aborted", logging.KeyMessageID, e.Draft.MessageID, logging.KeyError, err)
			return Cancelled{}
		}
		if ok {
			return Confirmed{}
		}
		return Cancelled{}

	case Send:
		c.send(ctx, e.Draft)

	case DiscardDraft:
		c.metrics.Reply(metrics.ResultCancelled)
		slog.Info("reply draft discarded", logging.KeyMessageID, e.Draft.MessageID, "draft_id", e.Draft.ID)
		c.ui.Notify(ctx, LevelInfo, "Draft discarded.")

	case ReportError:
		slog.Error("operation failed", logging.KeyOperation, e.Op, logging.KeyError, e.Err)
		c.ui.Notify(ctx, LevelError, Describe(e.Op, e.Err))
	}
	return nil
}

// fetch lists the unread messages and reads each body. The browser is
// driven sequentially; any failure aborts the scan.
func (c *Coordinator) fetch(ctx context.Context) ([]models.EmailMessage, error) {
	if c.session == nil {
		return nil, fmt.Errorf("%w: no browser session", browser.ErrAutomation)
	}

	msgs, err := c.session.ListUnread(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unread: %w", err)
	}

	for i := range msgs {
		body, err := c.session.OpenMessage(ctx, msgs[i].ID)
		if err != nil {
			return nil, fmt.Errorf("open message %s: %w", msgs[i].ID, err)
		}
		msgs[i].Body = body
	}

	slog.Info("unread messages fetched", "count", len(msgs))
	return msgs, nil
}

// SummarizeBatch summarizes msgs through the cache. The result has one Item
// per message in the same order; failures are recorded on the Item and never
// stop the batch.
func (c *Coordinator) SummarizeBatch(ctx context.Context, msgs []models.EmailMessage) []Item {
	items := make([]Item, len(msgs))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, msg := range msgs {
		g.Go(func() error {
			items[i] = c.summarizeOne(ctx, msg)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, it := range items {
		if it.Failed() {
			failed++
		}
	}
	slog.Info("summarization batch complete", "messages", len(items), "failed", failed)
	return items
}

func (c *Coordinator) summarizeOne(ctx context.Context, msg models.EmailMessage) Item {
	fp := msg.Fingerprint()
	item := Item{Message: msg, Fingerprint: fp}
	log := slog.With(logging.KeyMessageID, msg.ID, logging.KeyFingerprint, string(fp))

	if err := ctx.Err(); err != nil {
		item.Err = err
		return item
	}

	unlock := c.locks.lock(fp)
	defer unlock()

	rec, ok, err := c.cache.Get(ctx, fp)
	switch {
	case err != nil:
		c.metrics.CacheLookup(metrics.ResultError)
		log.Warn("cache lookup failed, treating as miss", logging.KeyError, err)
	case ok:
		c.metrics.CacheLookup(metrics.ResultHit)
		c.metrics.Summary(metrics.ResultOK)
		log.Debug("summary cache hit")
		item.Summary = rec.Summary
		item.Cached = true
		return item
	default:
		c.metrics.CacheLookup(metrics.ResultMiss)
	}

	start := c.now()
	summary, err := c.llm.Summarize(ctx, msg)
	c.metrics.ObserveLLM("summarize", c.now().Sub(start))
	if err != nil {
		c.metrics.Summary(metrics.ResultFailed)
		log.Error("summarize failed", logging.KeyError, err)
		item.Err = err
		return item
	}

	c.metrics.Summary(metrics.ResultOK)
	item.Summary = summary

	if err := c.cache.Put(ctx, fp, summary); err != nil {
		log.Warn("cache write failed", logging.KeyError, err)
	}
	return item
}

func (c *Coordinator) compose(ctx context.Context, msg models.EmailMessage, instruction string) (models.ReplyDraft, error) {
	start := c.now()
	reply, err := c.llm.ComposeReply(ctx, msg, instruction)
	c.metrics.ObserveLLM("compose_reply", c.now().Sub(start))
	if err != nil {
		c.metrics.Reply(metrics.ResultFailed)
		return models.ReplyDraft{}, err
	}

	return models.ReplyDraft{
		ID:          uuid.New().String(),
		MessageID:   msg.ID,
		Instruction: instruction,
		Reply:       reply,
		CreatedAt:   c.now().UTC(),
	}, nil
}

func (c *Coordinator) send(ctx context.Context, draft models.ReplyDraft) {
	if c.session == nil {
		c.ui.Notify(ctx, LevelError, Describe("send", fmt.Errorf("%w: no browser session", browser.ErrAutomation)))
		return
	}

	log := logging.WithOperation(slog.Default(), "send").With(logging.KeyMessageID, draft.MessageID)
	if err := c.session.SendReply(ctx, draft.MessageID, draft.Reply); err != nil {
		c.metrics.Reply(metrics.ResultFailed)
		log.Error("send reply failed", logging.KeyError, err)
		c.ui.Notify(ctx, LevelError, Describe("send", err))
		return
	}

	c.metrics.Reply(metrics.ResultSent)
	log.Info("reply sent", "draft_id", draft.ID)
	c.ui.Notify(ctx, LevelInfo, "Reply sent successfully!")

	if c.ledger != nil {
		var fp models.Fingerprint
		if msg, ok := c.findMessage(draft.MessageID); ok {
			fp = msg.Fingerprint()
		}
		if err := c.ledger.RecordReply(ctx, draft, fp); err != nil {
			log.Warn("reply ledger write failed", logging.KeyError, err)
		}
	}
}

func (c *Coordinator) warnIfReplied(ctx context.Context, messageID string) {
	if c.ledger == nil {
		return
	}
	replied, err := c.ledger.HasReplied(ctx, messageID)
	if err != nil {
		slog.Warn("reply ledger lookup failed", logging.KeyMessageID, messageID, logging.KeyError, err)
		return
	}
	if replied {
		c.ui.Notify(ctx, LevelWarn, "You already sent a reply to this email.")
	}
}

func (c *Coordinator) findMessage(id string) (models.EmailMessage, bool) {
	for _, it := range c.machine.Items {
		if it.Message.ID == id {
			return it.Message, true
		}
	}
	return models.EmailMessage{}, false
}
