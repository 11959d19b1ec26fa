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

// Package pipeline sequences one inbox session: fetch unread mail, summarize
// it through the cache, present the results, and compose and send replies on
// the user's confirmation.
//
// The flow is an explicit state machine. Transition is pure: given the
// current Machine and an Event it returns the next Machine and the Effects to
// perform. The Coordinator performs those effects against the browser, the
// language model, the cache and the presenter, and feeds their outcomes back
// as events.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/bcem/inboxagent/internal/models"
)

// State is a step of the session flow.
type State int

const (
	Idle State = iota
	Fetching
	Summarizing
	Presenting
	AwaitingReply
	AwaitingConfirmation
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Summarizing:
		return "summarizing"
	case Presenting:
		return "presenting"
	case AwaitingReply:
		return "awaiting_reply"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrInvalidTransition is returned for events the current state does not accept.
var ErrInvalidTransition = errors.New("invalid transition")

// Item is one summarized (or failed) message of a batch.
type Item struct {
	Message     models.EmailMessage
	Fingerprint models.Fingerprint
	Summary     string
	Cached      bool
	Err         error
}

// Failed reports whether summarizing the item failed.
func (i Item) Failed() bool { return i.Err != nil }

// Event is an input to the state machine.
type Event interface{ event() }

type (
	// Refresh asks for a new inbox scan.
	Refresh struct{}
	// Fetched carries the unread messages, bodies included.
	Fetched struct{ Messages []models.EmailMessage }
	// FetchFailed ends the run; the browser needs the user's attention.
	FetchFailed struct{ Err error }
	// Summarized carries one Item per fetched message, in order.
	Summarized struct{ Items []Item }
	// Presented reports that the items were shown to the user.
	Presented struct{}
	// ReplyRequested asks for a reply to a displayed message.
	ReplyRequested struct {
		MessageID   string
		Instruction string
	}
	// Composed carries the generated draft.
	Composed struct{ Draft models.ReplyDraft }
	// ComposeFailed reports that no draft could be produced.
	ComposeFailed struct {
		MessageID string
		Err       error
	}
	// Confirmed approves sending the pending draft.
	Confirmed struct{}
	// Cancelled discards the pending draft.
	Cancelled struct{}
	// Quit ends the session loop.
	Quit struct{}
	// RetrySummary asks to summarize one displayed message again. The body
	// is already held in the item, so the browser is not involved.
	RetrySummary struct{ MessageID string }
	// Resummarized carries the new result for a single message.
	Resummarized struct{ Item Item }
)

func (Refresh) event()        {}
func (Fetched) event()        {}
func (FetchFailed) event()    {}
func (Summarized) event()     {}
func (Presented) event()      {}
func (ReplyRequested) event() {}
func (Composed) event()       {}
func (ComposeFailed) event()  {}
func (Confirmed) event()      {}
func (Cancelled) event()      {}
func (Quit) event()           {}
func (RetrySummary) event()   {}
func (Resummarized) event()   {}

// Effect is work the Coordinator performs after a transition.
type Effect interface{ effect() }

type (
	FetchUnread    struct{}
	SummarizeBatch struct{ Messages []models.EmailMessage }
	SummarizeOne   struct{ Message models.EmailMessage }
	Present        struct{ Items []Item }
	Compose        struct {
		Message     models.EmailMessage
		Instruction string
	}
	Review       struct{ Draft models.ReplyDraft }
	Send         struct{ Draft models.ReplyDraft }
	DiscardDraft struct{ Draft models.ReplyDraft }
	ReportError  struct {
		Op  string
		Err error
	}
)

func (FetchUnread) effect()    {}
func (SummarizeBatch) effect() {}
func (SummarizeOne) effect()   {}
func (Present) effect()        {}
func (Compose) effect()        {}
func (Review) effect()         {}
func (Send) effect()           {}
func (DiscardDraft) effect()   {}
func (ReportError) effect()    {}

// Machine is the state machine's complete state. It is a value; Transition
// never mutates its input.
type Machine struct {
	State State

	// Items are the results of the last summarization batch. They stay
	// available across Idle so the user can reply without rescanning.
	Items []Item

	// Draft is the reply awaiting confirmation.
	Draft *models.ReplyDraft
}

// Transition applies ev to m.
func Transition(m Machine, ev Event) (Machine, []Effect, error) {
	if _, ok := ev.(Quit); ok {
		return quit(m)
	}

	switch m.State {
	case Idle:
		switch e := ev.(type) {
		case Refresh:
			return Machine{State: Fetching, Items: m.Items}, []Effect{FetchUnread{}}, nil
		case ReplyRequested:
			if len(m.Items) > 0 {
				return requestReply(m, e)
			}
		case RetrySummary:
			if len(m.Items) > 0 {
				return retrySummary(m, e)
			}
		}

	case Fetching:
		switch e := ev.(type) {
		case Fetched:
			return Machine{State: Summarizing}, []Effect{SummarizeBatch{Messages: e.Messages}}, nil
		case FetchFailed:
			return Machine{State: Idle}, []Effect{ReportError{Op: "fetch", Err: e.Err}}, nil
		}

	case Summarizing:
		switch e := ev.(type) {
		case Summarized:
			return Machine{State: Presenting, Items: e.Items}, []Effect{Present{Items: e.Items}}, nil
		case Resummarized:
			items := replaceItem(m.Items, e.Item)
			return Machine{State: Presenting, Items: items}, []Effect{Present{Items: items}}, nil
		}

	case Presenting:
		if _, ok := ev.(Presented); ok {
			return Machine{State: AwaitingReply, Items: m.Items}, nil, nil
		}

	case AwaitingReply:
		switch e := ev.(type) {
		case Refresh:
			return Machine{State: Fetching, Items: m.Items}, []Effect{FetchUnread{}}, nil
		case ReplyRequested:
			return requestReply(m, e)
		case RetrySummary:
			return retrySummary(m, e)
		case Composed:
			draft := e.Draft
			return Machine{State: AwaitingConfirmation, Items: m.Items, Draft: &draft}, []Effect{Review{Draft: draft}}, nil
		case ComposeFailed:
			return m, []Effect{ReportError{Op: "compose", Err: e.Err}}, nil
		}

	case AwaitingConfirmation:
		if m.Draft == nil {
			break
		}
		switch ev.(type) {
		case Confirmed:
			return Machine{State: Idle, Items: m.Items}, []Effect{Send{Draft: *m.Draft}}, nil
		case Cancelled:
			return Machine{State: Idle, Items: m.Items}, []Effect{DiscardDraft{Draft: *m.Draft}}, nil
		}
	}

	return m, nil, fmt.Errorf("%w: %T in state %s", ErrInvalidTransition, ev, m.State)
}

func requestReply(m Machine, e ReplyRequested) (Machine, []Effect, error) {
	next := Machine{State: AwaitingReply, Items: m.Items}
	for _, it := range m.Items {
		if it.Message.ID == e.MessageID {
			return next, []Effect{Compose{Message: it.Message, Instruction: e.Instruction}}, nil
		}
	}
	return next, []Effect{ReportError{
		Op:  "compose",
		Err: fmt.Errorf("message %q is not in the current list", e.MessageID),
	}}, nil
}

func retrySummary(m Machine, e RetrySummary) (Machine, []Effect, error) {
	for _, it := range m.Items {
		if it.Message.ID == e.MessageID {
			return Machine{State: Summarizing, Items: m.Items}, []Effect{SummarizeOne{Message: it.Message}}, nil
		}
	}
	return Machine{State: AwaitingReply, Items: m.Items}, []Effect{ReportError{
		Op:  "summarize",
		Err: fmt.Errorf("message %q is not in the current list", e.MessageID),
	}}, nil
}

// replaceItem returns a copy of items with it swapped in for the entry of
// the same message. Order is kept.
func replaceItem(items []Item, it Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	for i := range out {
		if out[i].Message.ID == it.Message.ID {
			out[i] = it
		}
	}
	return out
}

func quit(m Machine) (Machine, []Effect, error) {
	var effects []Effect
	if m.Draft != nil {
		effects = append(effects, DiscardDraft{Draft: *m.Draft})
	}
	return Machine{State: Idle}, effects, nil
}
