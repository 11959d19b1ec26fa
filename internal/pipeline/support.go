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
	"sync"

	"github.com/bcem/inboxagent/internal/browser"
	"github.com/bcem/inboxagent/internal/llm"
	"github.com/bcem/inboxagent/internal/models"
)

// Describe turns an error from op ("fetch", "summarize", "compose", "send")
// into the message shown to the user.
func Describe(op string, err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, browser.ErrAutomation):
		return fmt.Sprintf("Browser automation failed during %s: %v. Check the Chrome window (you may need to sign in to Gmail again), then refresh.", op, err)
	case errors.Is(err, llm.ErrContent):
		switch op {
		case "summarize":
			return "Could not summarize this email; use retry <n> to try it again."
		case "compose":
			return "Could not compose a reply; adjust the instructions and try again."
		}
	case errors.Is(err, llm.ErrTransient):
		return fmt.Sprintf("The language model is unavailable right now (%s); try again shortly.", op)
	case errors.Is(err, context.Canceled):
		return "Cancelled."
	}
	return fmt.Sprintf("%s failed: %v", op, err)
}

// fingerprintLocks serialises work per fingerprint.
type fingerprintLocks struct {
	mu    sync.Mutex
	locks map[models.Fingerprint]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

// lock blocks until fp is free and returns the matching unlock.
func (l *fingerprintLocks) lock(fp models.Fingerprint) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[models.Fingerprint]*refMutex)
	}
	m, ok := l.locks[fp]
	if !ok {
		m = &refMutex{}
		l.locks[fp] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, fp)
		}
		l.mu.Unlock()
	}
}
