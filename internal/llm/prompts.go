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

package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bcem/inboxagent/internal/models"
)

const summaryPrompt = `You are an expert email assistant. Summarize the following email in 3-4 bullet points.

From: %s
Subject: %s
Received: %s

Email Content:
%s

Summary:
-`

const replyPrompt = `You are helping compose a professional email reply. The original email was:

From: %s
Subject: %s
Received: %s

Original Content:
%s

The user has provided these instructions for the reply:
%s

Please compose a professional email response that addresses all points from the original email and incorporates the user's instructions.

Reply:
`

func buildSummaryPrompt(msg models.EmailMessage) (string, error) {
	if strings.TrimSpace(msg.Body) == "" {
		return "", errors.Join(ErrContent, fmt.Errorf("message %s has no body to summarize", msg.ID))
	}
	return fmt.Sprintf(summaryPrompt, msg.Sender, msg.Subject, msg.Received, msg.Body), nil
}

func buildReplyPrompt(msg models.EmailMessage, instruction string) (string, error) {
	if strings.TrimSpace(instruction) == "" {
		return "", errors.Join(ErrContent, errors.New("reply instructions are empty"))
	}
	return fmt.Sprintf(replyPrompt, msg.Sender, msg.Subject, msg.Received, msg.Body, instruction), nil
}

// normalizeSummary restores the leading bullet the prompt primes the model with.
func normalizeSummary(text string) string {
	text = strings.TrimSpace(text)
	if text != "" && !strings.HasPrefix(text, "-") && !strings.HasPrefix(text, "*") {
		text = "- " + text
	}
	return text
}
