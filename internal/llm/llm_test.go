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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bcem/inboxagent/internal/models"
)

func testEmail() models.EmailMessage {
	return models.EmailMessage{
		ID:       "msg-1",
		Sender:   "Alice",
		Subject:  "Lunch?",
		Received: "Mon, Oct 19, 2026, 9:14 AM",
		Body:     "Are you free for lunch on Thursday?",
		Unread:   true,
	}
}

// --- Groq ---

type groqServer struct {
	mu       sync.Mutex
	requests []chatRequest
	auth     []string
	status   int
	reply    string
	raw      string
	errBody  string
}

func (s *groqServer) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var req chatRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	s.requests = append(s.requests, req)
	s.auth = append(s.auth, r.Header.Get("Authorization"))

	if s.status != 0 && s.status != http.StatusOK {
		w.WriteHeader(s.status)
		body := s.errBody
		if body == "" {
			body = `{"error":{"message":"nope"}}`
		}
		w.Write([]byte(body))
		return
	}
	if s.raw != "" {
		w.Write([]byte(s.raw))
		return
	}
	data, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": s.reply}},
		},
	})
	w.Write(data)
}

func newGroqTest(t *testing.T, s *groqServer) *GroqClient {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(s.handler))
	t.Cleanup(server.Close)
	return NewGroqClient(GroqConfig{
		HTTPClient:  server.Client(),
		BaseURL:     server.URL,
		APIKey:      "gsk_test",
		Temperature: 0.7,
	})
}

// TestGroq_Summarize verifies the request shape and summary normalisation.
func TestGroq_Summarize(t *testing.T) {
	s := &groqServer{reply: "  Alice asks about lunch on Thursday.\n- Needs a yes/no  "}
	g := newGroqTest(t, s)

	got, err := g.Summarize(context.Background(), testEmail())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if want := "- Alice asks about lunch on Thursday.\n- Needs a yes/no"; got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}

	if len(s.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(s.requests))
	}
	req := s.requests[0]
	if req.Model != DefaultGroqModel {
		t.Errorf("model = %q, want %q", req.Model, DefaultGroqModel)
	}
	if req.Temperature != 0.7 {
		t.Errorf("temperature = %v, want 0.7", req.Temperature)
	}
	prompt := req.Messages[0].Content
	for _, want := range []string{"From: Alice", "Subject: Lunch?", "free for lunch on Thursday", "3-4 bullet points"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if s.auth[0] != "Bearer gsk_test" {
		t.Errorf("authorization = %q", s.auth[0])
	}
}

// TestGroq_ComposeReply verifies the instructions reach the prompt.
func TestGroq_ComposeReply(t *testing.T) {
	s := &groqServer{reply: "Hi Alice,\n\nThursday works.\n\nBest"}
	g := newGroqTest(t, s)

	got, err := g.ComposeReply(context.Background(), testEmail(), "say yes, suggest noon")
	if err != nil {
		t.Fatalf("ComposeReply: %v", err)
	}
	if got != "Hi Alice,\n\nThursday works.\n\nBest" {
		t.Errorf("reply = %q", got)
	}
	if !strings.Contains(s.requests[0].Messages[0].Content, "say yes, suggest noon") {
		t.Error("prompt missing instructions")
	}
}

// TestGroq_ErrorKinds verifies HTTP failures map onto the error taxonomy.
func TestGroq_ErrorKinds(t *testing.T) {
	tests := []struct {
		name      string
		server    *groqServer
		transient bool
		content   bool
	}{
		{"rate limited", &groqServer{status: http.StatusTooManyRequests}, true, false},
		{"server error", &groqServer{status: http.StatusBadGateway}, true, false},
		{"bad request", &groqServer{status: http.StatusBadRequest}, false, true},
		{"unauthorized", &groqServer{status: http.StatusUnauthorized}, false, false},
		{"model decommissioned", &groqServer{status: http.StatusBadRequest, errBody: decommissionedBody}, false, false},
		{"model not found", &groqServer{status: http.StatusBadRequest,
			errBody: `{"error":{"message":"The model ` + "`nope-1b`" + ` does not exist or you do not have access to it.","type":"invalid_request_error","code":"model_not_found"}}`}, false, false},
		{"empty output", &groqServer{reply: "   "}, false, true},
		{"no choices", &groqServer{raw: `{"choices":[]}`}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGroqTest(t, tt.server)
			_, err := g.Summarize(context.Background(), testEmail())
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrTransient); got != tt.transient {
				t.Errorf("transient = %v, want %v (%v)", got, tt.transient, err)
			}
			if got := errors.Is(err, ErrContent); got != tt.content {
				t.Errorf("content = %v, want %v (%v)", got, tt.content, err)
			}
		})
	}
}

const decommissionedBody = `{"error":{"message":"The model ` + "`mixtral-8x7b-32768`" + ` has been decommissioned and is no longer supported.","type":"invalid_request_error","code":"model_decommissioned"}}`

// TestFallback_RetiredGroqModel verifies a retired model hands the request to
// the secondary provider instead of failing the email.
func TestFallback_RetiredGroqModel(t *testing.T) {
	s := &groqServer{status: http.StatusBadRequest, errBody: decommissionedBody}
	g := newGroqTest(t, s)
	secondary := &scriptedClient{out: "- from ollama"}

	got, err := NewFallback(string(ProviderGroq), g, string(ProviderOllama), secondary).Summarize(context.Background(), testEmail())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "- from ollama" {
		t.Errorf("summary = %q", got)
	}
	if len(s.requests) != 1 || secondary.calls != 1 {
		t.Errorf("groq requests = %d, secondary calls = %d, want 1/1", len(s.requests), secondary.calls)
	}
}

// TestGroq_EmptyInput verifies empty input is rejected without a request.
func TestGroq_EmptyInput(t *testing.T) {
	s := &groqServer{reply: "unused"}
	g := newGroqTest(t, s)

	msg := testEmail()
	msg.Body = "  "
	if _, err := g.Summarize(context.Background(), msg); !errors.Is(err, ErrContent) {
		t.Errorf("Summarize error = %v, want ErrContent", err)
	}
	if _, err := g.ComposeReply(context.Background(), testEmail(), ""); !errors.Is(err, ErrContent) {
		t.Errorf("ComposeReply error = %v, want ErrContent", err)
	}
	if len(s.requests) != 0 {
		t.Errorf("requests = %d, want 0", len(s.requests))
	}
}

// TestGroq_Unreachable verifies connection failures are transient.
func TestGroq_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	g := NewGroqClient(GroqConfig{BaseURL: url, APIKey: "k"})
	_, err := g.Summarize(context.Background(), testEmail())
	if !errors.Is(err, ErrTransient) {
		t.Errorf("error = %v, want ErrTransient", err)
	}
}

// --- Ollama ---

// TestOllama_Summarize verifies the generate call against a fake server.
func TestOllama_Summarize(t *testing.T) {
	var gotReq map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"llama3","response":"Lunch invite for Thursday.","done":true}` + "\n"))
	}))
	defer server.Close()

	o, err := NewOllamaClient(server.URL, "", 0.2)
	if err != nil {
		t.Fatalf("NewOllamaClient: %v", err)
	}

	got, err := o.Summarize(context.Background(), testEmail())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "- Lunch invite for Thursday." {
		t.Errorf("summary = %q", got)
	}
	if gotReq["model"] != DefaultOllamaModel {
		t.Errorf("model = %v, want %s", gotReq["model"], DefaultOllamaModel)
	}
	if gotReq["stream"] != false {
		t.Errorf("stream = %v, want false", gotReq["stream"])
	}
}

// TestOllama_ServerError verifies 5xx responses are transient.
func TestOllama_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"timeout waiting for llama runner to start"}`))
	}))
	defer server.Close()

	o, _ := NewOllamaClient(server.URL, "llama3", 0)
	_, err := o.Summarize(context.Background(), testEmail())
	if !errors.Is(err, ErrTransient) {
		t.Errorf("error = %v, want ErrTransient", err)
	}
}

// --- Retrying / Fallback ---

type scriptedClient struct {
	mu    sync.Mutex
	errs  []error // returned in order; nil means success
	calls int
	out   string
}

func (c *scriptedClient) next() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	return c.out, nil
}

func (c *scriptedClient) Summarize(context.Context, models.EmailMessage) (string, error) {
	return c.next()
}

func (c *scriptedClient) ComposeReply(context.Context, models.EmailMessage, string) (string, error) {
	return c.next()
}

func fastRetry(next Client, tries uint) *Retrying {
	return NewRetrying(next, RetryConfig{
		MaxTries:        tries,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	})
}

// TestRetrying_RecoversFromTransient verifies transient failures are retried.
func TestRetrying_RecoversFromTransient(t *testing.T) {
	c := &scriptedClient{errs: []error{ErrTransient, ErrTransient}, out: "- ok"}

	got, err := fastRetry(c, 3).Summarize(context.Background(), testEmail())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "- ok" {
		t.Errorf("summary = %q", got)
	}
	if c.calls != 3 {
		t.Errorf("calls = %d, want 3", c.calls)
	}
}

// TestRetrying_Bounded verifies retries stop after MaxTries.
func TestRetrying_Bounded(t *testing.T) {
	c := &scriptedClient{errs: []error{ErrTransient, ErrTransient, ErrTransient, ErrTransient}}

	_, err := fastRetry(c, 2).Summarize(context.Background(), testEmail())
	if !errors.Is(err, ErrTransient) {
		t.Errorf("error = %v, want ErrTransient", err)
	}
	if c.calls != 2 {
		t.Errorf("calls = %d, want 2", c.calls)
	}
}

// TestRetrying_ContentNotRetried verifies content errors return immediately.
func TestRetrying_ContentNotRetried(t *testing.T) {
	c := &scriptedClient{errs: []error{ErrContent}}

	_, err := fastRetry(c, 5).ComposeReply(context.Background(), testEmail(), "x")
	if !errors.Is(err, ErrContent) {
		t.Errorf("error = %v, want ErrContent", err)
	}
	if c.calls != 1 {
		t.Errorf("calls = %d, want 1", c.calls)
	}
}

// TestFallback verifies the secondary provider is used only for non-content failures.
func TestFallback(t *testing.T) {
	t.Run("transient falls back", func(t *testing.T) {
		primary := &scriptedClient{errs: []error{ErrTransient}}
		secondary := &scriptedClient{out: "- from secondary"}

		got, err := NewFallback("a", primary, "b", secondary).Summarize(context.Background(), testEmail())
		if err != nil || got != "- from secondary" {
			t.Errorf("got %q, %v", got, err)
		}
	})

	t.Run("content error does not fall back", func(t *testing.T) {
		primary := &scriptedClient{errs: []error{ErrContent}}
		secondary := &scriptedClient{out: "unused"}

		_, err := NewFallback("a", primary, "b", secondary).Summarize(context.Background(), testEmail())
		if !errors.Is(err, ErrContent) {
			t.Errorf("error = %v, want ErrContent", err)
		}
		if secondary.calls != 0 {
			t.Errorf("secondary calls = %d, want 0", secondary.calls)
		}
	})
}

// TestNew_Providers verifies factory validation.
func TestNew_Providers(t *testing.T) {
	if _, err := New(Config{Provider: ProviderGroq}); err == nil {
		t.Error("expected error for groq without API key")
	}
	if _, err := New(Config{Provider: "bard"}); err == nil {
		t.Error("expected error for unknown provider")
	}

	c, err := New(Config{Provider: ProviderAuto, GroqAPIKey: "k"})
	if err != nil {
		t.Fatalf("New auto: %v", err)
	}
	r, ok := c.(*Retrying)
	if !ok {
		t.Fatalf("client type = %T, want *Retrying", c)
	}
	if _, ok := r.next.(*Fallback); !ok {
		t.Errorf("auto with key wraps %T, want *Fallback", r.next)
	}

	c, err = New(Config{Provider: ProviderAuto})
	if err != nil {
		t.Fatalf("New auto without key: %v", err)
	}
	if _, ok := c.(*Retrying).next.(*OllamaClient); !ok {
		t.Errorf("auto without key wraps %T, want *OllamaClient", c.(*Retrying).next)
	}
}

// TestClassify verifies heuristic classification of untyped errors.
func TestClassify(t *testing.T) {
	if err := classify(errors.New("dial tcp 127.0.0.1:11434: connection refused")); !errors.Is(err, ErrTransient) {
		t.Errorf("connection refused not transient: %v", err)
	}
	if err := classify(errors.New("Rate limit reached for model")); !errors.Is(err, ErrTransient) {
		t.Errorf("rate limit not transient: %v", err)
	}
	if err := classify(errors.New("model not found")); errors.Is(err, ErrTransient) {
		t.Errorf("model not found classified transient: %v", err)
	}
	if err := classify(context.Canceled); errors.Is(err, ErrTransient) {
		t.Error("cancellation classified transient")
	}
}
