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

// Package metrics exposes Prometheus counters for the agent and an optional
// HTTP listener serving /metrics and /health.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values.
const (
	ResultHit       = "hit"
	ResultMiss      = "miss"
	ResultError     = "error"
	ResultOK        = "ok"
	ResultFailed    = "failed"
	ResultSent      = "sent"
	ResultCancelled = "cancelled"
)

// Metrics holds the agent's counters. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	cacheLookups *prometheus.CounterVec
	summaries    *prometheus.CounterVec
	replies      *prometheus.CounterVec
	runs         *prometheus.CounterVec
	llmDuration  *prometheus.HistogramVec
}

// New registers the agent's metrics on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inboxagent",
			Name:      "cache_lookups_total",
			Help:      "Summary cache lookups by result.",
		}, []string{"result"}),
		summaries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inboxagent",
			Name:      "summaries_total",
			Help:      "Messages summarized by result.",
		}, []string{"result"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inboxagent",
			Name:      "replies_total",
			Help:      "Reply drafts by outcome.",
		}, []string{"result"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inboxagent",
			Name:      "runs_total",
			Help:      "Inbox scans by result.",
		}, []string{"result"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "inboxagent",
			Name:      "llm_request_duration_seconds",
			Help:      "Language model call duration.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"operation"}),
	}

	m.registry.MustRegister(
		m.cacheLookups,
		m.summaries,
		m.replies,
		m.runs,
		m.llmDuration,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) Summary(result string) {
	if m == nil {
		return
	}
	m.summaries.WithLabelValues(result).Inc()
}

func (m *Metrics) Reply(result string) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(result).Inc()
}

func (m *Metrics) Run(result string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
}

// ObserveLLM records the duration of one language model call.
func (m *Metrics) ObserveLLM(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.llmDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Serve starts the metrics listener on addr in the background and stops it
// when ctx is cancelled. checks back the /health endpoint.
func Serve(ctx context.Context, addr string, m *Metrics, checks map[string]HealthCheck) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				http.Error(w, name+" unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("metrics listener starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics listener error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics listener shutdown error", "error", err)
		}
	}()

	return server
}
