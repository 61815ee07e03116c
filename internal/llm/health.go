package llm

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	healthProbeInterval    = 30 * time.Minute
	maxConsecutiveFailures = 3
)

// Health caches the backend's availability so every turn does not pay
// for a probe. It starts optimistic, flips unhealthy after three
// consecutive failures, and recovers on the first success. Completion
// outcomes feed the same failure streak via ReportSuccess/ReportFailure.
type Health struct {
	client Client
	logger *slog.Logger

	mu        sync.Mutex
	healthy   bool
	failures  int
	lastProbe time.Time
}

// NewHealth wraps a client with cached availability tracking.
func NewHealth(client Client, logger *slog.Logger) *Health {
	return &Health{client: client, logger: logger, healthy: true}
}

// Healthy returns the cached state, re-probing at most every
// healthProbeInterval.
func (h *Health) Healthy(ctx context.Context) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if time.Since(h.lastProbe) < healthProbeInterval {
		return h.healthy
	}

	ok := h.client.Available(ctx)
	h.lastProbe = time.Now()
	h.record(ok)

	return h.healthy
}

// ReportSuccess records a successful completion.
func (h *Health) ReportSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(true)
}

// ReportFailure records a failed completion.
func (h *Health) ReportFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(false)
}

// record updates the streak. Callers hold the lock.
func (h *Health) record(ok bool) {
	if ok {
		if !h.healthy {
			h.logger.Info("Model backend recovered", "model", h.client.ModelName())
		}
		h.failures = 0
		h.healthy = true
		return
	}

	h.failures++
	if h.failures >= maxConsecutiveFailures && h.healthy {
		h.logger.Warn("Model backend marked unhealthy",
			"model", h.client.ModelName(), "consecutive_failures", h.failures)
		h.healthy = false
	}
}
