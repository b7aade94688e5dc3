package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/angeloszaimis/reverse-proxy/internal/loadbalancer"
	"github.com/angeloszaimis/reverse-proxy/internal/metrics"
	"github.com/angeloszaimis/reverse-proxy/internal/proxy"
	"github.com/angeloszaimis/reverse-proxy/internal/registry"
)

// ProxyHandler drives each request through its lifecycle: accept, select a
// backend, forward, and write the result. A request that cannot be served
// gets a 502/503/504 depending on what failed.
type ProxyHandler struct {
	logger    *slog.Logger
	balancer  *loadbalancer.LoadBalancer
	registry  *registry.Registry
	forwarder *proxy.Forwarder
	collector *metrics.Collector
	timeout   time.Duration
	inflight  *semaphore.Weighted // nil when concurrency is unbounded
}

func NewProxyHandler(
	logger *slog.Logger,
	balancer *loadbalancer.LoadBalancer,
	reg *registry.Registry,
	forwarder *proxy.Forwarder,
	collector *metrics.Collector,
	timeout time.Duration,
	concurrencyHint int,
) *ProxyHandler {
	var inflight *semaphore.Weighted
	if concurrencyHint > 0 {
		inflight = semaphore.NewWeighted(int64(concurrencyHint))
	}

	return &ProxyHandler{
		logger:    logger,
		balancer:  balancer,
		registry:  reg,
		forwarder: forwarder,
		collector: collector,
		timeout:   timeout,
		inflight:  inflight,
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.inflight != nil {
		if err := h.inflight.Acquire(r.Context(), 1); err != nil {
			// Client gave up while queued.
			return
		}
		defer h.inflight.Release(1)
	}

	if h.timeout > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()
		r = r.WithContext(ctx)
	}

	rc := proxy.NewRequestContext(r)

	h.logger.Info("Request accepted",
		slog.String("client", rc.ClientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("host", r.Host))

	// Counted before selection so rejected requests show up in the totals.
	h.collector.Emit(metrics.Event{
		Type:      metrics.EventRequestReceived,
		Timestamp: time.Now(),
	})

	chosen, err := h.balancer.Select(h.registry.Backends(), nil)
	if err != nil {
		h.logger.Warn("No backend available", slog.String("client", rc.ClientIP))
		http.Error(w, "no backend available", http.StatusServiceUnavailable)
		return
	}
	rc.Backend = chosen

	h.collector.Emit(metrics.Event{
		Type:      metrics.EventBackendSelected,
		Timestamp: time.Now(),
		Backend:   chosen.URL().Host,
	})

	h.logger.Info("Forwarding to backend",
		slog.String("client", rc.ClientIP),
		slog.String("backend", chosen.URL().Host))

	wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	start := time.Now()

	if err := h.forwarder.Forward(wrapped, r, rc); err != nil {
		h.fail(wrapped, rc, err)
		return
	}

	duration := time.Since(start)
	h.collector.Emit(metrics.Event{
		Type:       metrics.EventResponseCompleted,
		Timestamp:  time.Now(),
		Backend:    rc.Backend.URL().Host,
		Duration:   duration,
		StatusCode: wrapped.statusCode,
	})

	h.logger.Info("Request completed",
		slog.String("client", rc.ClientIP),
		slog.String("backend", rc.Backend.URL().Host),
		slog.Int("status", wrapped.statusCode),
		slog.Int("attempts", rc.Attempts),
		slog.Duration("duration", duration))
}

func (h *ProxyHandler) fail(w *statusRecorder, rc *proxy.RequestContext, err error) {
	if errors.Is(err, proxy.ErrClientGone) {
		h.logger.Info("Client disconnected mid-forward",
			slog.String("client", rc.ClientIP),
			slog.String("backend", rc.Backend.URL().Host))
		return
	}

	if w.wroteHeader {
		// Headers already reached the client; nothing left but the log.
		h.logger.Error("Response truncated",
			slog.String("client", rc.ClientIP),
			slog.String("backend", rc.Backend.URL().Host),
			slog.String("error", err.Error()))
		return
	}

	status := http.StatusBadGateway
	message := "upstream unavailable"

	switch {
	case errors.Is(err, proxy.ErrUpstreamTimeout):
		status = http.StatusGatewayTimeout
		message = "upstream timeout"
	case errors.Is(err, loadbalancer.ErrNoBackendAvailable):
		status = http.StatusServiceUnavailable
		message = "no backend available"
	}

	h.logger.Warn("Request failed",
		slog.String("client", rc.ClientIP),
		slog.String("backend", rc.Backend.URL().Host),
		slog.Int("attempts", rc.Attempts),
		slog.Int("status", status),
		slog.String("error", err.Error()))

	http.Error(w, message, status)
}
