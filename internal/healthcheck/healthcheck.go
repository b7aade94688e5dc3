package healthcheck

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/angeloszaimis/reverse-proxy/internal/backend"
	"github.com/angeloszaimis/reverse-proxy/internal/registry"
)

const probeTimeout = 5 * time.Second

// Probe periodically probes unhealthy backends so they can rejoin the pool.
// Healthy backends are left alone; passive outcome recording already covers
// them. A single 200 response restores a backend. Runs until ctx is
// canceled.
func Probe(
	ctx context.Context,
	reg *registry.Registry,
	interval time.Duration,
	path string,
	logger *slog.Logger,
) {
	client := &http.Client{
		Timeout: probeTimeout,
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Recovery prober stopped")
			return

		case <-ticker.C:
			for _, b := range reg.Backends() {
				if b.State() != backend.StateUnhealthy {
					continue
				}
				probeOne(ctx, client, reg, b, path, logger)
			}
		}
	}
}

func probeOne(
	ctx context.Context,
	client *http.Client,
	reg *registry.Registry,
	b *backend.Backend,
	path string,
	logger *slog.Logger,
) {
	probeURL := b.URL().ResolveReference(&url.URL{Path: path})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL.String(), nil)
	if err != nil {
		return
	}

	start := time.Now()
	res, err := client.Do(req)
	if err != nil {
		reg.RecordOutcome(b, false, time.Since(start))
		return
	}
	res.Body.Close()

	healthy := res.StatusCode == http.StatusOK
	reg.RecordOutcome(b, healthy, time.Since(start))

	if healthy {
		logger.Info("Backend restored by probe",
			slog.String("backend", b.URL().Host))
	}
}
