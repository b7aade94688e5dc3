package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angeloszaimis/reverse-proxy/config"
	"github.com/angeloszaimis/reverse-proxy/internal/backend"
	"github.com/angeloszaimis/reverse-proxy/internal/handler"
	"github.com/angeloszaimis/reverse-proxy/internal/healthcheck"
	"github.com/angeloszaimis/reverse-proxy/internal/httpserver"
	"github.com/angeloszaimis/reverse-proxy/internal/loadbalancer"
	"github.com/angeloszaimis/reverse-proxy/internal/metrics"
	"github.com/angeloszaimis/reverse-proxy/internal/proxy"
	"github.com/angeloszaimis/reverse-proxy/internal/registry"
	"github.com/angeloszaimis/reverse-proxy/internal/strategy"
	"github.com/angeloszaimis/reverse-proxy/pkg/logger"
)

const metricsBufferSize = 1024

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, true, cfg.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg, err := buildRegistry(cfg, log)
	if err != nil {
		log.Error("Failed to initialize backend pool", slog.Any("err", err))
		os.Exit(1)
	}

	collector := metrics.NewCollector(metricsBufferSize, log)
	collector.Start(ctx)

	reg.OnStateChange(func(b *backend.Backend) {
		state := b.State()
		if state == backend.StateHealthy {
			log.Info("Backend is back up", slog.String("backend", b.URL().Host))
		} else {
			log.Warn("Backend is down", slog.String("backend", b.URL().Host),
				slog.String("state", state.String()))
		}
		collector.Emit(metrics.Event{
			Type:      metrics.EventHealthChanged,
			Timestamp: time.Now(),
			Backend:   b.URL().Host,
			State:     state.String(),
		})
	})

	lb := loadbalancer.New(createStrategy(log, cfg.Strategy))

	forwarder := proxy.NewForwarder(log, reg, lb, collector, proxy.Options{
		Retries:            cfg.RetryCount,
		MaxConnsPerBackend: cfg.MaxConnectionsPerBackend,
	})
	defer forwarder.Close()

	requestTimeout, err := time.ParseDuration(cfg.RequestTimeout)
	if err != nil {
		log.Error("Invalid request timeout", slog.Any("err", err))
		os.Exit(1)
	}

	proxyHandler := handler.NewProxyHandler(log, lb, reg, forwarder, collector,
		requestTimeout, cfg.WorkerConcurrencyHint)
	adminHandler := handler.NewAdminHandler(log, reg)

	mux := setupRouter(proxyHandler, adminHandler, collector, cfg.Strategy)

	srv, err := httpserver.New(fmt.Sprintf(":%d", cfg.ListenPort), mux)
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	probeInterval, err := time.ParseDuration(cfg.ProbeInterval)
	if err != nil {
		log.Error("Invalid probe interval", slog.Any("err", err))
		os.Exit(1)
	}
	go healthcheck.Probe(ctx, reg, probeInterval, cfg.ProbePath, log)

	log.Info("Proxy listening",
		slog.Int("port", cfg.ListenPort),
		slog.String("strategy", cfg.Strategy),
		slog.Int("backends", len(cfg.Backends)))

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting proxy", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func buildRegistry(cfg *config.Config, log *slog.Logger) (*registry.Registry, error) {
	failureWindow, err := time.ParseDuration(cfg.FailureWindow)
	if err != nil {
		return nil, err
	}

	backends := make([]*backend.Backend, 0, len(cfg.Backends))

	for _, addr := range cfg.Backends {
		u, err := url.Parse("http://" + addr)
		if err != nil {
			log.Error("Failed to parse backend address",
				slog.String("address", addr),
				slog.String("error", err.Error()))
			continue
		}

		backends = append(backends, backend.New(u, cfg.HealthCheckFailureThreshold, failureWindow))
	}

	return registry.New(backends)
}

func createStrategy(log *slog.Logger, strategyType string) strategy.Strategy {
	switch strategyType {
	case config.StrategyRoundRobin:
		return strategy.NewRoundRobinStrategy()
	case config.StrategyRandom:
		return strategy.NewRandomStrategy()
	case config.StrategyLeastConn:
		return strategy.NewLeastConnStrategy()
	default:
		log.Warn("Unknown strategy, defaulting to round-robin", slog.String("requested", strategyType))
		return strategy.NewRoundRobinStrategy()
	}
}
