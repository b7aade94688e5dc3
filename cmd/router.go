package main

import (
	"net/http"

	"github.com/angeloszaimis/reverse-proxy/internal/handler"
	"github.com/angeloszaimis/reverse-proxy/internal/metrics"
)

func setupRouter(
	proxyHandler *handler.ProxyHandler,
	adminHandler *handler.AdminHandler,
	collector *metrics.Collector,
	strategyName string,
) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", proxyHandler.ServeHTTP)
	mux.HandleFunc("/metrics", collector.Handler(strategyName))
	mux.HandleFunc("/admin/backends", adminHandler.ServeHTTP)
	mux.HandleFunc("/healthz", handler.Healthz)

	return mux
}
