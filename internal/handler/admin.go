package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/angeloszaimis/reverse-proxy/internal/registry"
)

// AdminHandler exposes the pool state and drain control at /admin/backends.
type AdminHandler struct {
	logger   *slog.Logger
	registry *registry.Registry
}

func NewAdminHandler(logger *slog.Logger, reg *registry.Registry) *AdminHandler {
	return &AdminHandler{
		logger:   logger,
		registry: reg,
	}
}

type backendStatus struct {
	Address           string     `json:"address"`
	State             string     `json:"state"`
	ActiveConnections int        `json:"active_connections"`
	Failures          int64      `json:"failures"`
	LastFailure       *time.Time `json:"last_failure,omitempty"`
	AvgLatency        string     `json:"avg_latency"`
}

func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w)
	case http.MethodPost:
		h.update(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AdminHandler) list(w http.ResponseWriter) {
	backends := h.registry.Backends()

	statuses := make([]backendStatus, 0, len(backends))
	for _, b := range backends {
		status := backendStatus{
			Address:           b.URL().Host,
			State:             b.State().String(),
			ActiveConnections: b.ActiveConnections(),
			Failures:          b.TotalFailures(),
			AvgLatency:        b.AverageLatency().String(),
		}
		if last := b.LastFailure(); !last.IsZero() {
			status.LastFailure = &last
		}
		statuses = append(statuses, status)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(statuses); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *AdminHandler) update(w http.ResponseWriter, r *http.Request) {
	address := r.FormValue("address")
	action := r.FormValue("action")

	if address == "" {
		http.Error(w, "missing address", http.StatusBadRequest)
		return
	}

	var draining bool
	switch action {
	case "drain":
		draining = true
	case "undrain":
		draining = false
	default:
		http.Error(w, "action must be drain or undrain", http.StatusBadRequest)
		return
	}

	if err := h.registry.SetDraining(address, draining); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	h.logger.Info("Backend drain state updated",
		slog.String("backend", address),
		slog.String("action", action))

	w.WriteHeader(http.StatusNoContent)
}
