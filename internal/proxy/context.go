package proxy

import (
	"net"
	"net/http"

	"github.com/angeloszaimis/reverse-proxy/internal/backend"
)

// RequestContext carries per-request forwarding state across attempts:
// the client identity captured from the inbound request, the backend
// currently assigned, and the attempt count.
type RequestContext struct {
	ClientIP string
	Host     string
	Scheme   string
	Backend  *backend.Backend
	Attempts int
}

// NewRequestContext captures the inbound request's client address, original
// host, and scheme. The backend is assigned by the dispatcher after
// selection.
func NewRequestContext(r *http.Request) *RequestContext {
	clientIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		clientIP = host
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	return &RequestContext{
		ClientIP: clientIP,
		Host:     r.Host,
		Scheme:   scheme,
	}
}
