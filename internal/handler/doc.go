// Package handler implements the dispatcher: the main HTTP handler that
// drives each request through selection and forwarding, plus the admin and
// liveness endpoints.
package handler
