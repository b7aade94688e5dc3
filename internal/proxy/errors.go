package proxy

import "errors"

// Forwarding failures, classified for the dispatcher's response mapping.
var (
	// ErrUpstreamUnavailable is a connect-class failure: refused, reset,
	// DNS, or a broken connection before the response completed.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUpstreamTimeout means the upstream did not answer within the
	// request deadline.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrClientGone means the client disconnected mid-forward. The upstream
	// call is aborted and nothing is written back.
	ErrClientGone = errors.New("client disconnected")
)
