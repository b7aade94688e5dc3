package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/angeloszaimis/reverse-proxy/internal/loadbalancer"
	"github.com/angeloszaimis/reverse-proxy/internal/metrics"
	"github.com/angeloszaimis/reverse-proxy/internal/registry"
)

const (
	streamBufferSize  = 32 * 1024
	maxReplayableBody = 256 * 1024

	dialTimeout     = 10 * time.Second
	keepAlive       = 60 * time.Second
	idleConnTimeout = 90 * time.Second
)

// Hop-by-hop headers per RFC 7230 section 6.1. Never forwarded in either
// direction.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Options tunes the forwarder.
type Options struct {
	// Retries is the number of additional attempts against a different
	// backend after a connect-class failure.
	Retries int

	// MaxConnsPerBackend bounds connections per upstream host.
	// Zero means unlimited.
	MaxConnsPerBackend int
}

// Forwarder sends requests upstream over a shared keep-alive transport,
// applies the header rewrite set, streams both bodies with a pooled buffer,
// and records one outcome per attempt.
type Forwarder struct {
	logger     *slog.Logger
	transport  *http.Transport
	registry   *registry.Registry
	balancer   *loadbalancer.LoadBalancer
	rewrites   *RewriteSet
	collector  *metrics.Collector
	retries    int
	bufferPool sync.Pool
}

func NewForwarder(
	logger *slog.Logger,
	reg *registry.Registry,
	balancer *loadbalancer.LoadBalancer,
	collector *metrics.Collector,
	opts Options,
) *Forwarder {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: keepAlive,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     opts.MaxConnsPerBackend,
		IdleConnTimeout:     idleConnTimeout,
	}

	return &Forwarder{
		logger:    logger,
		transport: transport,
		registry:  reg,
		balancer:  balancer,
		rewrites:  DefaultRewriteSet(),
		collector: collector,
		retries:   opts.Retries,
		bufferPool: sync.Pool{
			New: func() any {
				buf := make([]byte, streamBufferSize)
				return &buf
			},
		},
	}
}

// Close releases idle upstream connections.
func (f *Forwarder) Close() {
	f.transport.CloseIdleConnections()
}

// Forward sends the request to the backend assigned in rc. A connect-class
// failure triggers up to Retries further attempts, each against a different
// backend chosen by the load balancer. Once response headers have reached
// the client no retry is possible.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, rc *RequestContext) error {
	replay, replayable, err := bufferBody(r)
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		rc.Attempts = attempt + 1

		started, err := f.attempt(w, r, rc, replay())
		if err == nil {
			return nil
		}
		lastErr = err

		if started || errors.Is(err, ErrClientGone) {
			return lastErr
		}
		if attempt >= f.retries || !replayable || !retryable(err) {
			return lastErr
		}

		next, selErr := f.balancer.Select(f.registry.Backends(), rc.Backend)
		if selErr != nil {
			return lastErr
		}

		f.logger.Warn("Retrying on another backend",
			slog.String("failed", rc.Backend.URL().Host),
			slog.String("next", next.URL().Host),
			slog.String("error", err.Error()))

		rc.Backend = next
	}
}

// attempt runs a single forwarding attempt against rc.Backend. started
// reports whether response headers were written to the client, in which
// case the attempt is not retryable.
func (f *Forwarder) attempt(w http.ResponseWriter, r *http.Request, rc *RequestContext, body io.Reader) (started bool, err error) {
	b := rc.Backend
	b.IncrementConn()
	defer b.DecrementConn()

	target := *b.URL()
	target.Path = r.URL.Path
	target.RawPath = r.URL.RawPath
	target.RawQuery = r.URL.RawQuery

	out, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), body)
	if err != nil {
		return false, fmt.Errorf("build upstream request: %w", err)
	}
	if body == r.Body {
		out.ContentLength = r.ContentLength
	}

	copyHeader(out.Header, r.Header)
	removeHopByHop(out.Header)
	f.rewrites.Apply(out, rc)

	start := time.Now()
	resp, err := f.transport.RoundTrip(out)
	if err != nil {
		classified := f.classify(r.Context(), err)
		if errors.Is(classified, ErrClientGone) {
			return false, classified
		}

		f.registry.RecordOutcome(b, false, time.Since(start))
		f.collector.Emit(metrics.Event{
			Type:      metrics.EventAttemptFailed,
			Timestamp: time.Now(),
			Backend:   b.URL().Host,
		})
		return false, classified
	}
	defer resp.Body.Close()

	removeHopByHop(resp.Header)
	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	_, copyErr := f.copyResponse(w, resp.Body)
	latency := time.Since(start)

	if copyErr != nil {
		if errors.Is(copyErr, ErrClientGone) {
			// The client went away; the backend did nothing wrong.
			return true, copyErr
		}
		f.registry.RecordOutcome(b, false, latency)
		f.collector.Emit(metrics.Event{
			Type:      metrics.EventAttemptFailed,
			Timestamp: time.Now(),
			Backend:   b.URL().Host,
		})
		return true, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, copyErr)
	}

	f.registry.RecordOutcome(b, true, latency)
	return true, nil
}

// copyResponse streams the upstream body to the client through a pooled
// fixed-size buffer, flushing each chunk. Peak memory stays constant
// regardless of payload size. Write errors mean the client is gone; read
// errors mean the upstream broke mid-response.
func (f *Forwarder) copyResponse(dst http.ResponseWriter, src io.Reader) (int64, error) {
	bufp := f.bufferPool.Get().(*[]byte)
	defer f.bufferPool.Put(bufp)
	buf := *bufp

	flusher, _ := dst.(http.Flusher)

	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			wn, werr := dst.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, fmt.Errorf("%w: %v", ErrClientGone, werr)
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return written, nil
			}
			return written, rerr
		}
	}
}

// classify maps a transport error onto the forwarding taxonomy. A canceled
// inbound context means the client disconnected; a deadline means the
// upstream was too slow.
func (f *Forwarder) classify(ctx context.Context, err error) error {
	if ctx.Err() == context.Canceled {
		return fmt.Errorf("%w: %v", ErrClientGone, err)
	}

	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}

func retryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrUpstreamTimeout)
}

// bufferBody makes the request body replayable when it is small enough.
// Bodies up to maxReplayableBody are read into memory so a failed first
// attempt can be retried; larger or unsized bodies stream directly and
// mark the request non-retryable.
func bufferBody(r *http.Request) (replay func() io.Reader, replayable bool, err error) {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return func() io.Reader { return http.NoBody }, true, nil
	}

	if r.ContentLength > 0 && r.ContentLength <= maxReplayableBody {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxReplayableBody+1))
		if err != nil {
			return nil, false, err
		}
		return func() io.Reader { return bytes.NewReader(data) }, true, nil
	}

	return func() io.Reader { return r.Body }, false, nil
}

func copyHeader(dst, src http.Header) {
	for k, vals := range src {
		for _, v := range vals {
			dst.Add(k, v)
		}
	}
}

// removeHopByHop drops hop-by-hop headers, including any named by the
// Connection header itself.
func removeHopByHop(h http.Header) {
	for _, field := range h.Values("Connection") {
		for _, name := range strings.Split(field, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}
