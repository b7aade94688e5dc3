package handler_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/reverse-proxy/internal/backend"
	"github.com/angeloszaimis/reverse-proxy/internal/handler"
	"github.com/angeloszaimis/reverse-proxy/internal/loadbalancer"
	"github.com/angeloszaimis/reverse-proxy/internal/metrics"
	"github.com/angeloszaimis/reverse-proxy/internal/proxy"
	"github.com/angeloszaimis/reverse-proxy/internal/registry"
	"github.com/angeloszaimis/reverse-proxy/internal/strategy"
)

func newBackend(raw string) *backend.Backend {
	u, err := url.Parse(raw)
	Expect(err).NotTo(HaveOccurred())
	return backend.New(u, 3, time.Minute)
}

func deadBackendURL() string {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()
	return addr
}

func newProxyHandler(timeout time.Duration, retries int, backends ...*backend.Backend) (*handler.ProxyHandler, *registry.Registry) {
	log := slog.New(slog.NewTextHandler(GinkgoWriter, nil))

	reg, err := registry.New(backends)
	Expect(err).NotTo(HaveOccurred())

	lb := loadbalancer.New(strategy.NewRoundRobinStrategy())

	forwarder := proxy.NewForwarder(log, reg, lb, nil, proxy.Options{Retries: retries})
	DeferCleanup(forwarder.Close)

	h := handler.NewProxyHandler(log, lb, reg, forwarder, nil, timeout, 0)
	return h, reg
}

var _ = Describe("ProxyHandler", func() {
	Describe("ServeHTTP", func() {
		It("should proxy the request to a backend", func() {
			var hits int
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits++
				w.Write([]byte("backend1"))
			}))
			DeferCleanup(upstream.Close)

			h, _ := newProxyHandler(time.Second, 1, newBackend(upstream.URL))

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal("backend1"))
			Expect(hits).To(Equal(1))
		})

		Context("with no selectable backend", func() {
			It("should return 503 without touching the pool", func() {
				var hits int
				upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					hits++
				}))
				DeferCleanup(upstream.Close)

				b := newBackend(upstream.URL)
				b.SetDraining(true)
				h, _ := newProxyHandler(time.Second, 1, b)

				req := httptest.NewRequest(http.MethodGet, "/test", nil)
				rec := httptest.NewRecorder()

				h.ServeHTTP(rec, req)

				Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
				Expect(hits).To(Equal(0))
			})

			It("should count the rejected request in the metrics", func() {
				log := slog.New(slog.NewTextHandler(GinkgoWriter, nil))

				b := newBackend("http://localhost:8081")
				b.SetDraining(true)

				reg, err := registry.New([]*backend.Backend{b})
				Expect(err).NotTo(HaveOccurred())

				lb := loadbalancer.New(strategy.NewRoundRobinStrategy())

				collector := metrics.NewCollector(8, log)
				ctx, cancel := context.WithCancel(context.Background())
				DeferCleanup(cancel)
				collector.Start(ctx)

				forwarder := proxy.NewForwarder(log, reg, lb, collector, proxy.Options{Retries: 1})
				DeferCleanup(forwarder.Close)

				h := handler.NewProxyHandler(log, lb, reg, forwarder, collector, time.Second, 0)

				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

				Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
				Eventually(func() int64 {
					return collector.Snapshot("round-robin").TotalRequests
				}).Should(Equal(int64(1)))
			})
		})

		Context("when every backend refuses connections", func() {
			It("should return 502 and count the failures", func() {
				dead1 := newBackend(deadBackendURL())
				dead2 := newBackend(deadBackendURL())
				h, _ := newProxyHandler(time.Second, 1, dead1, dead2)

				req := httptest.NewRequest(http.MethodGet, "/test", nil)
				rec := httptest.NewRecorder()

				h.ServeHTTP(rec, req)

				Expect(rec.Code).To(Equal(http.StatusBadGateway))
				Expect(dead1.TotalFailures() + dead2.TotalFailures()).To(Equal(int64(2)))
			})
		})

		Context("when the upstream is too slow", func() {
			It("should return 504", func() {
				upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					select {
					case <-time.After(500 * time.Millisecond):
					case <-r.Context().Done():
					}
				}))
				DeferCleanup(upstream.Close)

				b := newBackend(upstream.URL)
				h, _ := newProxyHandler(50*time.Millisecond, 1, b)

				req := httptest.NewRequest(http.MethodGet, "/slow", nil)
				rec := httptest.NewRecorder()

				h.ServeHTTP(rec, req)

				Expect(rec.Code).To(Equal(http.StatusGatewayTimeout))
				Expect(b.TotalFailures()).To(Equal(int64(1)))
			})
		})

		Context("with a concurrency hint", func() {
			It("should still serve requests", func() {
				upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusOK)
				}))
				DeferCleanup(upstream.Close)

				log := slog.New(slog.NewTextHandler(GinkgoWriter, nil))
				reg, err := registry.New([]*backend.Backend{newBackend(upstream.URL)})
				Expect(err).NotTo(HaveOccurred())

				lb := loadbalancer.New(strategy.NewRoundRobinStrategy())
				forwarder := proxy.NewForwarder(log, reg, lb, nil, proxy.Options{Retries: 1})
				DeferCleanup(forwarder.Close)

				h := handler.NewProxyHandler(log, lb, reg, forwarder, nil, time.Second, 2)

				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

				Expect(rec.Code).To(Equal(http.StatusOK))
			})
		})
	})
})
