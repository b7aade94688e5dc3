package backend_test

import (
	"net/url"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/reverse-proxy/internal/backend"
)

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	Expect(err).NotTo(HaveOccurred())
	return u
}

var _ = Describe("Backend", func() {
	var b *backend.Backend

	BeforeEach(func() {
		b = backend.New(mustParseURL("http://localhost:8081"), 3, 30*time.Second)
	})

	Describe("New", func() {
		It("should start healthy", func() {
			Expect(b.State()).To(Equal(backend.StateHealthy))
			Expect(b.IsHealthy()).To(BeTrue())
		})

		It("should expose its URL", func() {
			Expect(b.URL().Host).To(Equal("localhost:8081"))
		})
	})

	Describe("connection tracking", func() {
		It("should count active connections", func() {
			b.IncrementConn()
			b.IncrementConn()
			Expect(b.ActiveConnections()).To(Equal(2))

			b.DecrementConn()
			Expect(b.ActiveConnections()).To(Equal(1))
		})

		It("should never go below zero", func() {
			b.DecrementConn()
			Expect(b.ActiveConnections()).To(Equal(0))
		})
	})

	Describe("RecordFailure", func() {
		It("should stay healthy below the threshold", func() {
			now := time.Now()
			Expect(b.RecordFailure(now, time.Millisecond)).To(BeFalse())
			Expect(b.RecordFailure(now, time.Millisecond)).To(BeFalse())
			Expect(b.State()).To(Equal(backend.StateHealthy))
		})

		It("should turn unhealthy on the third consecutive failure", func() {
			now := time.Now()
			b.RecordFailure(now, time.Millisecond)
			b.RecordFailure(now, time.Millisecond)
			changed := b.RecordFailure(now, time.Millisecond)

			Expect(changed).To(BeTrue())
			Expect(b.State()).To(Equal(backend.StateUnhealthy))
		})

		It("should restart the streak when failures fall outside the window", func() {
			start := time.Now()
			b.RecordFailure(start, time.Millisecond)
			b.RecordFailure(start.Add(time.Second), time.Millisecond)

			// Third failure arrives long after the window; streak is 1.
			changed := b.RecordFailure(start.Add(2*time.Minute), time.Millisecond)

			Expect(changed).To(BeFalse())
			Expect(b.State()).To(Equal(backend.StateHealthy))
			Expect(b.ConsecutiveFailures()).To(Equal(1))
		})

		It("should track cumulative failures and last failure time", func() {
			at := time.Now()
			b.RecordFailure(at, time.Millisecond)
			b.RecordFailure(at.Add(time.Second), time.Millisecond)

			Expect(b.TotalFailures()).To(Equal(int64(2)))
			Expect(b.LastFailure()).To(Equal(at.Add(time.Second)))
		})
	})

	Describe("RecordSuccess", func() {
		It("should restore an unhealthy backend after one success", func() {
			now := time.Now()
			b.RecordFailure(now, time.Millisecond)
			b.RecordFailure(now, time.Millisecond)
			b.RecordFailure(now, time.Millisecond)
			Expect(b.State()).To(Equal(backend.StateUnhealthy))

			changed := b.RecordSuccess(time.Millisecond)

			Expect(changed).To(BeTrue())
			Expect(b.State()).To(Equal(backend.StateHealthy))
		})

		It("should reset the failure streak", func() {
			now := time.Now()
			b.RecordFailure(now, time.Millisecond)
			b.RecordFailure(now, time.Millisecond)
			b.RecordSuccess(time.Millisecond)

			Expect(b.ConsecutiveFailures()).To(Equal(0))
		})

		It("should not report a change while already healthy", func() {
			Expect(b.RecordSuccess(time.Millisecond)).To(BeFalse())
		})
	})

	Describe("SetDraining", func() {
		It("should move the backend to draining", func() {
			Expect(b.SetDraining(true)).To(BeTrue())
			Expect(b.State()).To(Equal(backend.StateDraining))
		})

		It("should restore to healthy on undrain", func() {
			b.SetDraining(true)
			Expect(b.SetDraining(false)).To(BeTrue())
			Expect(b.State()).To(Equal(backend.StateHealthy))
		})

		It("should be idempotent", func() {
			b.SetDraining(true)
			Expect(b.SetDraining(true)).To(BeFalse())
		})

		It("should keep draining across recorded outcomes", func() {
			b.SetDraining(true)
			b.RecordSuccess(time.Millisecond)
			Expect(b.State()).To(Equal(backend.StateDraining))

			now := time.Now()
			b.RecordFailure(now, time.Millisecond)
			b.RecordFailure(now, time.Millisecond)
			b.RecordFailure(now, time.Millisecond)
			Expect(b.State()).To(Equal(backend.StateDraining))
		})
	})

	Describe("AverageLatency", func() {
		It("should return zero before any attempt", func() {
			Expect(b.AverageLatency()).To(Equal(time.Duration(0)))
		})

		It("should average across successes and failures", func() {
			b.RecordSuccess(100 * time.Millisecond)
			b.RecordFailure(time.Now(), 300*time.Millisecond)

			Expect(b.AverageLatency()).To(Equal(200 * time.Millisecond))
		})
	})
})
