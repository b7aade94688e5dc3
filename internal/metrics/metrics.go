package metrics

import (
	"sort"
	"sync"
	"time"
)

type Metrics struct {
	mutex         sync.RWMutex
	totalRequests int64
	requests      map[string]int64
	selections    map[string]int64
	attemptFails  map[string]int64
	responseTimes map[string][]time.Duration
	statusCodes   map[string]map[int]int64
	healthStates  map[string]string
	startTime     time.Time
}

type Snapshot struct {
	TotalRequests int64                     `json:"total_requests"`
	Uptime        time.Duration             `json:"uptime"`
	Backends      map[string]BackendMetrics `json:"backends"`
	Strategy      string                    `json:"strategy"`
}

type BackendMetrics struct {
	Requests       int64         `json:"requests"`
	Selections     int64         `json:"selections"`
	FailedAttempts int64         `json:"failed_attempts"`
	State          string        `json:"state"`
	AvgResponse    time.Duration `json:"avg_response"`
	P50Response    time.Duration `json:"p50_response"`
	P95Response    time.Duration `json:"p95_response"`
	P99Response    time.Duration `json:"p99_response"`
	StatusCodes    map[int]int64 `json:"status_codes"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests:      make(map[string]int64),
		selections:    make(map[string]int64),
		attemptFails:  make(map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		healthStates:  make(map[string]string),
		startTime:     time.Now(),
	}
}

// IncrementRequests counts an accepted request. backend is empty when the
// request was rejected before a backend could be selected; the total still
// moves, the per-backend counters do not.
func (m *Metrics) IncrementRequests(backend string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.totalRequests++
	if backend != "" {
		m.requests[backend]++
	}
}

func (m *Metrics) RecordBackendSelection(backend string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.selections[backend]++
}

func (m *Metrics) RecordAttemptFailure(backend string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.attemptFails[backend]++
}

func (m *Metrics) RecordResponse(backend string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.responseTimes[backend] = append(m.responseTimes[backend], duration)

	// Keep a bounded window of samples per backend.
	if len(m.responseTimes[backend]) > 1000 {
		m.responseTimes[backend] = m.responseTimes[backend][1:]
	}

	if m.statusCodes[backend] == nil {
		m.statusCodes[backend] = make(map[int]int64)
	}
	m.statusCodes[backend][statusCode]++
}

func (m *Metrics) UpdateHealthState(backend string, state string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.healthStates[backend] = state
}

func (m *Metrics) Snapshot(strategyName string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		TotalRequests: m.totalRequests,
		Uptime:        time.Since(m.startTime),
		Backends:      make(map[string]BackendMetrics),
		Strategy:      strategyName,
	}

	allBackends := make(map[string]bool)
	for b := range m.requests {
		allBackends[b] = true
	}
	for b := range m.selections {
		allBackends[b] = true
	}
	for b := range m.attemptFails {
		allBackends[b] = true
	}
	for b := range m.responseTimes {
		allBackends[b] = true
	}
	for b := range m.healthStates {
		allBackends[b] = true
	}

	for b := range allBackends {
		bm := BackendMetrics{
			Requests:       m.requests[b],
			Selections:     m.selections[b],
			FailedAttempts: m.attemptFails[b],
			State:          m.healthStates[b],
			StatusCodes:    m.statusCodes[b],
		}

		durations := m.responseTimes[b]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			bm.AvgResponse = average(sorted)
			bm.P50Response = percentile(sorted, 0.50)
			bm.P95Response = percentile(sorted, 0.95)
			bm.P99Response = percentile(sorted, 0.99)
		}

		snap.Backends[b] = bm
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
