// Package monitor tracks runtime metrics for the platform.
package monitor

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SystemMetrics tracks overall system performance.
type SystemMetrics struct {
	// Latency histograms
	APILatency      *LatencyHistogram
	AnalysisLatency *LatencyHistogram
	BacktestLatency *LatencyHistogram

	// Counters
	apiRequests   uint64
	apiErrors     uint64
	analysesRun   uint64
	backtestsRun  uint64
	rateLimited   uint64
	tradesOpened  uint64
	tradesClosed  uint64

	startedAt time.Time
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		APILatency:      NewLatencyHistogram(1000),
		AnalysisLatency: NewLatencyHistogram(1000),
		BacktestLatency: NewLatencyHistogram(200),
		startedAt:       time.Now(),
	}
}

func (m *SystemMetrics) IncrementAPI()         { atomic.AddUint64(&m.apiRequests, 1) }
func (m *SystemMetrics) IncrementAPIErrors()   { atomic.AddUint64(&m.apiErrors, 1) }
func (m *SystemMetrics) IncrementAnalyses()    { atomic.AddUint64(&m.analysesRun, 1) }
func (m *SystemMetrics) IncrementBacktests()   { atomic.AddUint64(&m.backtestsRun, 1) }
func (m *SystemMetrics) IncrementRateLimited() { atomic.AddUint64(&m.rateLimited, 1) }
func (m *SystemMetrics) IncrementOpened()      { atomic.AddUint64(&m.tradesOpened, 1) }
func (m *SystemMetrics) IncrementClosed()      { atomic.AddUint64(&m.tradesClosed, 1) }

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	APIRequests  uint64        `json:"api_requests"`
	APIErrors    uint64        `json:"api_errors"`
	AnalysesRun  uint64        `json:"analyses_run"`
	BacktestsRun uint64        `json:"backtests_run"`
	RateLimited  uint64        `json:"rate_limited"`
	TradesOpened uint64        `json:"trades_opened"`
	TradesClosed uint64        `json:"trades_closed"`
	Uptime       time.Duration `json:"uptime"`
	APILatency   LatencyStats  `json:"api_latency"`
}

// Snapshot returns the current counter values.
func (m *SystemMetrics) Snapshot() Snapshot {
	return Snapshot{
		APIRequests:  atomic.LoadUint64(&m.apiRequests),
		APIErrors:    atomic.LoadUint64(&m.apiErrors),
		AnalysesRun:  atomic.LoadUint64(&m.analysesRun),
		BacktestsRun: atomic.LoadUint64(&m.backtestsRun),
		RateLimited:  atomic.LoadUint64(&m.rateLimited),
		TradesOpened: atomic.LoadUint64(&m.tradesOpened),
		TradesClosed: atomic.LoadUint64(&m.tradesClosed),
		Uptime:       time.Since(m.startedAt),
		APILatency:   m.APILatency.Stats(),
	}
}

// LatencyHistogram tracks latency samples with a sliding window.
type LatencyHistogram struct {
	mu      sync.Mutex
	samples []float64
	maxSize int
}

// LatencyStats summarizes a histogram window.
type LatencyStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min_ms"`
	Max   float64 `json:"max_ms"`
	Avg   float64 `json:"avg_ms"`
	P50   float64 `json:"p50_ms"`
	P95   float64 `json:"p95_ms"`
	P99   float64 `json:"p99_ms"`
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99 over the window.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, s := range sorted {
		sum += s
	}

	return LatencyStats{
		Count: n,
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n*50/100],
		P95:   sorted[min(n*95/100, n-1)],
		P99:   sorted[min(n*99/100, n-1)],
	}
}
