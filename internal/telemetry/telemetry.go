// Package telemetry tracks per-symbol matching-engine performance: an
// exact rolling window of the last 1000 order-processing latencies for
// percentile reporting, and real-time counters/histograms exported to
// Prometheus for dashboards and alerting.
package telemetry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// rollingWindowSize matches the original's "keep only last 1000
// samples" policy for order-processing latencies.
const rollingWindowSize = 1000

var (
	ordersProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchcore_orders_processed_total",
			Help: "Total orders processed, by symbol.",
		},
		[]string{"symbol"},
	)
	tradesGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchcore_trades_generated_total",
			Help: "Total trades generated, by symbol.",
		},
		[]string{"symbol"},
	)
	orderLatencyHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "matchcore_order_latency_milliseconds",
			Help:    "Order processing latency in milliseconds, by symbol.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100},
		},
		[]string{"symbol"},
	)
)

// Register adds this package's collectors to reg. Call once per
// process; safe to call with prometheus.DefaultRegisterer.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{ordersProcessed, tradesGenerated, orderLatencyHistogram} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return fmt.Errorf("telemetry: register: %w", err)
		}
	}
	return nil
}

// Monitor implements matching.LatencyRecorder for one symbol: an exact
// rolling window of order latencies (for percentile reporting) plus
// live Prometheus counters/histogram (for dashboards).
type Monitor struct {
	symbol string

	mu        sync.Mutex
	latencies []float64
	orders    int64
	trades    int64
	startedAt time.Time
}

func NewMonitor(symbol string) *Monitor {
	return &Monitor{symbol: symbol, startedAt: time.Now()}
}

// RecordOrderLatency implements matching.LatencyRecorder.
func (m *Monitor) RecordOrderLatency(millis float64) {
	m.mu.Lock()
	m.latencies = append(m.latencies, millis)
	if len(m.latencies) > rollingWindowSize {
		m.latencies = m.latencies[1:]
	}
	m.mu.Unlock()
	orderLatencyHistogram.WithLabelValues(m.symbol).Observe(millis)
}

// RecordOrder implements matching.LatencyRecorder.
func (m *Monitor) RecordOrder() {
	m.mu.Lock()
	m.orders++
	m.mu.Unlock()
	ordersProcessed.WithLabelValues(m.symbol).Inc()
}

// RecordTrade implements matching.LatencyRecorder.
func (m *Monitor) RecordTrade() {
	m.mu.Lock()
	m.trades++
	m.mu.Unlock()
	tradesGenerated.WithLabelValues(m.symbol).Inc()
}

// Metrics is a point-in-time snapshot of a symbol's performance.
type Metrics struct {
	Symbol                   string
	OrderProcessingLatencyMs float64
	OrdersPerSecond          float64
	TradesPerSecond          float64
	P50Ms                    float64
	P95Ms                    float64
	P99Ms                    float64
	MinMs                    float64
	MaxMs                    float64
	TotalOrders              int64
	TotalTrades              int64
	Timestamp                time.Time
}

// Snapshot computes the current metrics from the rolling window and
// counters.
func (m *Monitor) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	elapsed := time.Since(m.startedAt).Seconds()
	out := Metrics{
		Symbol:      m.symbol,
		TotalOrders: m.orders,
		TotalTrades: m.trades,
		Timestamp:   time.Now().UTC(),
	}
	if elapsed > 0 {
		out.OrdersPerSecond = float64(m.orders) / elapsed
		out.TradesPerSecond = float64(m.trades) / elapsed
	}
	if len(m.latencies) == 0 {
		return out
	}

	sorted := append([]float64(nil), m.latencies...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	out.OrderProcessingLatencyMs = sum / float64(len(sorted))
	out.P50Ms = percentile(sorted, 50)
	out.P95Ms = percentile(sorted, 95)
	out.P99Ms = percentile(sorted, 99)
	out.MinMs = sorted[0]
	out.MaxMs = sorted[len(sorted)-1]
	return out
}

// percentile mirrors the original's _percentile: the element at index
// floor(len*pct/100) of a pre-sorted slice, clamped to the last element.
func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := len(sorted) * pct / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// PerformanceReport renders the human-readable analysis the original
// prints via generate_report, including its latency-distribution and
// recommendation sections.
func (m *Monitor) PerformanceReport() string {
	metrics := m.Snapshot()
	if metrics.TotalOrders == 0 {
		return fmt.Sprintf(`
# Performance Analysis Report
Symbol: %s
Generated: %s

## Status
No orders processed yet. Performance metrics will be available after processing orders.
`, metrics.Symbol, metrics.Timestamp.Format(time.RFC3339))
	}

	return fmt.Sprintf(`
# Performance Analysis Report
Symbol: %s
Generated: %s

## Latency Metrics
- Order Processing: %.2fms avg

## Throughput Metrics
- Orders per Second: %.2f
- Trades per Second: %.2f
- Total Orders Processed: %d
- Total Trades Generated: %d

## Latency Distribution (Order Processing)
- P50: %.2fms
- P95: %.2fms
- P99: %.2fms
- Min: %.2fms
- Max: %.2fms

## Recommendations
%s
`,
		metrics.Symbol, metrics.Timestamp.Format(time.RFC3339),
		metrics.OrderProcessingLatencyMs,
		metrics.OrdersPerSecond, metrics.TradesPerSecond, metrics.TotalOrders, metrics.TotalTrades,
		metrics.P50Ms, metrics.P95Ms, metrics.P99Ms, metrics.MinMs, metrics.MaxMs,
		recommendations(metrics),
	)
}

func recommendations(m Metrics) string {
	var recs []string
	if m.OrderProcessingLatencyMs > 10 {
		recs = append(recs, "- Order processing latency is elevated; investigate lock contention or persistence backpressure")
	}
	if m.OrdersPerSecond > 0 && m.OrdersPerSecond < 1000 {
		recs = append(recs, "- Throughput is below the 1000 orders/sec design target")
	}
	if len(recs) == 0 {
		recs = append(recs, "- System performing within expected parameters")
	}
	out := ""
	for i, r := range recs {
		if i > 0 {
			out += "\n"
		}
		out += r
	}
	return out
}
