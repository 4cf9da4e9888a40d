package telemetry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"matchcore/internal/telemetry"
)

func TestMonitor_SnapshotEmptyBeforeAnyOrders(t *testing.T) {
	m := telemetry.NewMonitor("BTC-USD")
	snap := m.Snapshot()
	assert.Equal(t, int64(0), snap.TotalOrders)
	assert.Equal(t, 0.0, snap.P50Ms)
}

func TestMonitor_RecordOrderLatencyUpdatesCounts(t *testing.T) {
	m := telemetry.NewMonitor("BTC-USD")
	for i := 0; i < 5; i++ {
		m.RecordOrder()
		m.RecordOrderLatency(float64(i + 1))
	}
	m.RecordTrade()

	snap := m.Snapshot()
	assert.Equal(t, int64(5), snap.TotalOrders)
	assert.Equal(t, int64(1), snap.TotalTrades)
	assert.Equal(t, 1.0, snap.MinMs)
	assert.Equal(t, 5.0, snap.MaxMs)
}

func TestMonitor_PerformanceReportNonEmpty(t *testing.T) {
	m := telemetry.NewMonitor("BTC-USD")
	assert.Contains(t, m.PerformanceReport(), "No orders processed yet")

	m.RecordOrder()
	m.RecordOrderLatency(1.5)
	assert.Contains(t, m.PerformanceReport(), "Latency Metrics")
}
