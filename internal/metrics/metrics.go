package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pgshift/pgshift/internal/workpool"
)

const PgshiftMetricsPrefix = "pgshift_"

type Metrics struct {
	pending       prometheus.Gauge
	inFlight      prometheus.Gauge
	landed        prometheus.Gauge
	failed        prometheus.Gauge
	cancelled     prometheus.Gauge
	totalEnqueued prometheus.Gauge
	counters      *prometheus.GaugeVec
}

func NewMetrics(prefix string) *Metrics {
	return &Metrics{
		pending: promauto.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "pending_items",
			Help: "Number of work items waiting for a worker",
		}),
		inFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "in_flight_items",
			Help: "Number of work items currently executing",
		}),
		landed: promauto.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "landed_items",
			Help: "Number of work items that have completed, in any outcome",
		}),
		failed: promauto.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "failed_items",
			Help: "Number of work items that failed terminally",
		}),
		cancelled: promauto.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "cancelled_items",
			Help: "Number of work items cancelled at shutdown",
		}),
		totalEnqueued: promauto.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "total_enqueued_items",
			Help: "Number of work items ever enqueued, initial plus follow-ups",
		}),
		counters: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "driver_counter",
			Help: "Caller-defined counters, e.g. rows copied per partition",
		}, []string{"label"}),
	}
}

// Record publishes one snapshot of the pool's signals.
func (m *Metrics) Record(signals *workpool.Signals) {
	snap := signals.Snapshot()
	m.pending.Set(float64(snap.Pending))
	m.inFlight.Set(float64(snap.InFlight))
	m.landed.Set(float64(snap.Landed))
	m.failed.Set(float64(snap.Failed))
	m.cancelled.Set(float64(snap.Cancelled))
	m.totalEnqueued.Set(float64(snap.TotalEnqueued))
	for label, value := range signals.Counters() {
		m.counters.WithLabelValues(label).Set(float64(value))
	}
}

// RecordPeriodically samples signals every interval until done closes, then
// records one final snapshot.
func (m *Metrics) RecordPeriodically(signals *workpool.Signals, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Record(signals)
		case <-done:
			m.Record(signals)
			return
		}
	}
}
