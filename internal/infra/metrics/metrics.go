package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Spok95/stock-ledger/internal/domain/stock"
)

// Ledger публикует счётчики операций журнала и число расхождений сверки.
type Ledger struct {
	ops           *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	discrepancies prometheus.Gauge
}

func NewLedger(reg prometheus.Registerer) *Ledger {
	l := &Ledger{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stock",
			Name:      "operations_total",
			Help:      "Ledger operations by outcome.",
		}, []string{"op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stock",
			Name:      "operation_duration_seconds",
			Help:      "Ledger unit-of-work latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		discrepancies: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stock",
			Name:      "reconcile_discrepancies",
			Help:      "Materials whose cached quantity disagrees with the movement log.",
		}),
	}
	reg.MustRegister(l.ops, l.latency, l.discrepancies)
	return l
}

func (l *Ledger) ObserveOp(op string, err error, elapsed time.Duration) {
	l.ops.WithLabelValues(op, stock.Code(err)).Inc()
	if elapsed > 0 {
		l.latency.WithLabelValues(op).Observe(elapsed.Seconds())
	}
}

func (l *Ledger) ObserveDiscrepancies(n int) {
	l.discrepancies.Set(float64(n))
}
