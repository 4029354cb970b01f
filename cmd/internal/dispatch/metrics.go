package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Tap outcome labels for the taps counter.
const (
	ResultTapIn       = "tap_in"
	ResultTapOut      = "tap_out"
	ResultUnknownCard = "unknown_card"
	ResultOutOfOrder  = "out_of_order"
	ResultDebounced   = "debounced"
	ResultOutsideWin  = "outside_window"
	ResultError       = "error"
)

// Metrics exposes the attendance counters scraped at /metrics.
type Metrics struct {
	taps            *prometheus.CounterVec
	autoClosed      prometheus.Counter
	persistFailures prometheus.Counter
}

// NewMetrics registers the attendance collectors. openCount feeds the
// open-sessions gauge straight from the engine's state table.
func NewMetrics(reg prometheus.Registerer, openCount func() float64) (*Metrics, error) {
	m := &Metrics{
		taps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attend",
			Name:      "taps_total",
			Help:      "Tap events by outcome.",
		}, []string{"result"}),
		autoClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attend",
			Name:      "auto_closed_sessions_total",
			Help:      "Sessions force-closed by the daily sweep.",
		}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attend",
			Name:      "persist_failures_total",
			Help:      "Session store appends that failed.",
		}),
	}

	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "attend",
		Name:      "open_sessions",
		Help:      "Currently open sessions.",
	}, openCount)

	for _, c := range []prometheus.Collector{m.taps, m.autoClosed, m.persistFailures, gauge} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Tap records one tap outcome.
func (m *Metrics) Tap(result string) {
	if m == nil {
		return
	}
	m.taps.WithLabelValues(result).Inc()
}

// AutoClosed records sessions closed by a sweep.
func (m *Metrics) AutoClosed(n int) {
	if m == nil {
		return
	}
	m.autoClosed.Add(float64(n))
}

// PersistFailure records a failed store append.
func (m *Metrics) PersistFailure() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}
