package metrics

import "github.com/prometheus/client_golang/prometheus"

// SeriesMetrics holds Prometheus metrics for the series store.
type SeriesMetrics struct {
	Registrations prometheus.Counter
	Series        prometheus.GaugeFunc
}

// NewSeriesMetrics creates and registers series metrics. count is sampled on
// every scrape.
func NewSeriesMetrics(reg prometheus.Registerer, count func() int) *SeriesMetrics {
	m := &SeriesMetrics{
		Registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "series",
			Name:      "registrations_total",
			Help:      "Total number of series registrations, including overwrites.",
		}),
		Series: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "series",
			Name:      "registered",
			Help:      "Number of distinct registered series.",
		}, func() float64 { return float64(count()) }),
	}

	reg.MustRegister(m.Registrations, m.Series)
	return m
}

func (m *SeriesMetrics) Registered() {
	if m == nil {
		return
	}
	m.Registrations.Inc()
}
