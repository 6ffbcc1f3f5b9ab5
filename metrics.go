package civic

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the query surface's Prometheus collectors.
type Metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	appended *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg (if non-nil).
// The ledger size is reported as a gauge read at scrape time, and every
// record appended from now on is counted by type.
func NewMetrics(reg prometheus.Registerer, ledger *Ledger) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "civic_http_requests_total",
				Help: "API requests by route and status code.",
			},
			[]string{"route", "code"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "civic_http_request_seconds",
				Help:    "API request latency by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		appended: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "civic_ledger_appended_total",
				Help: "Records appended to the ledger since start, by type.",
			},
			[]string{"type"},
		),
	}
	if reg == nil {
		return m
	}
	reg.MustRegister(m.requests, m.latency)
	if ledger != nil {
		reg.MustRegister(m.appended)
		ledger.AddListener(func(r Record) {
			m.appended.WithLabelValues(r.Type()).Inc()
		})
		reg.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "civic_ledger_records",
				Help: "Records stored in the local ledger.",
			},
			func() float64 { return float64(ledger.Count()) },
		))
	}
	return m
}

func (m *Metrics) observe(route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route).Observe(took.Seconds())
}
