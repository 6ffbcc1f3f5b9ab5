package room

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the room cache's Prometheus collectors.
type Metrics struct {
	refreshes *prometheus.CounterVec
	duration  prometheus.Histogram
	members   prometheus.Gauge
	follows   prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg (if non-nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "civic_room_refreshes_total",
				Help: "Room refresh cycles by outcome.",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "civic_room_refresh_seconds",
				Help:    "Duration of room refresh cycles.",
				Buckets: prometheus.DefBuckets,
			},
		),
		members: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "civic_room_members",
				Help: "Members in the current room snapshot.",
			},
		),
		follows: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "civic_room_follows_total",
				Help: "Private follows published for new room members.",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.refreshes, m.duration, m.members, m.follows)
	}
	return m
}

func (m *Metrics) observe(outcome string, seconds float64, members int) {
	m.refreshes.WithLabelValues(outcome).Inc()
	m.duration.Observe(seconds)
	m.members.Set(float64(members))
}
