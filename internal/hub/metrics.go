package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	saves    *prometheus.CounterVec
	rejected prometheus.Counter
	fetches  *prometheus.CounterVec
	exports  prometheus.Counter
	clients  prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		saves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jadwal",
			Subsystem: "hub",
			Name:      "saves_total",
			Help:      "Section saves accepted, by section.",
		}, []string{"section"}),
		rejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: "jadwal",
			Subsystem: "hub",
			Name:      "rejected_requests_total",
			Help:      "Save or export requests rejected as invalid.",
		}),
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jadwal",
			Subsystem: "hub",
			Name:      "fetches_total",
			Help:      "Whole-document fetches, by transport.",
		}, []string{"transport"}),
		exports: f.NewCounter(prometheus.CounterOpts{
			Namespace: "jadwal",
			Subsystem: "hub",
			Name:      "exports_total",
			Help:      "Table exports accepted.",
		}),
		clients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "jadwal",
			Subsystem: "hub",
			Name:      "websocket_clients",
			Help:      "Connected websocket clients.",
		}),
	}
}
