package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stockit",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of opportunity endpoints",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stockit",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by opportunity endpoint",
		},
		[]string{"endpoint"},
	)

	OpportunitiesFound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stockit",
			Subsystem: "api",
			Name:      "opportunities_total",
			Help:      "Opportunities returned by scan endpoints",
		},
		[]string{"endpoint"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors, OpportunitiesFound)
	})
}
