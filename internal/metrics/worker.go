package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(sessionDuration, workerReports) }

var (
	sessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_session_duration_seconds",
			Help:    "Wall time of one execution session.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"outcome"},
	)

	workerReports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_worker_reports_total",
			Help: "Outcome reports sent by workers.",
		},
		[]string{"kind", "outcome"},
	)
)

func ObserveSession(outcome string, d time.Duration) {
	sessionDuration.WithLabelValues(norm(outcome)).Observe(d.Seconds())
}

func IncWorkerReport(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	workerReports.WithLabelValues(norm(kind), outcome).Inc()
}
