package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsSubmitted, jobsClaimed, jobsFinished, reaperDeleted, reaperRuns) }

var (
	jobsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_jobs_submitted_total",
		Help: "Jobs accepted by the queue.",
	})

	jobsClaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_jobs_claimed_total",
		Help: "Jobs handed to a worker.",
	})

	jobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_jobs_finished_total",
			Help: "Terminal transitions by resulting status.",
		},
		[]string{"status"},
	)

	reaperDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_reaper_deleted_total",
		Help: "Terminal jobs purged by the retention reaper.",
	})

	reaperRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_reaper_runs_total",
			Help: "Retention sweeps by outcome.",
		},
		[]string{"outcome"},
	)
)

func IncJobSubmitted() { jobsSubmitted.Inc() }

func IncJobClaimed() { jobsClaimed.Inc() }

func IncJobFinished(status string) { jobsFinished.WithLabelValues(norm(status)).Inc() }

func ObserveReaperRun(deleted int64, err error) {
	if err != nil {
		reaperRuns.WithLabelValues("error").Inc()
		return
	}
	reaperRuns.WithLabelValues("ok").Inc()
	reaperDeleted.Add(float64(deleted))
}
