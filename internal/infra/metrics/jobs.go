package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		jobsProcessedTotal,
		jobsStaleRecoveredTotal,
		workerLoopErrorsTotal,
		jobDurationSeconds,
		jobsByStatus,
		oldestQueuedAgeSeconds,
		workItemsTotal,
		pullRequestsTotal,
	)
}

var (
	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_hub_jobs_processed_total",
			Help: "Autopilot jobs finished by a worker, labeled by final status.",
		},
		[]string{"status"}, // succeeded, failed, lost
	)

	jobsStaleRecoveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_hub_jobs_stale_recovered_total",
			Help: "Running jobs recovered from a lost worker.",
		},
		[]string{"outcome"}, // requeued, failed
	)

	workerLoopErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_hub_job_worker_loop_errors_total",
			Help: "Unexpected errors caught by the worker loop.",
		},
		[]string{"stage"}, // sweep, claim, execute, complete, panic
	)

	jobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_hub_job_duration_seconds",
			Help:    "Wall time from claim to completion.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"status"},
	)

	jobsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agent_hub_jobs",
			Help: "Current number of jobs per status.",
		},
		[]string{"status"},
	)

	oldestQueuedAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_hub_oldest_queued_job_age_seconds",
			Help: "Age of the oldest queued job, zero when the queue is empty.",
		},
	)

	workItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_hub_work_items_total",
			Help: "Work items handled by orchestration runs, labeled by result.",
		},
		[]string{"result"}, // succeeded, failed, skipped
	)

	pullRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_hub_pull_requests_total",
			Help: "Pull requests opened and merged by orchestration runs.",
		},
		[]string{"action"}, // opened, merged
	)
)

func IncJobProcessed(status string) {
	jobsProcessedTotal.WithLabelValues(norm(status)).Inc()
}

func AddStaleRecovered(requeued, failed int) {
	if requeued > 0 {
		jobsStaleRecoveredTotal.WithLabelValues("requeued").Add(float64(requeued))
	}
	if failed > 0 {
		jobsStaleRecoveredTotal.WithLabelValues("failed").Add(float64(failed))
	}
}

func IncWorkerLoopError(stage string) {
	workerLoopErrorsTotal.WithLabelValues(norm(stage)).Inc()
}

func ObserveJobDuration(status string, seconds float64) {
	jobDurationSeconds.WithLabelValues(norm(status)).Observe(seconds)
}

// SetJobsByStatus overwrites the per-status gauge. Statuses missing from
// counts are reset to zero.
func SetJobsByStatus(counts map[string]int, statuses []string) {
	for _, s := range statuses {
		jobsByStatus.WithLabelValues(norm(s)).Set(float64(counts[s]))
	}
}

func SetOldestQueuedAge(seconds float64) {
	oldestQueuedAgeSeconds.Set(seconds)
}

func IncWorkItem(result string) {
	workItemsTotal.WithLabelValues(norm(result)).Inc()
}

func IncPullRequest(action string) {
	pullRequestsTotal.WithLabelValues(norm(action)).Inc()
}
