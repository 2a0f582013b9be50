package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(gitCommandsTotal, gitRetriesTotal, notificationsTotal) }

var (
	gitCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workspace_git_commands_total",
			Help: "Git invocations by operation and result.",
		},
		[]string{"op", "result"}, // result: ok, transient, error
	)

	gitRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workspace_git_retries_total",
			Help: "Git invocations repeated after a transient failure.",
		},
		[]string{"op"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Outbound notifications and published events by channel and result.",
		},
		[]string{"channel", "result"}, // channel: telegram, nats
	)
)

func IncGitCommand(op, result string) {
	gitCommandsTotal.WithLabelValues(norm(op), norm(result)).Inc()
}

func IncGitRetry(op string) {
	gitRetriesTotal.WithLabelValues(norm(op)).Inc()
}

func IncNotification(channel, result string) {
	notificationsTotal.WithLabelValues(norm(channel), norm(result)).Inc()
}
