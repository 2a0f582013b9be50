//go:build !integration

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestJobMetrics(t *testing.T) {
	t.Run("should count stale recoveries per outcome", func(t *testing.T) {
		before := testutil.ToFloat64(jobsStaleRecoveredTotal.WithLabelValues("requeued"))
		AddStaleRecovered(2, 0)
		after := testutil.ToFloat64(jobsStaleRecoveredTotal.WithLabelValues("requeued"))
		if after-before != 2 {
			t.Errorf("expected +2 requeued, got %v", after-before)
		}
	})

	t.Run("should reset statuses missing from the snapshot", func(t *testing.T) {
		SetJobsByStatus(map[string]int{"queued": 4}, []string{"queued", "running"})
		SetJobsByStatus(map[string]int{}, []string{"queued", "running"})
		if got := testutil.ToFloat64(jobsByStatus.WithLabelValues("queued")); got != 0 {
			t.Errorf("expected queued gauge reset, got %v", got)
		}
	})

	t.Run("should normalize label values", func(t *testing.T) {
		IncWorkerLoopError("  Claim ")
		if got := testutil.ToFloat64(workerLoopErrorsTotal.WithLabelValues("claim")); got < 1 {
			t.Errorf("expected normalized label, got %v", got)
		}
	})
}

func TestBuildInfo(t *testing.T) {
	t.Run("should expose the build labels", func(t *testing.T) {
		SetBuildInfo("v1.2.3", "abc123")
		if got := testutil.ToFloat64(buildInfo.WithLabelValues("v1.2.3", "abc123")); got != 1 {
			t.Errorf("expected build info gauge 1, got %v", got)
		}
	})
}
