package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yeisme/yukumo/pkg/configs"
	"github.com/yeisme/yukumo/pkg/metrics"
)

func TestInitMetricsIdempotent(t *testing.T) {
	cfg := configs.MetricsConfig{Enabled: true, Labels: map[string]string{"instance": "test"}}

	for i := range 2 {
		if err := metrics.InitMetrics(cfg); err != nil {
			t.Fatalf("InitMetrics call %d: %v", i+1, err)
		}
	}

	metrics.MigrationApplied()

	families, err := metrics.GetRegistry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	var found bool

	for _, mf := range families {
		if mf.GetName() != "yukumo_migrations_applied_total" {
			continue
		}

		found = true

		labels := mf.GetMetric()[0].GetLabel()
		if len(labels) != 1 || labels[0].GetName() != "instance" || labels[0].GetValue() != "test" {
			t.Errorf("const labels = %v, want instance=test", labels)
		}
	}

	if !found {
		t.Fatalf("yukumo_migrations_applied_total not registered")
	}
}

func TestObserveOutcome(t *testing.T) {
	before := testutil.ToFloat64(metrics.ReconcileOutcomes.WithLabelValues("skipped"))

	metrics.ObserveOutcome("skipped")
	metrics.ObserveOutcome("skipped")

	if got := testutil.ToFloat64(metrics.ReconcileOutcomes.WithLabelValues("skipped")) - before; got != 2 {
		t.Errorf("skipped delta = %v, want 2", got)
	}
}

func TestObserveUpload(t *testing.T) {
	before := testutil.ToFloat64(metrics.UploadBytes.WithLabelValues("s3"))

	metrics.ObserveUpload("s3", 10*time.Millisecond, 512)
	metrics.ObserveUpload("s3", time.Millisecond, -1)

	if got := testutil.ToFloat64(metrics.UploadBytes.WithLabelValues("s3")) - before; got != 512 {
		t.Errorf("bytes delta = %v, want 512", got)
	}
}
