package perf

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
	"github.com/odyssey-erp/odyssey-pos/internal/reconcile"
	"github.com/odyssey-erp/odyssey-pos/internal/testing/fixture"
)

func TestReconcileJobThroughputAndReliability(t *testing.T) {
	env := fixture.New(t)
	wh := env.Warehouse(t, "MAIN", true)
	for _, sku := range []string{"A", "B", "C", "D"} {
		p := env.Product(t, sku, "500")
		env.Stock(t, p.ID, wh.ID, 25)
	}
	svc := reconcile.NewService(env.Store.Reconcile(), env.Logger)

	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	for i := 0; i < 40; i++ {
		tracker := metrics.Track("inventory_reconcile")
		report, err := svc.Run(context.Background(), reconcile.DefaultSampleSize)
		if err := tracker.End(err); err != nil {
			t.Fatalf("reconcile run failed: %v", err)
		}
		if report.Summary.Total != 0 {
			t.Fatalf("clean ledger reported %d findings", report.Summary.Total)
		}
	}

	// A cancelled context must surface as a failed run.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tracker := metrics.Track("inventory_reconcile")
	_, err := svc.Run(ctx, reconcile.DefaultSampleSize)
	if err := tracker.End(err); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "odyssey_jobs_total", map[string]string{"job": "inventory_reconcile", "status": "success"})
	failure := metricValue(t, families, "odyssey_jobs_total", map[string]string{"job": "inventory_reconcile", "status": "failure"})
	if success != 40 || failure != 1 {
		t.Fatalf("unexpected run counts: success=%v failure=%v", success, failure)
	}

	mean := histogramMean(t, families, "odyssey_job_duration_seconds", map[string]string{"job": "inventory_reconcile"})
	if mean > 0.5 {
		t.Fatalf("reconcile duration above budget: %f", mean)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
