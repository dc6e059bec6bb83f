package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func counterValue(t *testing.T, r *Recorder, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := r.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
					continue metrics
				}
			}
			if metric.GetCounter() != nil {
				return metric.GetCounter().GetValue()
			}
			if metric.GetGauge() != nil {
				return metric.GetGauge().GetValue()
			}
			if metric.GetHistogram() != nil {
				return float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return 0
}

func TestRecorderCountsGenerationCalls(t *testing.T) {
	r := New()
	r.ObserveGeneration("style", OutcomeSuccess, 2*time.Second)
	r.ObserveGeneration("style", OutcomeSuccess, time.Second)
	r.ObserveGeneration("refine", OutcomeReauth, time.Second)

	if got := counterValue(t, r, "artstudio_generation_calls_total", map[string]string{"operation": "style", "outcome": "success"}); got != 2 {
		t.Fatalf("style successes = %v, want 2", got)
	}
	if got := counterValue(t, r, "artstudio_generation_calls_total", map[string]string{"operation": "refine", "outcome": "reauth"}); got != 1 {
		t.Fatalf("refine reauth = %v, want 1", got)
	}
	if got := counterValue(t, r, "artstudio_generation_duration_seconds", map[string]string{"operation": "style"}); got != 2 {
		t.Fatalf("style samples = %v, want 2", got)
	}
}

func TestRecorderFramesAndJobs(t *testing.T) {
	r := New()
	r.AddFrames("captured", 5)
	r.AddFrames("captured", 0)
	r.JobStarted()
	r.JobStarted()
	r.JobFinished()

	if got := counterValue(t, r, "artstudio_frames_total", map[string]string{"kind": "captured"}); got != 5 {
		t.Fatalf("captured frames = %v, want 5", got)
	}
	if got := counterValue(t, r, "artstudio_active_jobs", nil); got != 1 {
		t.Fatalf("active jobs = %v, want 1", got)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.ObserveGeneration("style", OutcomeSuccess, time.Second)
	r.AddFrames("stylized", 1)
	r.ObserveStage("render", OutcomeSuccess, time.Second)
	r.JobStarted()
	r.JobFinished()
}

func TestOutcome(t *testing.T) {
	if Outcome(nil, false) != OutcomeSuccess {
		t.Fatal("nil error should be success")
	}
	if Outcome(errors.New("x"), true) != OutcomeReauth {
		t.Fatal("reauth should win")
	}
	if Outcome(errors.New("x"), false) != OutcomeError {
		t.Fatal("expected error outcome")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.ObserveStage("extract", OutcomeSuccess, 3*time.Second)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `artstudio_stage_duration_seconds_count{outcome="success",stage="extract"} 1`) {
		t.Fatalf("expected stage histogram in output:\n%s", body)
	}
}
