package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/deixis/gitcmd/internal/actor"
)

func TestOutcome(t *testing.T) {
	zero, one := int32(0), int32(1)
	msg := "Command timed out after 1 seconds"
	cases := []struct {
		res  actor.Result
		want string
	}{
		{actor.Result{Success: true, ExitCode: &zero}, OutcomeSuccess},
		{actor.Result{ExitCode: &one}, OutcomeFailure},
		{actor.Result{Error: &msg}, OutcomeError},
	}
	for _, tc := range cases {
		if got := Outcome(tc.res); got != tc.want {
			t.Errorf("Outcome(%+v) = %q, want %q", tc.res, got, tc.want)
		}
	}
}

func TestObserveResult(t *testing.T) {
	m := New()
	zero := int32(0)
	ms := uint64(250)
	m.ObserveResult(actor.Result{Success: true, ExitCode: &zero, Stdout: "abc", Stderr: "d", ExecutionTimeMs: &ms})
	m.ObserveResult(actor.Result{Success: true, ExitCode: &zero})

	if got := testutil.ToFloat64(m.runs.WithLabelValues(OutcomeSuccess)); got != 2 {
		t.Errorf("runs{success} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.outputBytes.WithLabelValues("stdout")); got != 3 {
		t.Errorf("output_bytes{stdout} = %v, want 3", got)
	}
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var samples uint64
	for _, f := range families {
		if f.GetName() == "gitcmd_run_duration_seconds" {
			samples = f.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	if samples != 1 {
		t.Errorf("duration samples = %d, want 1", samples)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveResult(actor.Result{})
	m.ObserveAbandoned()
}

func TestMount(t *testing.T) {
	m := New()
	m.ObserveAbandoned()
	mux := http.NewServeMux()
	m.Mount(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "gitcmd_runs_abandoned_total 1") {
		t.Errorf("metrics body missing abandoned counter:\n%s", body)
	}

	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", resp.StatusCode)
	}
}
