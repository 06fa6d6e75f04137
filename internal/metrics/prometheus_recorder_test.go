package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

var _ Recorder = (*PrometheusRecorder)(nil)
var _ Recorder = NoopRecorder{}

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveTaskDuration("styles", "leaf", 150*time.Millisecond)
	pr.IncTaskResult("styles", ResultSuccess)
	pr.IncTaskResult("lint", ResultFailed)
	pr.IncTaskResult("lint", ResultFailed)
	pr.ObserveRunDuration("default", 2*time.Second)
	pr.IncWatchTrigger("styles", "styles")
	pr.IncWatchCoalesced("styles")
	pr.IncProcessRestart()
	pr.IncProcessStop(3)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, mfs, 7)

	require.InDelta(t, 2, counterValue(mfs, "buildflow_task_results_total", "result", "failed"), 0)
	require.InDelta(t, 1, counterValue(mfs, "buildflow_dev_process_stops_total", "exit_code", "3"), 0)
	require.InDelta(t, 1, counterValue(mfs, "buildflow_dev_process_restarts_total", "", ""), 0)
}

// counterValue returns the first counter sample of family name whose label matches.
func counterValue(mfs []*dto.MetricFamily, name, label, value string) float64 {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if label == "" {
				return m.GetCounter().GetValue()
			}
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return -1
}

func TestPrometheusRecorder_NilSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.ObserveTaskDuration("x", "leaf", time.Second)
	pr.IncTaskResult("x", ResultSuccess)
	pr.IncProcessRestart()
	pr.IncProcessStop(1)
}

func TestHTTPHandler(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.IncWatchTrigger("html", "html")

	srv := httptest.NewServer(HTTPHandler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `buildflow_watch_triggers_total{fileset="html",task="html"} 1`)
}
