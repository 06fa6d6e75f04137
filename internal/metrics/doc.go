// Package metrics provides the observability hooks for buildflow task runs, watch
// triggers and dev process restarts.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so nothing needs a nil check:
//
//	r := runner.New(reg, buildCfg, runner.WithRecorder(metrics.NewPrometheusRecorder(promReg)))
//
// When metrics are enabled (metrics.listen or --metrics-addr), the CLI serves the
// Prometheus registry through HTTPHandler on /metrics.
package metrics
