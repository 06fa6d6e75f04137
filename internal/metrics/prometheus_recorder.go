package metrics

import (
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "buildflow"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	taskDuration    *prom.HistogramVec
	taskResults     *prom.CounterVec
	runDuration     *prom.HistogramVec
	watchTriggers   *prom.CounterVec
	watchCoalesced  *prom.CounterVec
	processRestarts prom.Counter
	processStops    *prom.CounterVec
}

// NewPrometheusRecorder constructs the collectors and registers them on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		taskDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Duration of individual task executions",
			Buckets:   prom.DefBuckets,
		}, []string{"task", "kind"}),
		taskResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "task_results_total",
			Help:      "Task result counts by outcome",
		}, []string{"task", "result"}),
		runDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of top-level task runs",
			Buckets:   prom.DefBuckets,
		}, []string{"task"}),
		watchTriggers: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "watch_triggers_total",
			Help:      "Watch-triggered task runs by fileset and task",
		}, []string{"fileset", "task"}),
		watchCoalesced: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "watch_coalesced_total",
			Help:      "Change events folded into an already pending run",
		}, []string{"task"}),
		processRestarts: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "dev_process_restarts_total",
			Help:      "Dev process restarts after successful rebuilds",
		}),
		processStops: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "dev_process_stops_total",
			Help:      "Dev process exits not initiated by the supervisor",
		}, []string{"exit_code"}),
	}
	reg.MustRegister(pr.taskDuration, pr.taskResults, pr.runDuration, pr.watchTriggers,
		pr.watchCoalesced, pr.processRestarts, pr.processStops)
	return pr
}

func (p *PrometheusRecorder) ObserveTaskDuration(task, kind string, d time.Duration) {
	if p == nil || p.taskDuration == nil {
		return
	}
	p.taskDuration.WithLabelValues(task, kind).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTaskResult(task string, result ResultLabel) {
	if p == nil || p.taskResults == nil {
		return
	}
	p.taskResults.WithLabelValues(task, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveRunDuration(task string, d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.WithLabelValues(task).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncWatchTrigger(fileset, task string) {
	if p == nil || p.watchTriggers == nil {
		return
	}
	p.watchTriggers.WithLabelValues(fileset, task).Inc()
}

func (p *PrometheusRecorder) IncWatchCoalesced(task string) {
	if p == nil || p.watchCoalesced == nil {
		return
	}
	p.watchCoalesced.WithLabelValues(task).Inc()
}

func (p *PrometheusRecorder) IncProcessRestart() {
	if p == nil || p.processRestarts == nil {
		return
	}
	p.processRestarts.Inc()
}

func (p *PrometheusRecorder) IncProcessStop(exitCode int) {
	if p == nil || p.processStops == nil {
		return
	}
	p.processStops.WithLabelValues(strconv.Itoa(exitCode)).Inc()
}
