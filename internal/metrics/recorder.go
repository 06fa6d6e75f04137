package metrics

import "time"

// ResultLabel enumerates task result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFailed   ResultLabel = "failed"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for task, watch and process metrics.
type Recorder interface {
	ObserveTaskDuration(task, kind string, d time.Duration)
	IncTaskResult(task string, result ResultLabel)
	ObserveRunDuration(task string, d time.Duration)
	IncWatchTrigger(fileset, task string)
	IncWatchCoalesced(task string)
	IncProcessRestart()
	IncProcessStop(exitCode int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveTaskDuration(string, string, time.Duration) {}
func (NoopRecorder) IncTaskResult(string, ResultLabel)                 {}
func (NoopRecorder) ObserveRunDuration(string, time.Duration)          {}
func (NoopRecorder) IncWatchTrigger(string, string)                    {}
func (NoopRecorder) IncWatchCoalesced(string)                          {}
func (NoopRecorder) IncProcessRestart()                                {}
func (NoopRecorder) IncProcessStop(int)                                {}
