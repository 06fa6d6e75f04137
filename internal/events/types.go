package events

import "time"

// Event is implemented by every event published on the bus.
// Subscribing to Event receives everything.
type Event interface {
	EventName() string
}

// RebuildCompleted is emitted by the watch engine after a triggered task run finishes.
type RebuildCompleted struct {
	RunID      string
	Task       string
	Trigger    string // fileset whose change caused the run
	Succeeded  bool
	Err        error `json:"-"`
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

func (RebuildCompleted) EventName() string { return "rebuild.completed" }

// ProcessStarted is emitted whenever the supervisor (re)starts the dev process.
type ProcessStarted struct {
	PID       int
	Command   []string
	Restart   bool
	StartedAt time.Time
}

func (ProcessStarted) EventName() string { return "process.started" }

// ProcessStopped is emitted when the dev process exits on its own.
// The supervisor does not restart it; the next qualifying rebuild will.
type ProcessStopped struct {
	PID       int
	ExitCode  int
	Error     string
	StoppedAt time.Time
}

func (ProcessStopped) EventName() string { return "process.stopped" }
