// Package watch re-runs tasks when the files of their bound filesets change.
//
// Each binding owns a worker with three states. A matching change moves an idle
// worker to Pending and starts the debounce timer; further changes while Pending
// restart the timer. When the timer fires the worker is Running and invokes the
// runner; changes arriving meanwhile are folded into a single queued re-run. A
// worker never runs its task concurrently with itself, and a failed run is
// reported without stopping the watch.
package watch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/buildflow/internal/events"
	"git.home.luguber.info/inful/buildflow/internal/fileset"
	ferrors "git.home.luguber.info/inful/buildflow/internal/foundation/errors"
	"git.home.luguber.info/inful/buildflow/internal/logfields"
	"git.home.luguber.info/inful/buildflow/internal/metrics"
	"git.home.luguber.info/inful/buildflow/internal/task"
)

// DefaultDebounce is the quiet window used when none is configured.
const DefaultDebounce = 300 * time.Millisecond

// State is a binding worker state.
type State int32

const (
	StateIdle State = iota
	StatePending
	StateRunning
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	default:
		return "idle"
	}
}

// Binding subscribes changes to FileSet to a re-run of Task.
type Binding struct {
	FileSet fileset.FileSet
	Task    string
}

func (b Binding) key() string { return b.FileSet.Name + "->" + b.Task }

// TaskRunner runs a task by name.
type TaskRunner interface {
	Run(ctx context.Context, name string) error
}

// TaskResolver validates task names at binding time.
type TaskResolver interface {
	Resolve(name string) (task.Task, error)
}

// Engine starts watch sessions.
type Engine struct {
	runner   TaskRunner
	tasks    TaskResolver
	debounce time.Duration
	bus      *events.Bus
	recorder metrics.Recorder
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithDebounce(d time.Duration) Option    { return func(e *Engine) { e.debounce = d } }
func WithBus(b *events.Bus) Option           { return func(e *Engine) { e.bus = b } }
func WithRecorder(r metrics.Recorder) Option { return func(e *Engine) { e.recorder = r } }
func WithLogger(l *slog.Logger) Option       { return func(e *Engine) { e.logger = l } }

func NewEngine(runner TaskRunner, tasks TaskResolver, opts ...Option) *Engine {
	e := &Engine{
		runner:   runner,
		tasks:    tasks,
		debounce: DefaultDebounce,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.debounce <= 0 {
		e.debounce = DefaultDebounce
	}
	return e
}

// Handle controls a running watch session.
type Handle struct {
	cancel  context.CancelFunc
	source  Source
	workers map[string]*worker
	wg      sync.WaitGroup
	done    chan struct{}
	once    sync.Once
}

// Start validates bindings against the task registry and begins consuming src.
// The session runs until Stop is called or ctx is canceled.
func (e *Engine) Start(ctx context.Context, bindings []Binding, src Source) (*Handle, error) {
	if src == nil {
		return nil, ferrors.ValidationError("watch source is required").Build()
	}
	for _, b := range bindings {
		if _, err := e.tasks.Resolve(b.Task); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		cancel:  cancel,
		source:  src,
		workers: make(map[string]*worker, len(bindings)),
		done:    make(chan struct{}),
	}

	ordered := make([]*worker, 0, len(bindings))
	for _, b := range bindings {
		if _, dup := h.workers[b.key()]; dup {
			continue
		}
		w := &worker{engine: e, binding: b, trigger: make(chan struct{}, 1)}
		h.workers[b.key()] = w
		ordered = append(ordered, w)
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			w.loop(ctx)
		}()
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		e.dispatch(ctx, src, ordered)
	}()

	go func() {
		h.wg.Wait()
		close(h.done)
	}()

	e.logger.Info("Watching for changes", slog.Int("bindings", len(ordered)), slog.Duration("debounce", e.debounce))
	return h, nil
}

// dispatch fans change events out to every binding whose fileset matches.
func (e *Engine) dispatch(ctx context.Context, src Source, workers []*worker) {
	evs, errs := src.Events(), src.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-evs:
			if !ok {
				evs = nil
				if errs == nil {
					return
				}
				continue
			}
			for _, w := range workers {
				if w.binding.FileSet.Matches(ev.Path) {
					e.logger.Debug("File change detected",
						logfields.Path(ev.Path),
						logfields.Op(string(ev.Op)),
						logfields.FileSet(w.binding.FileSet.Name),
						logfields.Task(w.binding.Task))
					w.signal()
				}
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				if evs == nil {
					return
				}
				continue
			}
			e.logger.Warn("Watcher error", logfields.Error(err))
		}
	}
}

// Stop ends the session: no new runs start, an in-flight run completes, and the
// source is closed. Stop is idempotent and waits for all workers to exit.
func (h *Handle) Stop() {
	h.once.Do(func() {
		h.cancel()
		_ = h.source.Close()
	})
	<-h.done
}

// Done is closed once the session has fully stopped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// State reports the current state of the worker for b.
func (h *Handle) State(b Binding) State {
	w, ok := h.workers[b.key()]
	if !ok {
		return StateIdle
	}
	return State(w.state.Load())
}

type worker struct {
	engine  *Engine
	binding Binding
	trigger chan struct{} // capacity 1: at most one queued signal
	state   atomic.Int32
}

func (w *worker) setState(s State) { w.state.Store(int32(s)) }

// signal records a matching change without blocking. A full trigger channel
// means a change is already queued; the new one is folded into it.
func (w *worker) signal() {
	select {
	case w.trigger <- struct{}{}:
	default:
		w.engine.recorder.IncWatchCoalesced(w.binding.Task)
	}
}

func (w *worker) loop(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	resetTimer := func(after time.Duration) {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(after)
	}

	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			w.setState(StateIdle)
			return
		case <-w.trigger:
			if State(w.state.Load()) == StatePending {
				w.engine.recorder.IncWatchCoalesced(w.binding.Task)
			}
			w.setState(StatePending)
			resetTimer(w.engine.debounce)
			timerC = timer.C
		case <-timerC:
			timerC = nil
			w.setState(StateRunning)
			w.run(ctx)
			w.setState(StateIdle)
		}
	}
}

func (w *worker) run(ctx context.Context) {
	e := w.engine
	b := w.binding
	e.recorder.IncWatchTrigger(b.FileSet.Name, b.Task)
	e.logger.Info("Change detected; rebuilding", logfields.FileSet(b.FileSet.Name), logfields.Task(b.Task))

	started := time.Now()
	err := e.runner.Run(ctx, b.Task)
	evt := events.RebuildCompleted{
		RunID:      uuid.NewString(),
		Task:       b.Task,
		Trigger:    b.FileSet.Name,
		Succeeded:  err == nil,
		Err:        err,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if err != nil {
		evt.Error = err.Error()
		e.logger.Error("Rebuild failed", logfields.Task(b.Task), logfields.Error(err))
	} else {
		e.logger.Info("Rebuild complete",
			logfields.Task(b.Task),
			logfields.Duration(evt.FinishedAt.Sub(started)))
	}

	if perr := e.bus.Publish(ctx, evt); perr != nil && ctx.Err() == nil {
		e.logger.Warn("Failed to publish rebuild result", logfields.Task(b.Task), logfields.Error(perr))
	}
}
