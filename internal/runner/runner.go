// Package runner executes registered tasks: leaves invoke their transform over a
// freshly resolved fileset, series run children one after another and stop at the
// first failure, parallel groups run every child to completion and report the
// first failure by completion order.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/buildflow/internal/config"
	"git.home.luguber.info/inful/buildflow/internal/fileset"
	"git.home.luguber.info/inful/buildflow/internal/logfields"
	"git.home.luguber.info/inful/buildflow/internal/metrics"
	"git.home.luguber.info/inful/buildflow/internal/task"
	"git.home.luguber.info/inful/buildflow/internal/transform"
)

// FileResolver resolves a fileset to concrete paths.
type FileResolver interface {
	Resolve(fs fileset.FileSet) ([]string, error)
}

// Journal persists finished TaskRuns. Journal errors never fail a run.
type Journal interface {
	Record(ctx context.Context, run TaskRun) error
}

// Runner executes tasks from a registry under a fixed BuildConfig.
type Runner struct {
	registry *task.Registry
	cfg      *config.BuildConfig
	files    FileResolver
	recorder metrics.Recorder
	journal  Journal
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

func WithResolver(r FileResolver) Option     { return func(rn *Runner) { rn.files = r } }
func WithRecorder(r metrics.Recorder) Option { return func(rn *Runner) { rn.recorder = r } }
func WithJournal(j Journal) Option           { return func(rn *Runner) { rn.journal = j } }
func WithLogger(l *slog.Logger) Option       { return func(rn *Runner) { rn.logger = l } }
func withClock(now func() time.Time) Option  { return func(rn *Runner) { rn.now = now } }

// New constructs a Runner. cfg is shared read-only with every transform.
func New(registry *task.Registry, cfg *config.BuildConfig, opts ...Option) *Runner {
	r := &Runner{
		registry: registry,
		cfg:      cfg,
		files:    fileset.NewResolver(),
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the registry the runner executes from.
func (r *Runner) Registry() *task.Registry { return r.registry }

// execution is the state of one top-level Run. Leaves reachable along several
// paths execute once; later visitors wait for the first visitor's result.
type execution struct {
	runID  string
	mu     sync.Mutex
	leaves map[string]*leafResult
}

type leafResult struct {
	done chan struct{}
	err  error
}

// claim returns the shared result slot for a leaf and whether the caller owns it.
func (e *execution) claim(name string) (*leafResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if res, ok := e.leaves[name]; ok {
		return res, false
	}
	res := &leafResult{done: make(chan struct{})}
	e.leaves[name] = res
	return res, true
}

// Run executes the named task and returns the first failure of the executed graph.
// A leaf failure is returned unchanged through every enclosing composition.
func (r *Runner) Run(ctx context.Context, name string) error {
	if _, err := r.registry.Resolve(name); err != nil {
		return err
	}
	exec := &execution{runID: uuid.NewString(), leaves: make(map[string]*leafResult)}

	start := r.now()
	err := r.execute(ctx, exec, name)
	r.recorder.ObserveRunDuration(name, r.now().Sub(start))
	return err
}

func (r *Runner) execute(ctx context.Context, exec *execution, name string) error {
	t, err := r.registry.Resolve(name)
	if err != nil {
		return err
	}

	if t.Def.Kind() == task.KindLeaf {
		res, owner := exec.claim(name)
		if !owner {
			<-res.done
			return res.err
		}
		defer close(res.done)
		res.err = r.observe(ctx, exec, t, func() error {
			return r.runLeaf(ctx, t.Name, t.Def.(task.Leaf))
		})
		return res.err
	}

	return r.observe(ctx, exec, t, func() error {
		switch def := t.Def.(type) {
		case task.Series:
			return r.runSeries(ctx, exec, def)
		case task.Parallel:
			return r.runParallel(ctx, exec, def)
		}
		return nil
	})
}

// observe wraps fn in a TaskRun, reporting it to the logger, recorder and journal.
func (r *Runner) observe(ctx context.Context, exec *execution, t task.Task, fn func() error) error {
	run := TaskRun{
		ID:        uuid.NewString(),
		RunID:     exec.runID,
		TaskName:  t.Name,
		Kind:      t.Def.Kind(),
		StartedAt: r.now(),
		Status:    StatusRunning,
	}
	r.logger.Debug("Task started",
		logfields.Task(t.Name),
		logfields.TaskKind(string(run.Kind)),
		logfields.RunID(run.RunID))

	err := fn()

	run.FinishedAt = r.now()
	result := metrics.ResultSuccess
	run.Status = StatusSucceeded
	if err != nil {
		run.Status = StatusFailed
		run.Err = err
		result = metrics.ResultFailed
		if ctx.Err() != nil {
			result = metrics.ResultCanceled
		}
	}
	r.recorder.ObserveTaskDuration(t.Name, string(run.Kind), run.Duration())
	r.recorder.IncTaskResult(t.Name, result)

	attrs := []any{
		logfields.Task(t.Name),
		logfields.TaskKind(string(run.Kind)),
		logfields.Status(string(run.Status)),
		logfields.Duration(run.Duration()),
	}
	switch {
	case err == nil && run.Kind == task.KindLeaf:
		r.logger.Info("Task finished", attrs...)
	case err == nil:
		r.logger.Debug("Task finished", attrs...)
	case run.Kind == task.KindLeaf:
		r.logger.Error("Task failed", append(attrs, logfields.Error(err))...)
	default:
		r.logger.Debug("Task failed", append(attrs, logfields.Error(err))...)
	}

	if r.journal != nil {
		if jerr := r.journal.Record(context.WithoutCancel(ctx), run); jerr != nil {
			r.logger.Warn("Failed to record task run", logfields.Task(t.Name), logfields.Error(jerr))
		}
	}
	return err
}

func (r *Runner) runLeaf(ctx context.Context, name string, leaf task.Leaf) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var inputs []string
	if leaf.Inputs != nil {
		files, err := r.files.Resolve(*leaf.Inputs)
		if err != nil {
			return &transform.TransformError{Transform: leaf.Transform.Name(), Kind: transform.KindIO, Err: err}
		}
		inputs = files
		r.logger.Debug("Resolved inputs",
			logfields.Task(name),
			logfields.FileSet(leaf.Inputs.Name),
			logfields.Files(len(inputs)))
	}
	_, err := leaf.Transform.Apply(ctx, inputs, r.cfg)
	return err
}

func (r *Runner) runSeries(ctx context.Context, exec *execution, s task.Series) error {
	for _, child := range s.Children {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.execute(ctx, exec, child); err != nil {
			return err
		}
	}
	return nil
}

// runParallel never cancels siblings: a failure in one child does not stop the others.
func (r *Runner) runParallel(ctx context.Context, exec *execution, p task.Parallel) error {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		first error
	)
	for _, child := range p.Children {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := r.execute(ctx, exec, name); err != nil {
				mu.Lock()
				if first == nil {
					first = err
				}
				mu.Unlock()
			}
		}(child)
	}
	wg.Wait()
	return first
}
