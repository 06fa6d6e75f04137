package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildflow/internal/config"
	"git.home.luguber.info/inful/buildflow/internal/fileset"
	"git.home.luguber.info/inful/buildflow/internal/metrics"
	"git.home.luguber.info/inful/buildflow/internal/task"
	"git.home.luguber.info/inful/buildflow/internal/transform"
)

// trace records transform start/finish events in order.
type trace struct {
	mu     sync.Mutex
	events []string
	calls  map[string]int
	inputs map[string][]string
}

func newTrace() *trace {
	return &trace{calls: map[string]int{}, inputs: map[string][]string{}}
}

func (tr *trace) add(ev string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.events = append(tr.events, ev)
}

func (tr *trace) snapshot() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.events...)
}

func (tr *trace) count(name string) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.calls[name]
}

// leaf builds a traced leaf; fn may be nil for a transform that succeeds.
func (tr *trace) leaf(name string, fn func() error) task.Leaf {
	return task.Leaf{Transform: transform.Func{ID: name, Fn: func(_ context.Context, inputs []string, _ *config.BuildConfig) ([]string, error) {
		tr.mu.Lock()
		tr.calls[name]++
		tr.inputs[name] = inputs
		tr.mu.Unlock()
		tr.add("start:" + name)
		var err error
		if fn != nil {
			err = fn()
		}
		tr.add("end:" + name)
		return nil, err
	}}}
}

func indexOf(events []string, ev string) int {
	for i, e := range events {
		if e == ev {
			return i
		}
	}
	return -1
}

func newRunner(t *testing.T, tasks []task.Task, opts ...Option) *Runner {
	t.Helper()
	reg := task.NewRegistry()
	require.NoError(t, reg.RegisterAll(tasks))
	return New(reg, &config.BuildConfig{OutputDir: t.TempDir()}, opts...)
}

func TestRun_SeriesCompletesChildrenInOrder(t *testing.T) {
	tr := newTrace()
	r := newRunner(t, []task.Task{
		{Name: "lint", Def: tr.leaf("lint", nil)},
		{Name: "bundle", Def: tr.leaf("bundle", nil)},
		{Name: "js", Def: task.Series{Children: []string{"lint", "bundle"}}},
	})

	require.NoError(t, r.Run(t.Context(), "js"))
	require.Equal(t, []string{"start:lint", "end:lint", "start:bundle", "end:bundle"}, tr.snapshot())
}

func TestRun_SeriesStopsAtFirstFailure(t *testing.T) {
	tr := newTrace()
	lintErr := &transform.TransformError{Transform: "lint", Kind: transform.KindLint, Err: errors.New("3 problems")}
	r := newRunner(t, []task.Task{
		{Name: "a", Def: tr.leaf("a", func() error { return lintErr })},
		{Name: "b", Def: tr.leaf("b", nil)},
		{Name: "s", Def: task.Series{Children: []string{"a", "b"}}},
	})

	err := r.Run(t.Context(), "s")
	require.Same(t, lintErr, err)
	require.Zero(t, tr.count("b"))
}

func TestRun_ParallelRunsEverySiblingAndKeepsTheirOutput(t *testing.T) {
	tr := newTrace()
	out := t.TempDir()
	compileErr := &transform.TransformError{Transform: "styles", Kind: transform.KindCompile, Err: errors.New("syntax")}
	bStarted := make(chan struct{})

	r := newRunner(t, []task.Task{
		{Name: "a", Def: tr.leaf("a", func() error {
			<-bStarted
			return compileErr
		})},
		{Name: "b", Def: tr.leaf("b", func() error {
			close(bStarted)
			time.Sleep(30 * time.Millisecond)
			return os.WriteFile(filepath.Join(out, "vendor.js"), []byte("v"), 0o600)
		})},
		{Name: "p", Def: task.Parallel{Children: []string{"a", "b"}}},
	})

	err := r.Run(t.Context(), "p")
	require.Same(t, compileErr, err)
	require.FileExists(t, filepath.Join(out, "vendor.js"))
	require.Equal(t, 1, tr.count("a"))
	require.Equal(t, 1, tr.count("b"))
	require.NotEqual(t, -1, indexOf(tr.snapshot(), "end:b"))
}

func TestRun_ParallelReportsFirstFailureByCompletionOrder(t *testing.T) {
	tr := newTrace()
	slowErr := errors.New("slow failure")
	fastErr := errors.New("fast failure")
	fastDone := make(chan struct{})

	r := newRunner(t, []task.Task{
		{Name: "slow", Def: tr.leaf("slow", func() error {
			<-fastDone
			time.Sleep(50 * time.Millisecond)
			return slowErr
		})},
		{Name: "fast", Def: tr.leaf("fast", func() error {
			defer close(fastDone)
			return fastErr
		})},
		{Name: "p", Def: task.Parallel{Children: []string{"slow", "fast"}}},
	})

	require.ErrorIs(t, r.Run(t.Context(), "p"), fastErr)
}

func TestRun_NestedCompositionFollowsGraph(t *testing.T) {
	tr := newTrace()
	r := newRunner(t, []task.Task{
		{Name: "clean", Def: tr.leaf("clean", nil)},
		{Name: "html", Def: tr.leaf("html", nil)},
		{Name: "vendor", Def: tr.leaf("vendor", nil)},
		{Name: "version-stamp", Def: tr.leaf("version-stamp", nil)},
		{Name: "lint-all", Def: tr.leaf("lint-all", nil)},
		{Name: "scripts", Def: tr.leaf("scripts", nil)},
		{Name: "images", Def: tr.leaf("images", nil)},
		{Name: "strip", Def: tr.leaf("strip", nil)},
		{Name: "js", Def: task.Series{Children: []string{"version-stamp", "lint-all", "scripts"}}},
		{Name: "imagery", Def: task.Series{Children: []string{"images", "strip"}}},
		{Name: "assets", Def: task.Parallel{Children: []string{"html", "vendor", "js", "imagery"}}},
		{Name: "default", Def: task.Series{Children: []string{"clean", "assets"}}},
	})

	require.NoError(t, r.Run(t.Context(), "default"))
	ev := tr.snapshot()
	require.Len(t, ev, 16)
	for _, leaf := range []string{"html", "vendor", "version-stamp", "lint-all", "scripts", "images", "strip"} {
		require.Less(t, indexOf(ev, "end:clean"), indexOf(ev, "start:"+leaf), leaf)
		require.Equal(t, 1, tr.count(leaf), leaf)
	}
	require.Less(t, indexOf(ev, "end:version-stamp"), indexOf(ev, "start:lint-all"))
	require.Less(t, indexOf(ev, "end:lint-all"), indexOf(ev, "start:scripts"))
	require.Less(t, indexOf(ev, "end:images"), indexOf(ev, "start:strip"))
}

func TestRun_SharedLeafRunsOncePerRun(t *testing.T) {
	tr := newTrace()
	r := newRunner(t, []task.Task{
		{Name: "lint", Def: tr.leaf("lint", func() error {
			time.Sleep(10 * time.Millisecond)
			return nil
		})},
		{Name: "left", Def: task.Series{Children: []string{"lint"}}},
		{Name: "right", Def: task.Series{Children: []string{"lint"}}},
		{Name: "top", Def: task.Parallel{Children: []string{"left", "right", "lint"}}},
	})

	require.NoError(t, r.Run(t.Context(), "top"))
	require.Equal(t, 1, tr.count("lint"))

	require.NoError(t, r.Run(t.Context(), "top"))
	require.Equal(t, 2, tr.count("lint"), "a new run executes the leaf again")
}

func TestRun_SharedLeafFailureReachesEveryVisitor(t *testing.T) {
	tr := newTrace()
	boom := errors.New("boom")
	r := newRunner(t, []task.Task{
		{Name: "lint", Def: tr.leaf("lint", func() error { return boom })},
		{Name: "after", Def: tr.leaf("after", nil)},
		{Name: "guarded", Def: task.Series{Children: []string{"lint", "after"}}},
		{Name: "top", Def: task.Parallel{Children: []string{"lint", "guarded"}}},
	})

	require.ErrorIs(t, r.Run(t.Context(), "top"), boom)
	require.Equal(t, 1, tr.count("lint"))
	require.Zero(t, tr.count("after"))
}

func TestRun_UnknownTask(t *testing.T) {
	r := newRunner(t, nil)
	err := r.Run(t.Context(), "missing")
	var unknown *task.UnknownTaskError
	require.ErrorAs(t, err, &unknown)
}

func TestRun_StripMetadataFailureDoesNotFailBuild(t *testing.T) {
	tr := newTrace()
	failingTool := transform.Func{ID: "exiftool", Fn: func(context.Context, []string, *config.BuildConfig) ([]string, error) {
		return nil, &transform.TransformError{Transform: "exiftool", Kind: transform.KindIO, Err: errors.New("exiftool: not found")}
	}}

	reg := task.NewRegistry()
	require.NoError(t, reg.RegisterAll([]task.Task{
		{Name: "images", Def: tr.leaf("images", nil)},
		{Name: "strip-metadata", Def: task.Leaf{Transform: transform.StripMetadata{ID: "strip-metadata", Tool: failingTool}}},
		{Name: "imagery", Def: task.Series{Children: []string{"images", "strip-metadata"}}},
	}))
	r := New(reg, &config.BuildConfig{StripMetadata: true})

	require.NoError(t, r.Run(t.Context(), "imagery"))
}

func TestRun_ResolvesFileSetFreshEachRun(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.scss"), nil, 0o600))
	fs, err := fileset.New("styles", dir, []string{"*.scss"}, nil)
	require.NoError(t, err)

	tr := newTrace()
	leaf := tr.leaf("styles", nil)
	leaf.Inputs = &fs
	r := newRunner(t, []task.Task{{Name: "styles", Def: leaf}})

	require.NoError(t, r.Run(t.Context(), "styles"))
	require.Equal(t, []string{filepath.Join(dir, "a.scss")}, tr.inputs["styles"])

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.scss"), nil, 0o600))
	require.NoError(t, r.Run(t.Context(), "styles"))
	require.Equal(t, []string{filepath.Join(dir, "a.scss"), filepath.Join(dir, "b.scss")}, tr.inputs["styles"])
}

type failingResolver struct{}

func (failingResolver) Resolve(fileset.FileSet) ([]string, error) {
	return nil, errors.New("permission denied")
}

func TestRun_ResolveFailureIsIOTransformError(t *testing.T) {
	fs := fileset.FileSet{Name: "styles", Base: t.TempDir(), Include: []string{"*"}}
	tr := newTrace()
	leaf := tr.leaf("styles", nil)
	leaf.Inputs = &fs
	r := newRunner(t, []task.Task{{Name: "styles", Def: leaf}}, WithResolver(failingResolver{}))

	err := r.Run(t.Context(), "styles")
	te, ok := transform.AsTransformError(err)
	require.True(t, ok)
	require.Equal(t, transform.KindIO, te.Kind)
	require.Zero(t, tr.count("styles"))
}

func TestRun_CanceledContextStartsNothing(t *testing.T) {
	tr := newTrace()
	r := newRunner(t, []task.Task{
		{Name: "a", Def: tr.leaf("a", nil)},
		{Name: "s", Def: task.Series{Children: []string{"a"}}},
	})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	require.ErrorIs(t, r.Run(ctx, "s"), context.Canceled)
	require.Zero(t, tr.count("a"))
}

type memJournal struct {
	mu   sync.Mutex
	runs []TaskRun
	err  error
}

func (j *memJournal) Record(_ context.Context, run TaskRun) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs = append(j.runs, run)
	return j.err
}

type countingRecorder struct {
	metrics.NoopRecorder
	mu      sync.Mutex
	results map[string]metrics.ResultLabel
	runs    int
}

func (c *countingRecorder) IncTaskResult(task string, result metrics.ResultLabel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[task] = result
}

func (c *countingRecorder) ObserveRunDuration(string, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs++
}

func TestRun_ReportsTaskRunsToJournalAndRecorder(t *testing.T) {
	tr := newTrace()
	boom := errors.New("boom")
	journal := &memJournal{err: errors.New("disk full")}
	rec := &countingRecorder{results: map[string]metrics.ResultLabel{}}

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var tick time.Duration
	var clockMu sync.Mutex
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		tick += time.Second
		return base.Add(tick)
	}

	r := newRunner(t, []task.Task{
		{Name: "ok", Def: tr.leaf("ok", nil)},
		{Name: "bad", Def: tr.leaf("bad", func() error { return boom })},
		{Name: "s", Def: task.Series{Children: []string{"ok", "bad"}}},
	}, WithJournal(journal), WithRecorder(rec), withClock(clock))

	require.ErrorIs(t, r.Run(t.Context(), "s"), boom, "journal errors never fail a run")

	require.Len(t, journal.runs, 3)
	byName := map[string]TaskRun{}
	for _, run := range journal.runs {
		byName[run.TaskName] = run
		require.Equal(t, journal.runs[0].RunID, run.RunID)
		require.NotEmpty(t, run.ID)
		require.Positive(t, run.Duration())
	}
	require.Equal(t, StatusSucceeded, byName["ok"].Status)
	require.NoError(t, byName["ok"].Err)
	require.Equal(t, StatusFailed, byName["bad"].Status)
	require.ErrorIs(t, byName["bad"].Err, boom)
	require.Equal(t, task.KindSeries, byName["s"].Kind)
	require.Equal(t, StatusFailed, byName["s"].Status)

	require.Equal(t, metrics.ResultSuccess, rec.results["ok"])
	require.Equal(t, metrics.ResultFailed, rec.results["bad"])
	require.Equal(t, 1, rec.runs)
}
