package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildflow/internal/config"
	"git.home.luguber.info/inful/buildflow/internal/runner"
	"git.home.luguber.info/inful/buildflow/internal/task"
	"git.home.luguber.info/inful/buildflow/internal/transform"
)

func openStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := openStore(t)
	ctx := t.Context()
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, store.Record(ctx, runner.TaskRun{
		ID: "t1", RunID: "r1", TaskName: "lint", Kind: task.KindLeaf,
		StartedAt: start, FinishedAt: start.Add(time.Second), Status: runner.StatusSucceeded,
	}))
	require.NoError(t, store.Record(ctx, runner.TaskRun{
		ID: "t2", RunID: "r1", TaskName: "js", Kind: task.KindSeries,
		StartedAt: start, FinishedAt: start.Add(2 * time.Second), Status: runner.StatusFailed,
		Err: errors.New("bundle failed"),
	}))

	entries, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "t2", entries[0].ID, "newest first")
	require.Equal(t, task.KindSeries, entries[0].Kind)
	require.Equal(t, runner.StatusFailed, entries[0].Status)
	require.Equal(t, "bundle failed", entries[0].Error)
	require.Equal(t, 2*time.Second, entries[0].Duration())
	require.Empty(t, entries[1].Error)
	require.True(t, entries[1].StartedAt.Equal(start))

	limited, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	none, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestRecord_DuplicateIDFails(t *testing.T) {
	store := openStore(t)
	run := runner.TaskRun{ID: "same", RunID: "r", TaskName: "a", Kind: task.KindLeaf, Status: runner.StatusSucceeded}
	require.NoError(t, store.Record(t.Context(), run))
	require.Error(t, store.Record(t.Context(), run))
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Record(t.Context(), runner.TaskRun{ID: "x", RunID: "r", TaskName: "a", Kind: task.KindLeaf, Status: runner.StatusSucceeded}))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	entries, err := reopened.Recent(t.Context(), 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestOpen_InMemory(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	require.NoError(t, store.Record(t.Context(), runner.TaskRun{ID: "m", RunID: "r", TaskName: "a", Kind: task.KindLeaf, Status: runner.StatusSucceeded}))
	entries, err := store.Recent(t.Context(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestRunnerJournalsEveryTaskRun(t *testing.T) {
	store := openStore(t)
	noop := func(context.Context, []string, *config.BuildConfig) ([]string, error) { return nil, nil }

	reg := task.NewRegistry()
	require.NoError(t, reg.RegisterAll([]task.Task{
		{Name: "a", Def: task.Leaf{Transform: transform.Func{ID: "a", Fn: noop}}},
		{Name: "b", Def: task.Leaf{Transform: transform.Func{ID: "b", Fn: noop}}},
		{Name: "all", Def: task.Parallel{Children: []string{"a", "b"}}},
	}))
	r := runner.New(reg, &config.BuildConfig{OutputDir: t.TempDir()}, runner.WithJournal(store))
	require.NoError(t, r.Run(t.Context(), "all"))

	entries, err := store.Recent(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "all", entries[0].TaskName, "composite finishes last")

	byRun, err := store.ByRun(t.Context(), entries[0].RunID)
	require.NoError(t, err)
	require.Len(t, byRun, 3)
	for _, e := range byRun {
		require.Equal(t, runner.StatusSucceeded, e.Status)
	}
}
