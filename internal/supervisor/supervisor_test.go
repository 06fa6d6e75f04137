package supervisor

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildflow/internal/events"
)

func newSupervisor(t *testing.T, bus *events.Bus, argv []string, opts ...Option) *Supervisor {
	t.Helper()
	opts = append([]Option{WithBus(bus), WithOutput(io.Discard, io.Discard)}, opts...)
	s, err := New(Command{Argv: argv, GracePeriod: 200 * time.Millisecond}, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

func TestNew_RequiresCommand(t *testing.T) {
	_, err := New(Command{})
	require.Error(t, err)
}

func TestStartStop_NoStoppedNotification(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	stopped, unsub := events.Subscribe[events.ProcessStopped](bus, 1)
	defer unsub()

	s := newSupervisor(t, bus, []string{"sleep", "30"})
	require.NoError(t, s.Start(t.Context()))
	require.True(t, s.Running())
	pid := s.PID()
	require.Positive(t, pid)

	require.NoError(t, s.Start(t.Context()))
	require.Equal(t, pid, s.PID(), "start is a no-op while running")

	s.Stop()
	require.False(t, s.Running())
	require.Zero(t, s.PID())

	select {
	case evt := <-stopped:
		t.Fatalf("unexpected stopped notification: %+v", evt)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChildExit_ReportsStoppedWithoutRestart(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	stopped, unsub := events.Subscribe[events.ProcessStopped](bus, 1)
	defer unsub()
	started, unsubStarted := events.Subscribe[events.ProcessStarted](bus, 4)
	defer unsubStarted()

	s := newSupervisor(t, bus, []string{"sh", "-c", "exit 3"})
	require.NoError(t, s.Start(t.Context()))
	receive(t, started)

	evt := receive(t, stopped)
	require.Equal(t, 3, evt.ExitCode)
	require.NotEmpty(t, evt.Error)

	require.Eventually(t, func() bool { return !s.Running() }, time.Second, 5*time.Millisecond)
	select {
	case <-started:
		t.Fatal("crashed process must not be restarted")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestTerminate_EscalatesToKillAfterGracePeriod(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	s := newSupervisor(t, bus, []string{"sh", "-c", `trap "" TERM; exec sleep 30`})
	require.NoError(t, s.Start(t.Context()))
	time.Sleep(50 * time.Millisecond) // let the shell install the trap

	begin := time.Now()
	s.Stop()
	require.GreaterOrEqual(t, time.Since(begin), 200*time.Millisecond)
	require.False(t, s.Running())
}

func TestRun_RestartsOnlyAfterSuccessfulRelevantRebuild(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	started, unsub := events.Subscribe[events.ProcessStarted](bus, 8)
	defer unsub()

	s := newSupervisor(t, bus, []string{"sleep", "30"}, WithRestartOn("js", "html"))
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	first := receive(t, started)
	require.False(t, first.Restart)

	publish := func(evt events.RebuildCompleted) {
		require.Eventually(t, func() bool {
			return events.SubscriberCount[events.RebuildCompleted](bus) == 1
		}, time.Second, time.Millisecond)
		require.NoError(t, bus.Publish(t.Context(), evt))
	}

	publish(events.RebuildCompleted{Task: "js", Succeeded: false, Error: "bundle failed"})
	publish(events.RebuildCompleted{Task: "styles", Succeeded: true})
	select {
	case evt := <-started:
		t.Fatalf("unexpected restart: %+v", evt)
	case <-time.After(150 * time.Millisecond):
	}
	require.Equal(t, first.PID, s.PID())

	publish(events.RebuildCompleted{Task: "js", Succeeded: true})
	second := receive(t, started)
	require.True(t, second.Restart)
	require.NotEqual(t, first.PID, second.PID)

	cancel()
	require.NoError(t, <-done)
	require.False(t, s.Running())
}

func TestRun_CrashedProcessStartsAgainOnNextSuccessfulRebuild(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	started, unsub := events.Subscribe[events.ProcessStarted](bus, 8)
	defer unsub()
	stopped, unsubStopped := events.Subscribe[events.ProcessStopped](bus, 8)
	defer unsubStopped()

	s := newSupervisor(t, bus, []string{"sh", "-c", "sleep 0.1; exit 1"})
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	receive(t, started)
	receive(t, stopped)
	require.False(t, s.Running())

	require.NoError(t, bus.Publish(t.Context(), events.RebuildCompleted{Task: "anything", Succeeded: true}))
	again := receive(t, started)
	require.False(t, again.Restart, "nothing was running to restart")
}

func TestRun_RequiresBus(t *testing.T) {
	s, err := New(Command{Argv: []string{"sleep", "1"}})
	require.NoError(t, err)
	require.Error(t, s.Run(t.Context()))
}

func TestRelevant(t *testing.T) {
	s, err := New(Command{Argv: []string{"node"}})
	require.NoError(t, err)
	require.True(t, s.Relevant("anything"))

	s, err = New(Command{Argv: []string{"node"}}, WithRestartOn("js"))
	require.NoError(t, err)
	require.True(t, s.Relevant("js"))
	require.False(t, s.Relevant("styles"))
}

func TestEnvList(t *testing.T) {
	require.Equal(t, []string{"A=1", "PORT=8080"}, envList(map[string]string{"PORT": "8080", "A": "1"}))
}
