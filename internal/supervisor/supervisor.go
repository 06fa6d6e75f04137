// Package supervisor keeps the development server process in step with rebuilds.
//
// The process is restarted only after a successful rebuild of a relevant task.
// When the process exits on its own the supervisor reports it as stopped and waits
// for the next qualifying rebuild instead of restarting it.
package supervisor

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"git.home.luguber.info/inful/buildflow/internal/events"
	ferrors "git.home.luguber.info/inful/buildflow/internal/foundation/errors"
	"git.home.luguber.info/inful/buildflow/internal/logfields"
	"git.home.luguber.info/inful/buildflow/internal/metrics"
)

// DefaultGracePeriod is how long a process may take to exit after SIGTERM.
const DefaultGracePeriod = 5 * time.Second

// Command describes the supervised process.
type Command struct {
	Argv        []string
	Dir         string
	Env         map[string]string
	GracePeriod time.Duration
}

// Supervisor owns at most one running instance of Command.
type Supervisor struct {
	cmd       Command
	restartOn map[string]bool
	bus       *events.Bus
	recorder  metrics.Recorder
	logger    *slog.Logger
	stdout    io.Writer
	stderr    io.Writer

	mu   sync.Mutex
	ctx  context.Context
	proc *process
}

type process struct {
	cmd      *exec.Cmd
	done     chan struct{}
	stopping atomic.Bool
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithRestartOn limits restarts to rebuilds of the named tasks. Empty means any task.
func WithRestartOn(tasks ...string) Option {
	return func(s *Supervisor) {
		for _, t := range tasks {
			s.restartOn[t] = true
		}
	}
}

func WithBus(b *events.Bus) Option           { return func(s *Supervisor) { s.bus = b } }
func WithRecorder(r metrics.Recorder) Option { return func(s *Supervisor) { s.recorder = r } }
func WithLogger(l *slog.Logger) Option       { return func(s *Supervisor) { s.logger = l } }

// WithOutput redirects the child's stdout and stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(s *Supervisor) { s.stdout, s.stderr = stdout, stderr }
}

func New(cmd Command, opts ...Option) (*Supervisor, error) {
	if len(cmd.Argv) == 0 || cmd.Argv[0] == "" {
		return nil, ferrors.ValidationError("dev process command is required").Build()
	}
	if cmd.GracePeriod <= 0 {
		cmd.GracePeriod = DefaultGracePeriod
	}
	s := &Supervisor{
		cmd:       cmd,
		restartOn: make(map[string]bool),
		recorder:  metrics.NoopRecorder{},
		logger:    slog.Default(),
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		ctx:       context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Relevant reports whether a rebuild of taskName should restart the process.
func (s *Supervisor) Relevant(taskName string) bool {
	return len(s.restartOn) == 0 || s.restartOn[taskName]
}

// Start spawns the process unless one is already running.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	if s.runningLocked() {
		return nil
	}
	return s.spawnLocked(false)
}

// Restart terminates the running process, if any, and spawns a new one.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	wasRunning := s.runningLocked()
	s.terminateLocked()
	if err := s.spawnLocked(wasRunning); err != nil {
		return err
	}
	s.recorder.IncProcessRestart()
	return nil
}

// Stop terminates the running process. It does not emit a stopped notification.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminateLocked()
}

// Running reports whether a process is alive.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

// PID returns the pid of the running process, or 0.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.runningLocked() {
		return 0
	}
	return s.proc.cmd.Process.Pid
}

// Run starts the process and restarts it after every successful relevant rebuild
// published on the bus, until ctx is canceled. The process is stopped on return.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.bus == nil {
		return ferrors.ValidationError("supervisor requires an event bus").Build()
	}
	rebuilds, unsubscribe := events.Subscribe[events.RebuildCompleted](s.bus, 16)
	defer unsubscribe()
	defer s.Stop()

	if err := s.Start(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-rebuilds:
			if !ok {
				return nil
			}
			if !evt.Succeeded {
				s.logger.Info("Rebuild failed; dev process left as is", logfields.Task(evt.Task))
				continue
			}
			if !s.Relevant(evt.Task) {
				continue
			}
			if err := s.Restart(ctx); err != nil {
				s.logger.Error("Failed to restart dev process", logfields.Error(err))
			}
		}
	}
}

func (s *Supervisor) runningLocked() bool {
	if s.proc == nil {
		return false
	}
	select {
	case <-s.proc.done:
		return false
	default:
		return true
	}
}

func (s *Supervisor) spawnLocked(restart bool) error {
	// #nosec G204 -- the command comes from the project configuration
	cmd := exec.Command(s.cmd.Argv[0], s.cmd.Argv[1:]...)
	cmd.Dir = s.cmd.Dir
	cmd.Env = append(os.Environ(), envList(s.cmd.Env)...)
	cmd.Stdout = s.stdout
	cmd.Stderr = s.stderr
	cmd.WaitDelay = s.cmd.GracePeriod

	if err := cmd.Start(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryProcess, "failed to start dev process").
			WithContext("command", strings.Join(s.cmd.Argv, " ")).
			Build()
	}

	p := &process{cmd: cmd, done: make(chan struct{})}
	s.proc = p
	ctx := s.ctx
	go s.wait(ctx, p)

	s.logger.Info("Dev process started",
		logfields.PID(cmd.Process.Pid),
		logfields.Command(strings.Join(s.cmd.Argv, " ")))
	if err := s.bus.Publish(ctx, events.ProcessStarted{
		PID:       cmd.Process.Pid,
		Command:   slices.Clone(s.cmd.Argv),
		Restart:   restart,
		StartedAt: time.Now(),
	}); err != nil && ctx.Err() == nil {
		s.logger.Warn("Failed to publish process start", logfields.Error(err))
	}
	return nil
}

// wait reaps the process and reports exits the supervisor did not ask for.
func (s *Supervisor) wait(ctx context.Context, p *process) {
	err := p.cmd.Wait()
	close(p.done)
	if p.stopping.Load() {
		return
	}

	code := p.cmd.ProcessState.ExitCode()
	evt := events.ProcessStopped{PID: p.cmd.Process.Pid, ExitCode: code, StoppedAt: time.Now()}
	if err != nil {
		evt.Error = err.Error()
	}

	s.logger.Warn("Dev process stopped; waiting for next successful rebuild",
		logfields.PID(evt.PID),
		slog.Int("exit_code", code))
	s.recorder.IncProcessStop(code)
	if perr := s.bus.Publish(ctx, evt); perr != nil && ctx.Err() == nil {
		s.logger.Warn("Failed to publish process stop", logfields.Error(perr))
	}
}

// terminateLocked sends SIGTERM, escalating to SIGKILL after the grace period.
func (s *Supervisor) terminateLocked() {
	p := s.proc
	s.proc = nil
	if p == nil {
		return
	}
	p.stopping.Store(true)
	select {
	case <-p.done:
		return
	default:
	}

	pid := p.cmd.Process.Pid
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		_ = p.cmd.Process.Kill()
	}
	select {
	case <-p.done:
	case <-time.After(s.cmd.GracePeriod):
		s.logger.Warn("Dev process ignored SIGTERM; killing", logfields.PID(pid))
		_ = p.cmd.Process.Kill()
		<-p.done
	}
	s.logger.Debug("Dev process terminated", logfields.PID(pid))
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		out = append(out, k+"="+env[k])
	}
	return out
}
