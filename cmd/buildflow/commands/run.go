package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/buildflow/internal/config"
	"git.home.luguber.info/inful/buildflow/internal/events"
	"git.home.luguber.info/inful/buildflow/internal/history"
	"git.home.luguber.info/inful/buildflow/internal/logfields"
	"git.home.luguber.info/inful/buildflow/internal/metrics"
	"git.home.luguber.info/inful/buildflow/internal/notify"
	"git.home.luguber.info/inful/buildflow/internal/runner"
	"git.home.luguber.info/inful/buildflow/internal/supervisor"
	"git.home.luguber.info/inful/buildflow/internal/watch"
)

// RunCmd implements the default 'run' command: build the task, then (unless
// --no-watch) keep rebuilding bound filesets and supervising the dev process.
type RunCmd struct {
	Task        string `arg:"" optional:"" help:"Task to run (defaults to the configured default task)"`
	Watch       bool   `help:"Watch bound filesets and supervise the dev process after the build" default:"true" negatable:""`
	Debug       bool   `help:"Debug build: readable output, debug tool arguments" xor:"mode"`
	Release     bool   `help:"Release build: compact output, release tool arguments" xor:"mode"`
	NoStrip     bool   `name:"no-strip" help:"Skip image metadata stripping"`
	NoRename    bool   `name:"no-rename" help:"Do not emit revision-suffixed copies of outputs"`
	MetricsAddr string `name:"metrics-addr" help:"Serve Prometheus metrics on this address (overrides metrics.listen)"`
}

func (r *RunCmd) overrides() config.Overrides {
	var o config.Overrides
	switch {
	case r.Debug:
		o.Debug = boolPtr(true)
	case r.Release:
		o.Debug = boolPtr(false)
	}
	if r.NoStrip {
		o.StripMetadata = boolPtr(false)
	}
	if r.NoRename {
		o.RenameWithVersionSuffix = boolPtr(false)
	}
	return o
}

func boolPtr(b bool) *bool { return &b }

func (r *RunCmd) Run(g *Global, root *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return r.run(ctx, g, root)
}

func (r *RunCmd) run(ctx context.Context, g *Global, root *CLI) error {
	p, err := loadProject(g, root.Config, r.overrides())
	if err != nil {
		return err
	}
	slog.Info("Starting build",
		logfields.Revision(p.revision.Short),
		slog.Bool("debug", p.build.Debug),
		slog.String("output", p.build.OutputDir))

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if addr := firstNonEmpty(r.MetricsAddr, p.cfg.Metrics.Listen); addr != "" {
		reg := prometheus.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(reg)
		stop := serveMetrics(addr, reg)
		defer stop()
	}

	opts := []runner.Option{runner.WithRecorder(recorder)}
	if p.cfg.History.Path != "" {
		store, err := openHistory(p.cfg.ResolvePath(p.cfg.History.Path))
		if err != nil {
			slog.Warn("History journal unavailable", logfields.Error(err))
		} else {
			defer func() { _ = store.Close() }()
			opts = append(opts, runner.WithJournal(store))
		}
	}
	rn := runner.New(p.plan.Registry, p.build, opts...)

	name := r.Task
	if name == "" {
		name = p.plan.DefaultTask()
	}
	start := time.Now()
	if err := rn.Run(ctx, name); err != nil {
		return err
	}
	slog.Info("Build finished", logfields.Task(name), logfields.Duration(time.Since(start)))

	if !r.Watch || (len(p.plan.Bindings) == 0 && p.plan.DevServer == nil) {
		return nil
	}
	return r.serve(ctx, p.plan.Bindings, p, rn, recorder)
}

// serve runs the watch engine, the dev process supervisor and the notifier until ctx ends.
func (r *RunCmd) serve(ctx context.Context, bindings []watch.Binding, p *project, rn *runner.Runner, recorder metrics.Recorder) error {
	bus := events.NewBus()
	defer bus.Close()

	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if url := p.cfg.Notify.NATSURL; url != "" {
		n, err := notify.Connect(url, p.cfg.Notify.Subject, slog.Default())
		if err != nil {
			slog.Warn("Notifications disabled", logfields.Error(err))
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = n.Run(ctx, bus)
			}()
		}
	}

	if p.plan.DevServer != nil {
		sup, err := supervisor.New(*p.plan.DevServer,
			supervisor.WithRestartOn(p.plan.RestartOn...),
			supervisor.WithBus(bus),
			supervisor.WithRecorder(recorder))
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sup.Run(ctx); err != nil {
				slog.Error("Dev process supervisor stopped", logfields.Error(err))
			}
		}()
	}

	if len(bindings) > 0 {
		src, err := watch.NewFSNotifySource(p.plan.WatchRoots()...)
		if err != nil {
			return err
		}
		engine := watch.NewEngine(rn, p.plan.Registry,
			watch.WithDebounce(p.cfg.Watch.DebounceDuration()),
			watch.WithBus(bus),
			watch.WithRecorder(recorder))
		handle, err := engine.Start(ctx, bindings, src)
		if err != nil {
			_ = src.Close()
			return err
		}
		defer handle.Stop()
	}

	<-ctx.Done()
	slog.Info("Shutting down")
	return nil
}

func openHistory(path string) (*history.SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, err
		}
	}
	return history.Open(path)
}

func serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		slog.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", logfields.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
