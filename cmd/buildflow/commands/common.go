package commands

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/buildflow/internal/config"
	"git.home.luguber.info/inful/buildflow/internal/logfields"
	"git.home.luguber.info/inful/buildflow/internal/pipeline"
	"git.home.luguber.info/inful/buildflow/internal/revision"
	"git.home.luguber.info/inful/buildflow/internal/transform"
)

// LogLevelEnv overrides the log level chosen by --verbose.
const LogLevelEnv = "BUILDFLOW_LOG_LEVEL"

// Global is shared state passed to every command.
type Global struct {
	Logger *slog.Logger
	Out    io.Writer // user-facing output; stdout when nil

	// commands overrides the external command runner (tests).
	commands transform.CommandRunner
}

func (g *Global) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"buildflow.yaml" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run     RunCmd     `cmd:"" default:"withargs" help:"Run a task (the default task when none is named), then watch and serve"`
	List    ListCmd    `cmd:"" help:"List registered tasks"`
	Graph   GraphCmd   `cmd:"" help:"Visualize the task graph (text, mermaid, dot, json)"`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`
	History HistoryCmd `cmd:"" help:"Show recent task runs from the history journal"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	if v, ok := parseLevel(os.Getenv(LogLevelEnv)); ok {
		level = v
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}

// project bundles everything derived from the configuration file.
type project struct {
	cfg      *config.Config
	revision revision.Revision
	build    *config.BuildConfig
	plan     *pipeline.Plan
}

// loadProject loads the configuration, resolves the source revision, freezes the
// build policy and builds the task graph.
func loadProject(g *Global, configPath string, overrides config.Overrides) (*project, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	rev, err := revision.Resolve(cfg.ResolvePath(cfg.Revision.Repository), cfg.Revision.Fallback)
	if err != nil {
		slog.Warn("Failed to read source revision; using fallback",
			logfields.Revision(cfg.Revision.Fallback), logfields.Error(err))
		rev = revision.Fallback(cfg.Revision.Fallback)
	}

	build := config.NewBuildConfig(cfg, overrides.Apply(cfg.Build), rev.Full, rev.Short)

	builder := pipeline.NewPlanBuilder(cfg, build)
	if g != nil && g.commands != nil {
		builder = builder.WithCommandRunner(g.commands)
	}
	plan, err := builder.Build()
	if err != nil {
		return nil, err
	}
	return &project{cfg: cfg, revision: rev, build: build, plan: plan}, nil
}
