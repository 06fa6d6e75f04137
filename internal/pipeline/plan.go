// Package pipeline turns a loaded configuration into an executable plan: resolved
// filesets, a validated task registry, watch bindings and the dev process command.
package pipeline

import (
	"sort"

	"git.home.luguber.info/inful/buildflow/internal/config"
	"git.home.luguber.info/inful/buildflow/internal/fileset"
	ferrors "git.home.luguber.info/inful/buildflow/internal/foundation/errors"
	"git.home.luguber.info/inful/buildflow/internal/supervisor"
	"git.home.luguber.info/inful/buildflow/internal/task"
	"git.home.luguber.info/inful/buildflow/internal/transform"
	"git.home.luguber.info/inful/buildflow/internal/watch"
)

// Plan is immutable once built.
type Plan struct {
	Config   *config.Config
	Build    *config.BuildConfig
	FileSets map[string]fileset.FileSet
	Registry *task.Registry
	Bindings []watch.Binding

	// DevServer is nil when no dev process is configured.
	DevServer *supervisor.Command
	RestartOn []string
}

// PlanBuilder constructs a Plan from configuration.
type PlanBuilder struct {
	cfg    *config.Config
	build  *config.BuildConfig
	runner transform.CommandRunner
}

// NewPlanBuilder creates a builder for cfg under the frozen build policy.
func NewPlanBuilder(cfg *config.Config, build *config.BuildConfig) *PlanBuilder {
	return &PlanBuilder{cfg: cfg, build: build, runner: transform.OSCommandRunner{}}
}

// WithCommandRunner replaces the runner used by exec-based transforms.
func (b *PlanBuilder) WithCommandRunner(r transform.CommandRunner) *PlanBuilder {
	b.runner = r
	return b
}

// Build resolves filesets, registers every task atomically and derives bindings.
// Graph errors (unknown child, cycle) are returned as the registry's typed errors.
func (b *PlanBuilder) Build() (*Plan, error) {
	plan := &Plan{
		Config:   b.cfg,
		Build:    b.build,
		FileSets: make(map[string]fileset.FileSet, len(b.cfg.FileSets)),
		Registry: task.NewRegistry(),
	}

	for name, fc := range b.cfg.FileSets {
		fs, err := fileset.New(name, b.cfg.ResolvePath(fc.Base), fc.Include, fc.Exclude)
		if err != nil {
			return nil, err
		}
		plan.FileSets[name] = fs
	}

	names := make([]string, 0, len(b.cfg.Tasks))
	for name := range b.cfg.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	batch := make([]task.Task, 0, len(names))
	for _, name := range names {
		tc := b.cfg.Tasks[name]
		def, err := b.definition(name, tc, plan.FileSets)
		if err != nil {
			return nil, err
		}
		batch = append(batch, task.Task{Name: name, Description: tc.Description, Def: def})
	}
	if err := plan.Registry.RegisterAll(batch); err != nil {
		return nil, err
	}

	for _, wb := range b.cfg.Watch.Bindings {
		fs, ok := plan.FileSets[wb.FileSet]
		if !ok {
			return nil, ferrors.ValidationError("watch binding references unknown fileset").
				WithContext("fileset", wb.FileSet).
				Build()
		}
		plan.Bindings = append(plan.Bindings, watch.Binding{FileSet: fs, Task: wb.Task})
	}

	if ds := b.cfg.DevServer; ds != nil {
		dir := ds.Dir
		if dir == "" {
			dir = "."
		}
		plan.DevServer = &supervisor.Command{
			Argv:        ds.Command,
			Dir:         b.cfg.ResolvePath(dir),
			Env:         ds.Env,
			GracePeriod: ds.GracePeriodDuration(),
		}
		plan.RestartOn = ds.RestartOn
	}
	return plan, nil
}

func (b *PlanBuilder) definition(name string, tc config.TaskConfig, filesets map[string]fileset.FileSet) (task.Definition, error) {
	switch tc.Kind() {
	case config.TaskKindSeries:
		return task.Series{Children: tc.Series}, nil
	case config.TaskKindParallel:
		return task.Parallel{Children: tc.Parallel}, nil
	case config.TaskKindLeaf:
		var inputs *fileset.FileSet
		if tc.FileSet != "" {
			fs, ok := filesets[tc.FileSet]
			if !ok {
				return nil, ferrors.ValidationError("task references unknown fileset").
					WithContext("task", name).
					WithContext("fileset", tc.FileSet).
					Build()
			}
			inputs = &fs
		}
		tr, err := b.transform(name, tc, inputs)
		if err != nil {
			return nil, err
		}
		return task.Leaf{Transform: tr, Inputs: inputs}, nil
	default:
		return nil, ferrors.ValidationError("task must declare exactly one of transform, series or parallel").
			WithContext("task", name).
			Build()
	}
}

// WatchRoots returns the base directories of every bound fileset.
func (p *Plan) WatchRoots() []string {
	seen := make(map[string]bool, len(p.Bindings))
	var roots []string
	for _, b := range p.Bindings {
		if !seen[b.FileSet.Base] {
			seen[b.FileSet.Base] = true
			roots = append(roots, b.FileSet.Base)
		}
	}
	sort.Strings(roots)
	return roots
}

// DefaultTask is the task run when none is named on the command line.
func (p *Plan) DefaultTask() string { return p.Config.Default }
