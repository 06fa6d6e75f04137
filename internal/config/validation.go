package config

import (
	"slices"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	ferrors "git.home.luguber.info/inful/buildflow/internal/foundation/errors"
)

// Validate checks the structural consistency of a configuration.
// Task graph references (children, bindings to tasks) are checked by the task
// registry and watch engine, which report them with their own typed errors.
func Validate(cfg *Config) error {
	v := &configurationValidator{config: cfg}
	return v.validate()
}

type configurationValidator struct {
	config *Config
}

func (cv *configurationValidator) validate() error {
	if cv.config.Output.Directory == "" {
		return ferrors.ValidationError("output directory is required").Build()
	}
	if err := cv.validateFileSets(); err != nil {
		return err
	}
	if err := cv.validateTasks(); err != nil {
		return err
	}
	if err := cv.validateWatch(); err != nil {
		return err
	}
	return cv.validateDevServer()
}

func (cv *configurationValidator) validateFileSets() error {
	for _, name := range sortedKeys(cv.config.FileSets) {
		fs := cv.config.FileSets[name]
		if len(fs.Include) == 0 {
			return ferrors.ValidationError("fileset has no include patterns").
				WithContext("fileset", name).
				Build()
		}
		for _, p := range slices.Concat(fs.Include, fs.Exclude) {
			if !doublestar.ValidatePattern(p) {
				return ferrors.ValidationError("invalid glob pattern").
					WithContext("fileset", name).
					WithContext("pattern", p).
					Build()
			}
		}
	}
	return nil
}

// ReservedTaskNames are the CLI command names. A task with one of these names
// could not be selected as a bare positional argument.
var ReservedTaskNames = []string{"graph", "history", "init", "list", "run"}

// IsReservedTaskName reports whether name collides with a CLI command.
func IsReservedTaskName(name string) bool {
	return slices.Contains(ReservedTaskNames, name)
}

func (cv *configurationValidator) validateTasks() error {
	for _, name := range sortedKeys(cv.config.Tasks) {
		t := cv.config.Tasks[name]
		if name == "" {
			return ferrors.ValidationError("task name cannot be empty").Build()
		}
		if IsReservedTaskName(name) {
			return ferrors.ValidationError("task name is reserved for a CLI command").
				WithContext("task", name).
				Build()
		}
		if t.Kind() == TaskKindInvalid {
			return ferrors.ValidationError("task must declare exactly one of transform, series or parallel").
				WithContext("task", name).
				Build()
		}
		if t.FileSet != "" {
			if _, ok := cv.config.FileSets[t.FileSet]; !ok {
				return ferrors.ValidationError("task references unknown fileset").
					WithContext("task", name).
					WithContext("fileset", t.FileSet).
					Build()
			}
		}
		switch t.Failure {
		case "", "lint", "compile":
		default:
			return ferrors.ValidationError("failure must be lint or compile").
				WithContext("task", name).
				WithContext("failure", t.Failure).
				Build()
		}
	}
	return nil
}

func (cv *configurationValidator) validateWatch() error {
	if d, err := time.ParseDuration(cv.config.Watch.Debounce); err != nil || d <= 0 {
		return ferrors.ValidationError("watch.debounce must be a positive duration").
			WithContext("debounce", cv.config.Watch.Debounce).
			Build()
	}
	for _, b := range cv.config.Watch.Bindings {
		if b.Task == "" {
			return ferrors.ValidationError("watch binding requires a task").
				WithContext("fileset", b.FileSet).
				Build()
		}
		if _, ok := cv.config.FileSets[b.FileSet]; !ok {
			return ferrors.ValidationError("watch binding references unknown fileset").
				WithContext("fileset", b.FileSet).
				WithContext("task", b.Task).
				Build()
		}
	}
	return nil
}

func (cv *configurationValidator) validateDevServer() error {
	ds := cv.config.DevServer
	if ds == nil {
		return nil
	}
	if len(ds.Command) == 0 || ds.Command[0] == "" {
		return ferrors.ValidationError("dev_server.command is required").Build()
	}
	if d, err := time.ParseDuration(ds.GracePeriod); err != nil || d <= 0 {
		return ferrors.ValidationError("dev_server.grace_period must be a positive duration").
			WithContext("grace_period", ds.GracePeriod).
			Build()
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
