package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/buildflow/internal/foundation/errors"
)

// CurrentVersion is the only configuration schema version understood by Load.
const CurrentVersion = "1"

// Config represents the buildflow project configuration file.
type Config struct {
	Version   string                   `yaml:"version"`
	Source    string                   `yaml:"source"`
	Output    OutputConfig             `yaml:"output"`
	Build     BuildOptions             `yaml:"build"`
	Revision  RevisionConfig           `yaml:"revision"`
	FileSets  map[string]FileSetConfig `yaml:"filesets"`
	Tasks     map[string]TaskConfig    `yaml:"tasks"`
	Default   string                   `yaml:"default"`
	Watch     WatchConfig              `yaml:"watch"`
	DevServer *DevServerConfig         `yaml:"dev_server,omitempty"`
	Metrics   MetricsConfig            `yaml:"metrics,omitempty"`
	History   HistoryConfig            `yaml:"history,omitempty"`
	Notify    NotifyConfig             `yaml:"notify,omitempty"`

	// baseDir is the directory relative paths are resolved against (the config file's directory).
	baseDir string
}

// OutputConfig represents the build output root.
type OutputConfig struct {
	Directory string `yaml:"directory"`
	Clean     bool   `yaml:"clean"` // Remove the output root in the clean transform
}

// BuildOptions holds the policy toggles threaded into every transform.
type BuildOptions struct {
	Debug                   bool `yaml:"debug"`
	Obfuscate               bool `yaml:"obfuscate"`
	RenameWithVersionSuffix bool `yaml:"rename_with_version_suffix"`
	StripMetadata           bool `yaml:"strip_metadata"`
}

// RevisionConfig controls how the source revision is discovered.
type RevisionConfig struct {
	Repository string `yaml:"repository"` // Path inside the git work tree
	Fallback   string `yaml:"fallback"`   // Used when no repository is found
}

// FileSetConfig is a named group of glob patterns rooted at Base.
type FileSetConfig struct {
	Base    string   `yaml:"base"`
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// TaskConfig declares a task. Exactly one of Transform, Series or Parallel is set.
type TaskConfig struct {
	Description string   `yaml:"description,omitempty"`
	Transform   string   `yaml:"transform,omitempty"`
	Series      []string `yaml:"series,omitempty"`
	Parallel    []string `yaml:"parallel,omitempty"`

	// Transform parameters; which ones apply depends on the transform kind.
	FileSet       string   `yaml:"fileset,omitempty"`
	Dest          string   `yaml:"dest,omitempty"`
	Command       []string `yaml:"command,omitempty"`
	PerFile       bool     `yaml:"per_file,omitempty"`
	DebugArgs     []string `yaml:"debug_args,omitempty"`
	ReleaseArgs   []string `yaml:"release_args,omitempty"`
	ObfuscateArgs []string `yaml:"obfuscate_args,omitempty"`
	OutputExt     string   `yaml:"output_ext,omitempty"`
	Outputs       []string `yaml:"outputs,omitempty"`
	Failure       string   `yaml:"failure,omitempty"` // lint|compile
	Versioned     bool     `yaml:"versioned,omitempty"`
	File          string   `yaml:"file,omitempty"` // version-stamp target
	Template      string   `yaml:"template,omitempty"`
}

// TaskKind reports the structural kind of a task declaration.
type TaskKind string

const (
	TaskKindLeaf     TaskKind = "leaf"
	TaskKindSeries   TaskKind = "series"
	TaskKindParallel TaskKind = "parallel"
	TaskKindInvalid  TaskKind = ""
)

// Kind returns the declared kind, or TaskKindInvalid when zero or several are set.
func (t TaskConfig) Kind() TaskKind {
	set := 0
	kind := TaskKindInvalid
	if t.Transform != "" {
		set++
		kind = TaskKindLeaf
	}
	if len(t.Series) > 0 {
		set++
		kind = TaskKindSeries
	}
	if len(t.Parallel) > 0 {
		set++
		kind = TaskKindParallel
	}
	if set != 1 {
		return TaskKindInvalid
	}
	return kind
}

// Children returns the child task names of a composite declaration.
func (t TaskConfig) Children() []string {
	switch t.Kind() {
	case TaskKindSeries:
		return t.Series
	case TaskKindParallel:
		return t.Parallel
	default:
		return nil
	}
}

// WatchConfig configures the watch engine.
type WatchConfig struct {
	Debounce string         `yaml:"debounce"`
	Bindings []WatchBinding `yaml:"bindings"`
}

// WatchBinding subscribes a fileset's changes to a task re-run.
type WatchBinding struct {
	FileSet string `yaml:"fileset"`
	Task    string `yaml:"task"`
}

// DevServerConfig describes the long-running development process.
type DevServerConfig struct {
	Command     []string          `yaml:"command"`
	Dir         string            `yaml:"dir,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"`
	RestartOn   []string          `yaml:"restart_on,omitempty"` // task names; empty means every watched task
	GracePeriod string            `yaml:"grace_period,omitempty"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// HistoryConfig enables the SQLite run journal.
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"`
}

// NotifyConfig enables NATS notifications.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// Load loads, defaults and validates the configuration file at configPath.
func Load(configPath string) (*Config, error) {
	loadEnvFiles(filepath.Dir(configPath))

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.ConfigError("configuration file not found").
				WithContext("path", configPath).
				Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").
			WithContext("path", configPath).
			Build()
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(filepath.Dir(configPath))
	if err != nil {
		return nil, fmt.Errorf("resolve config directory: %w", err)
	}
	cfg.baseDir = abs
	return cfg, nil
}

// Parse decodes YAML content (after environment expansion), applies defaults and validates.
// Relative paths resolve against the working directory until SetBaseDir is called.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to unmarshal config").Build()
	}
	if cfg.Version != "" && cfg.Version != CurrentVersion {
		return nil, ferrors.ConfigError("unsupported configuration version").
			WithContext("version", cfg.Version).
			WithContext("expected", CurrentVersion).
			Build()
	}

	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetBaseDir sets the directory relative paths are resolved against.
func (c *Config) SetBaseDir(dir string) { c.baseDir = dir }

// ResolvePath makes p absolute relative to the configuration directory.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	base := c.baseDir
	if base == "" {
		if wd, err := os.Getwd(); err == nil {
			base = wd
		}
	}
	return filepath.Join(base, p)
}

// OutputDir returns the absolute build output root.
func (c *Config) OutputDir() string { return c.ResolvePath(c.Output.Directory) }

// SourceDir returns the absolute source root.
func (c *Config) SourceDir() string { return c.ResolvePath(c.Source) }
