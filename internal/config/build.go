package config

// BuildConfig is the process-wide build policy resolved once at startup.
// It is shared by pointer with every transform invocation and must be treated
// as read-only after NewBuildConfig returns.
type BuildConfig struct {
	Debug                   bool
	Obfuscate               bool
	RenameWithVersionSuffix bool
	StripMetadata           bool

	// VersionTag is the abbreviated source revision; FullRevision the complete one.
	VersionTag   string
	FullRevision string

	SourceDir string
	OutputDir string
	CleanOut  bool
}

// Overrides carries command-line adjustments to the configured build options.
// Nil fields leave the configured value untouched.
type Overrides struct {
	Debug                   *bool
	RenameWithVersionSuffix *bool
	StripMetadata           *bool
}

// Apply returns opts with the non-nil overrides applied.
func (o Overrides) Apply(opts BuildOptions) BuildOptions {
	if o.Debug != nil {
		opts.Debug = *o.Debug
	}
	if o.RenameWithVersionSuffix != nil {
		opts.RenameWithVersionSuffix = *o.RenameWithVersionSuffix
	}
	if o.StripMetadata != nil {
		opts.StripMetadata = *o.StripMetadata
	}
	return opts
}

// NewBuildConfig freezes the effective build policy for a run.
// Obfuscation only applies to release builds.
func NewBuildConfig(cfg *Config, opts BuildOptions, fullRevision, shortRevision string) *BuildConfig {
	return &BuildConfig{
		Debug:                   opts.Debug,
		Obfuscate:               opts.Obfuscate && !opts.Debug,
		RenameWithVersionSuffix: opts.RenameWithVersionSuffix,
		StripMetadata:           opts.StripMetadata,
		VersionTag:              shortRevision,
		FullRevision:            fullRevision,
		SourceDir:               cfg.SourceDir(),
		OutputDir:               cfg.OutputDir(),
		CleanOut:                cfg.Output.Clean,
	}
}

// Minify reports whether compaction steps (minify, compress) are enabled.
func (b *BuildConfig) Minify() bool { return !b.Debug }
