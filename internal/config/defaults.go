package config

import "time"

const (
	DefaultTaskName    = "default"
	DefaultDebounce    = 300 * time.Millisecond
	DefaultGracePeriod = 5 * time.Second
	DefaultSubject     = "buildflow.events"
	DefaultFallbackRev = "dev"
)

// applyDefaults fills in zero values. It runs before validation.
func applyDefaults(cfg *Config) {
	if cfg.Version == "" {
		cfg.Version = CurrentVersion
	}
	if cfg.Source == "" {
		cfg.Source = "."
	}
	if cfg.Output.Directory == "" {
		cfg.Output.Directory = "build"
	}
	if cfg.Default == "" {
		cfg.Default = DefaultTaskName
	}
	if cfg.Revision.Repository == "" {
		cfg.Revision.Repository = "."
	}
	if cfg.Revision.Fallback == "" {
		cfg.Revision.Fallback = DefaultFallbackRev
	}
	if cfg.Watch.Debounce == "" {
		cfg.Watch.Debounce = DefaultDebounce.String()
	}
	if cfg.DevServer != nil && cfg.DevServer.GracePeriod == "" {
		cfg.DevServer.GracePeriod = DefaultGracePeriod.String()
	}
	if cfg.Notify.NATSURL != "" && cfg.Notify.Subject == "" {
		cfg.Notify.Subject = DefaultSubject
	}
	for name, fs := range cfg.FileSets {
		if fs.Base == "" {
			fs.Base = cfg.Source
			cfg.FileSets[name] = fs
		}
	}
}

// DebounceDuration returns the parsed debounce window.
func (w WatchConfig) DebounceDuration() time.Duration {
	d, err := time.ParseDuration(w.Debounce)
	if err != nil || d <= 0 {
		return DefaultDebounce
	}
	return d
}

// GracePeriodDuration returns the parsed termination grace period.
func (d DevServerConfig) GracePeriodDuration() time.Duration {
	p, err := time.ParseDuration(d.GracePeriod)
	if err != nil || p <= 0 {
		return DefaultGracePeriod
	}
	return p
}
