package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ExampleConfig returns the reference project pipeline: clean, then html, vendor
// copy, lint, styles, the script chain (version stamp, lint, bundle) and the
// image chain (copy, metadata strip) side by side.
func ExampleConfig() *Config {
	cfg := &Config{
		Version: CurrentVersion,
		Source:  "src",
		Output:  OutputConfig{Directory: "build", Clean: true},
		Build: BuildOptions{
			Debug:                   false,
			Obfuscate:               true,
			RenameWithVersionSuffix: true,
			StripMetadata:           true,
		},
		Revision: RevisionConfig{Repository: ".", Fallback: DefaultFallbackRev},
		FileSets: map[string]FileSetConfig{
			"html":    {Base: "src", Include: []string{"*.html"}},
			"vendor":  {Base: "vendor", Include: []string{"**/*.js", "**/*.css"}},
			"tooling": {Base: ".", Include: []string{"server/**/*.js", "*.config.js"}},
			"styles":  {Base: "src/scss", Include: []string{"**/*.scss"}, Exclude: []string{"**/_*.scss"}},
			"scripts": {Base: "src/js", Include: []string{"**/*.js"}},
			"script-sources": {
				Base:    "src/js",
				Include: []string{"**/*.js"},
				Exclude: []string{"version.js"},
			},
			"images": {Base: "src/img", Include: []string{"**/*.{png,jpg,jpeg,gif,svg,ico}"}},
			"built-images": {
				Base:    "build/img",
				Include: []string{"**/*.{png,jpg,jpeg}"},
				Exclude: []string{"**/icons/**", "**/*.ico", "**/favicon*"},
			},
		},
		Tasks: map[string]TaskConfig{
			"clean": {Transform: "clean", Description: "Remove the build output root"},
			"html":  {Transform: "html", FileSet: "html"},
			"vendor": {
				Transform: "copy",
				FileSet:   "vendor",
				Dest:      "vendor",
			},
			"lint": {
				Transform: "exec",
				FileSet:   "tooling",
				Command:   []string{"npx", "eslint", "{inputs}"},
				Failure:   "lint",
			},
			"styles": {
				Transform:   "exec",
				FileSet:     "styles",
				PerFile:     true,
				Dest:        "css",
				OutputExt:   ".css",
				Command:     []string{"npx", "sass", "{input}", "{output}"},
				DebugArgs:   []string{"--embed-source-map"},
				ReleaseArgs: []string{"--style=compressed", "--no-source-map"},
				Versioned:   true,
			},
			"version-stamp": {Transform: "version-stamp", File: "src/js/version.js"},
			"lint-all": {
				Transform: "exec",
				FileSet:   "scripts",
				Command:   []string{"npx", "eslint", "{inputs}"},
				Failure:   "lint",
			},
			"scripts": {
				Transform:     "exec",
				Command:       []string{"npx", "esbuild", "src/js/main.js", "--bundle", "--outfile={outdir}/js/app.js"},
				ReleaseArgs:   []string{"--minify"},
				ObfuscateArgs: []string{"--mangle-props=^_"},
				Outputs:       []string{"js/app.js"},
				Versioned:     true,
			},
			"images": {Transform: "copy", FileSet: "images", Dest: "img"},
			"strip-metadata": {
				Transform: "strip-metadata",
				FileSet:   "built-images",
				Command:   []string{"exiftool", "-all=", "-overwrite_original", "{inputs}"},
			},
			"js":       {Series: []string{"version-stamp", "lint-all", "scripts"}},
			"imagery":  {Series: []string{"images", "strip-metadata"}},
			"assets":   {Parallel: []string{"html", "vendor", "lint", "styles", "js", "imagery"}},
			"default":  {Series: []string{"clean", "assets"}},
			"rebuild":  {Parallel: []string{"html", "styles", "js"}},
			"validate": {Series: []string{"lint", "lint-all"}},
		},
		Default: DefaultTaskName,
		Watch: WatchConfig{
			Debounce: DefaultDebounce.String(),
			Bindings: []WatchBinding{
				{FileSet: "html", Task: "html"},
				{FileSet: "styles", Task: "styles"},
				{FileSet: "script-sources", Task: "js"},
				{FileSet: "images", Task: "imagery"},
				{FileSet: "vendor", Task: "vendor"},
			},
		},
		DevServer: &DevServerConfig{
			Command:     []string{"node", "server/index.js"},
			RestartOn:   []string{"js", "html"},
			GracePeriod: DefaultGracePeriod.String(),
		},
		History: HistoryConfig{Path: ".buildflow/history.db"},
	}
	return cfg
}

// Init writes the example configuration to configPath.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(ExampleConfig()); err != nil {
		return fmt.Errorf("failed to marshal example config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to marshal example config: %w", err)
	}

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
