package transform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/buildflow/internal/config"
)

// Clean empties the build output root.
type Clean struct{}

func (Clean) Name() string { return "clean" }

func (c Clean) Apply(_ context.Context, _ []string, cfg *config.BuildConfig) ([]string, error) {
	out := filepath.Clean(cfg.OutputDir)
	if err := safeToRemove(out, cfg.SourceDir); err != nil {
		return nil, ioFailure(c.Name(), err)
	}
	if cfg.CleanOut {
		if err := os.RemoveAll(out); err != nil {
			return nil, ioFailure(c.Name(), err)
		}
	}
	if err := os.MkdirAll(out, 0o750); err != nil {
		return nil, ioFailure(c.Name(), err)
	}
	return nil, nil
}

// safeToRemove refuses output roots that would take the sources or the filesystem with them.
func safeToRemove(out, src string) error {
	if out == "" || out == "." || out == string(filepath.Separator) || !filepath.IsAbs(out) {
		return fmt.Errorf("refusing to clean output directory %q", out)
	}
	if src == "" {
		return nil
	}
	src = filepath.Clean(src)
	if src == out || strings.HasPrefix(src+string(filepath.Separator), out+string(filepath.Separator)) {
		return fmt.Errorf("output directory %q contains source directory %q", out, src)
	}
	return nil
}
