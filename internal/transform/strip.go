package transform

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/buildflow/internal/config"
	"git.home.luguber.info/inful/buildflow/internal/logfields"
)

// StripMetadata runs a metadata removal tool over already produced assets.
//
// It is the only best-effort transform: it does nothing unless the build policy
// enables stripping, and any failure is logged and reported as success.
type StripMetadata struct {
	ID   string
	Tool Transform
}

func (s StripMetadata) Name() string { return s.ID }

func (s StripMetadata) Apply(ctx context.Context, inputs []string, cfg *config.BuildConfig) ([]string, error) {
	if !cfg.StripMetadata || s.Tool == nil {
		return nil, nil
	}
	if _, err := s.Tool.Apply(ctx, inputs, cfg); err != nil {
		slog.Warn("Metadata stripping failed; continuing",
			logfields.Transform(s.ID),
			logfields.Files(len(inputs)),
			logfields.Error(err))
	}
	// Files are modified in place; no new outputs.
	return nil, nil
}
