package transform

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/yuin/goldmark"

	"git.home.luguber.info/inful/buildflow/internal/config"
)

// Markdown renders markdown inputs to .html files in the output root.
type Markdown struct {
	ID   string
	Base string
	Dest string
}

func (m Markdown) Name() string { return m.ID }

func (m Markdown) Apply(_ context.Context, inputs []string, cfg *config.BuildConfig) ([]string, error) {
	md := goldmark.New()
	outputs := make([]string, 0, len(inputs))
	for _, in := range inputs {
		src, err := os.ReadFile(filepath.Clean(in))
		if err != nil {
			return outputs, ioFailure(m.ID, err)
		}
		var buf bytes.Buffer
		if err := md.Convert(src, &buf); err != nil {
			return outputs, &TransformError{Transform: m.ID, Kind: KindCompile, Err: err}
		}
		dst := replaceExt(mirrorPath(m.Base, cfg.OutputDir, m.Dest, in), ".html")
		if err := writeFile(dst, buf.Bytes()); err != nil {
			return outputs, ioFailure(m.ID, err)
		}
		outputs = append(outputs, dst)
	}
	return outputs, nil
}
