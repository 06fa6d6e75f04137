package transform

import (
	"bytes"
	"context"
	"text/template"

	"git.home.luguber.info/inful/buildflow/internal/config"
)

// DefaultStampTemplate renders an ES module exposing both revision forms.
const DefaultStampTemplate = `// Code generated by buildflow. DO NOT EDIT.
export const version = {
  short: "{{ js .Short }}",
  long: "{{ js .Full }}",
};
export default version;
`

// VersionStamp regenerates a source artifact holding the current revision.
// It runs unconditionally; the file is owned by the build and never hand-edited.
type VersionStamp struct {
	ID       string
	Path     string // absolute target path
	Template string
}

type stampData struct {
	Short string
	Full  string
}

func (v VersionStamp) Name() string { return v.ID }

func (v VersionStamp) Apply(_ context.Context, _ []string, cfg *config.BuildConfig) ([]string, error) {
	body := v.Template
	if body == "" {
		body = DefaultStampTemplate
	}
	tpl, err := template.New("stamp").Option("missingkey=error").Parse(body)
	if err != nil {
		return nil, &TransformError{Transform: v.ID, Kind: KindCompile, Err: err}
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, stampData{Short: cfg.VersionTag, Full: cfg.FullRevision}); err != nil {
		return nil, &TransformError{Transform: v.ID, Kind: KindCompile, Err: err}
	}
	if err := writeFile(v.Path, buf.Bytes()); err != nil {
		return nil, ioFailure(v.ID, err)
	}
	return []string{v.Path}, nil
}
