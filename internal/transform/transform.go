// Package transform defines the contract between the task runner and the file
// processing steps it invokes, and provides the built-in adapters used by
// buildflow projects (clean, copy, exec, html, markdown, version-stamp and
// strip-metadata).
//
// A Transform is opaque to the runner: it receives the resolved input paths and the
// frozen BuildConfig and reports the files it wrote or a *TransformError.
package transform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/buildflow/internal/config"
	ferrors "git.home.luguber.info/inful/buildflow/internal/foundation/errors"
)

// Transform is a single file processing concern invoked by a leaf task.
type Transform interface {
	Name() string
	Apply(ctx context.Context, inputs []string, cfg *config.BuildConfig) ([]string, error)
}

// Kind classifies why a transform failed.
type Kind string

const (
	KindLint    Kind = "lint"
	KindCompile Kind = "compile"
	KindIO      Kind = "io"
)

// ParseKind maps a configured failure kind to a Kind. Empty means compile.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindCompile:
		return KindCompile, nil
	case KindLint:
		return KindLint, nil
	case KindIO:
		return KindIO, nil
	default:
		return "", fmt.Errorf("unknown failure kind %q", s)
	}
}

// TransformError is the structured failure signal of every transform.
type TransformError struct {
	Transform string
	Kind      Kind
	Err       error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("%s %s failure: %v", e.Transform, e.Kind, e.Err)
}
func (e *TransformError) Unwrap() error { return e.Err }

// Category makes transform failures visible to the CLI exit code mapping.
func (e *TransformError) Category() ferrors.ErrorCategory { return ferrors.CategoryTransform }

// AsTransformError unwraps err to a *TransformError.
func AsTransformError(err error) (*TransformError, bool) {
	var te *TransformError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

func ioFailure(name string, err error) error {
	return &TransformError{Transform: name, Kind: KindIO, Err: err}
}

// Func adapts a plain function to the Transform interface.
type Func struct {
	ID string
	Fn func(ctx context.Context, inputs []string, cfg *config.BuildConfig) ([]string, error)
}

func (f Func) Name() string { return f.ID }

func (f Func) Apply(ctx context.Context, inputs []string, cfg *config.BuildConfig) ([]string, error) {
	return f.Fn(ctx, inputs, cfg)
}

// mirrorPath maps an input below base to the same relative location below
// outDir/dest. Inputs outside base keep only their file name.
func mirrorPath(base, outDir, dest, input string) string {
	rel, err := filepath.Rel(base, input)
	if err != nil || base == "" || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		rel = filepath.Base(input)
	}
	return filepath.Join(outDir, dest, rel)
}

// replaceExt swaps the final extension of p for ext (which includes the dot).
func replaceExt(p, ext string) string {
	if ext == "" {
		return p
	}
	return strings.TrimSuffix(p, filepath.Ext(p)) + ext
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644) // #nosec G306 -- build artifacts are served publicly
}
