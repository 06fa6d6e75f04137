package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/buildflow/internal/config"
	"git.home.luguber.info/inful/buildflow/internal/logfields"
)

// CommandRunner executes an external command and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, dir string, argv []string) ([]byte, error)
}

// OSCommandRunner runs commands with os/exec. Commands are not bound to ctx:
// once started, a transform's external tool runs to completion.
type OSCommandRunner struct{}

func (OSCommandRunner) Run(_ context.Context, dir string, argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	// #nosec G204 -- commands come from the project configuration
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	return cmd.CombinedOutput()
}

// Exec invokes an external tool either once per input file or once over all inputs.
//
// Arguments may contain the placeholders {input}, {inputs}, {output}, {outdir},
// {revision} and {short_revision}. An argument that is exactly "{inputs}" expands to
// one argument per input path. Mode arguments are appended: DebugArgs for debug
// builds, ReleaseArgs otherwise, plus ObfuscateArgs when obfuscation is enabled.
type Exec struct {
	ID            string
	Command       []string
	PerFile       bool
	Base          string
	Dest          string
	OutputExt     string
	Outputs       []string // declared outputs relative to <output>/<Dest> (whole-input mode)
	DebugArgs     []string
	ReleaseArgs   []string
	ObfuscateArgs []string
	Failure       Kind
	Versioned     bool
	Dir           string
	Runner        CommandRunner

	// Standalone commands take no input files and run even when inputs is empty.
	Standalone bool
}

func (e *Exec) Name() string { return e.ID }

func (e *Exec) Apply(ctx context.Context, inputs []string, cfg *config.BuildConfig) ([]string, error) {
	if len(inputs) == 0 && !e.Standalone {
		slog.Debug("No inputs; skipping command", logfields.Transform(e.ID))
		return nil, nil
	}

	var outputs []string
	if e.PerFile {
		for _, in := range inputs {
			out := replaceExt(mirrorPath(e.Base, cfg.OutputDir, e.Dest, in), e.OutputExt)
			if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
				return outputs, ioFailure(e.ID, err)
			}
			if err := e.run(ctx, e.argv(cfg, e.vars(cfg, []string{in}, out))); err != nil {
				return outputs, err
			}
			outputs = append(outputs, out)
		}
	} else {
		for _, rel := range e.Outputs {
			outputs = append(outputs, filepath.Join(cfg.OutputDir, e.Dest, rel))
		}
		first := ""
		if len(outputs) > 0 {
			first = outputs[0]
			if err := os.MkdirAll(filepath.Dir(first), 0o750); err != nil {
				return nil, ioFailure(e.ID, err)
			}
		}
		if err := e.run(ctx, e.argv(cfg, e.vars(cfg, inputs, first))); err != nil {
			return nil, err
		}
	}

	if !e.Versioned {
		return outputs, nil
	}
	return emitVersioned(e.ID, outputs, cfg)
}

type placeholders struct {
	inputs []string
	output string
	outdir string
	full   string
	short  string
}

func (e *Exec) vars(cfg *config.BuildConfig, inputs []string, output string) placeholders {
	return placeholders{
		inputs: inputs,
		output: output,
		outdir: filepath.Join(cfg.OutputDir, e.Dest),
		full:   cfg.FullRevision,
		short:  cfg.VersionTag,
	}
}

// argv builds the command line for the given build policy.
func (e *Exec) argv(cfg *config.BuildConfig, p placeholders) []string {
	args := append([]string{}, e.Command...)
	if cfg.Debug {
		args = append(args, e.DebugArgs...)
	} else {
		args = append(args, e.ReleaseArgs...)
		if cfg.Obfuscate {
			args = append(args, e.ObfuscateArgs...)
		}
	}

	input := ""
	if len(p.inputs) > 0 {
		input = p.inputs[0]
	}
	r := strings.NewReplacer(
		"{input}", input,
		"{inputs}", strings.Join(p.inputs, " "),
		"{output}", p.output,
		"{outdir}", p.outdir,
		"{revision}", p.full,
		"{short_revision}", p.short,
	)

	out := make([]string, 0, len(args)+len(p.inputs))
	for _, a := range args {
		if a == "{inputs}" {
			out = append(out, p.inputs...)
			continue
		}
		out = append(out, r.Replace(a))
	}
	return out
}

func (e *Exec) run(ctx context.Context, argv []string) error {
	runner := e.Runner
	if runner == nil {
		runner = OSCommandRunner{}
	}

	slog.Debug("Running command", logfields.Transform(e.ID), logfields.Command(strings.Join(argv, " ")))
	output, err := runner.Run(ctx, e.Dir, argv)
	if err == nil {
		return nil
	}

	var exitErr exitCoder
	if errors.As(err, &exitErr) {
		kind := e.Failure
		if kind == "" {
			kind = KindCompile
		}
		return &TransformError{
			Transform: e.ID,
			Kind:      kind,
			Err:       fmt.Errorf("%s exited with status %d: %s", argv[0], exitErr.ExitCode(), bytes.TrimSpace(output)),
		}
	}
	return ioFailure(e.ID, fmt.Errorf("run %s: %w", argv[0], err))
}

// exitCoder is satisfied by *exec.ExitError: the tool ran and reported failure.
type exitCoder interface {
	error
	ExitCode() int
}
