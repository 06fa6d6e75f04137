package pipeline

import (
	"git.home.luguber.info/inful/buildflow/internal/config"
	"git.home.luguber.info/inful/buildflow/internal/fileset"
	ferrors "git.home.luguber.info/inful/buildflow/internal/foundation/errors"
	"git.home.luguber.info/inful/buildflow/internal/transform"
)

// Transform kinds accepted in a task's "transform" field.
const (
	TransformClean         = "clean"
	TransformCopy          = "copy"
	TransformExec          = "exec"
	TransformHTML          = "html"
	TransformMarkdown      = "markdown"
	TransformVersionStamp  = "version-stamp"
	TransformStripMetadata = "strip-metadata"
)

// TransformKinds lists the supported transform kinds.
func TransformKinds() []string {
	return []string{
		TransformClean, TransformCopy, TransformExec, TransformHTML,
		TransformMarkdown, TransformStripMetadata, TransformVersionStamp,
	}
}

func (b *PlanBuilder) transform(name string, tc config.TaskConfig, inputs *fileset.FileSet) (transform.Transform, error) {
	base := b.cfg.SourceDir()
	if inputs != nil {
		base = inputs.Base
	}

	switch tc.Transform {
	case TransformClean:
		return transform.Clean{}, nil
	case TransformCopy:
		return transform.Copy{ID: name, Base: base, Dest: tc.Dest, Versioned: tc.Versioned}, nil
	case TransformHTML:
		return transform.HTML{ID: name, Base: base, Dest: tc.Dest}, nil
	case TransformMarkdown:
		return transform.Markdown{ID: name, Base: base, Dest: tc.Dest}, nil
	case TransformVersionStamp:
		if tc.File == "" {
			return nil, ferrors.ValidationError("version-stamp requires a file").
				WithContext("task", name).
				Build()
		}
		return transform.VersionStamp{ID: name, Path: b.cfg.ResolvePath(tc.File), Template: tc.Template}, nil
	case TransformExec:
		return b.exec(name, tc, base, inputs == nil)
	case TransformStripMetadata:
		tool, err := b.exec(name, tc, base, false)
		if err != nil {
			return nil, err
		}
		return transform.StripMetadata{ID: name, Tool: tool}, nil
	default:
		return nil, ferrors.ValidationError("unknown transform").
			WithContext("task", name).
			WithContext("transform", tc.Transform).
			WithContext("supported", TransformKinds()).
			Build()
	}
}

func (b *PlanBuilder) exec(name string, tc config.TaskConfig, base string, standalone bool) (*transform.Exec, error) {
	if len(tc.Command) == 0 {
		return nil, ferrors.ValidationError("transform requires a command").
			WithContext("task", name).
			WithContext("transform", tc.Transform).
			Build()
	}
	failure, err := transform.ParseKind(tc.Failure)
	if err != nil {
		return nil, ferrors.ValidationError("invalid failure kind").
			WithCause(err).
			WithContext("task", name).
			Build()
	}
	return &transform.Exec{
		ID:            name,
		Command:       tc.Command,
		PerFile:       tc.PerFile,
		Base:          base,
		Dest:          tc.Dest,
		OutputExt:     tc.OutputExt,
		Outputs:       tc.Outputs,
		DebugArgs:     tc.DebugArgs,
		ReleaseArgs:   tc.ReleaseArgs,
		ObfuscateArgs: tc.ObfuscateArgs,
		Failure:       failure,
		Versioned:     tc.Versioned,
		Dir:           b.cfg.ResolvePath("."),
		Runner:        b.runner,
		Standalone:    standalone,
	}, nil
}
