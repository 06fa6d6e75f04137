package transform

import (
	"context"

	"git.home.luguber.info/inful/buildflow/internal/config"
)

// Copy mirrors its inputs below <output>/<Dest>, preserving their path relative to Base.
type Copy struct {
	ID        string
	Base      string
	Dest      string
	Versioned bool
}

func (c Copy) Name() string { return c.ID }

func (c Copy) Apply(_ context.Context, inputs []string, cfg *config.BuildConfig) ([]string, error) {
	outputs := make([]string, 0, len(inputs))
	for _, in := range inputs {
		dst := mirrorPath(c.Base, cfg.OutputDir, c.Dest, in)
		if err := copyFile(in, dst); err != nil {
			return outputs, ioFailure(c.ID, err)
		}
		outputs = append(outputs, dst)
	}
	if !c.Versioned {
		return outputs, nil
	}
	return emitVersioned(c.ID, outputs, cfg)
}
