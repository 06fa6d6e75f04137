package commands

import (
	"context"
	"fmt"
	"time"

	"git.home.luguber.info/inful/buildflow/internal/config"
	ferrors "git.home.luguber.info/inful/buildflow/internal/foundation/errors"
	"git.home.luguber.info/inful/buildflow/internal/history"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int `short:"n" help:"Number of task runs to show" default:"20"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	if cfg.History.Path == "" {
		return ferrors.ConfigError("history is not enabled").
			WithContext("hint", "set history.path in the configuration").
			Build()
	}

	store, err := history.Open(cfg.ResolvePath(cfg.History.Path))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	entries, err := store.Recent(context.Background(), h.Limit)
	if err != nil {
		return err
	}
	out := g.out()
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(out, "No task runs recorded")
		return nil
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-16s %-9s %-9s %8s  run=%s",
			e.StartedAt.Local().Format(time.DateTime), e.TaskName, e.Kind, e.Status,
			e.Duration().Round(time.Millisecond), shortID(e.RunID))
		if e.Error != "" {
			line += "  " + e.Error
		}
		_, _ = fmt.Fprintln(out, line)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
