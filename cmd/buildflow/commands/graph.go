package commands

import (
	"fmt"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/buildflow/internal/config"
	"git.home.luguber.info/inful/buildflow/internal/task"
)

// GraphCmd implements the 'graph' command.
type GraphCmd struct {
	Task   string `arg:"" optional:"" help:"Root task (every root task when omitted)"`
	Format string `short:"f" help:"Output format: text, mermaid, dot, json" default:"text" enum:"text,mermaid,dot,json"`
	Output string `short:"o" help:"Output file path (optional, prints to stdout if not specified)"`
	List   bool   `short:"l" help:"List available formats and exit"`
}

// Run executes the graph command.
func (cmd *GraphCmd) Run(g *Global, root *CLI) error {
	out := g.out()
	if cmd.List {
		_, _ = fmt.Fprintln(out, "Available visualization formats:")
		_, _ = fmt.Fprintln(out)
		for _, format := range task.GetSupportedFormats() {
			_, _ = fmt.Fprintf(out, "  %-10s %s\n", format, task.GetFormatDescription(format))
		}
		return nil
	}

	p, err := loadProject(g, root.Config, config.Overrides{})
	if err != nil {
		return err
	}
	rendered, err := task.Visualize(p.plan.Registry, cmd.Task, task.VisualizationFormat(cmd.Format))
	if err != nil {
		return err
	}

	if cmd.Output != "" {
		// #nosec G306 -- graph output is meant to be shared
		if err := os.WriteFile(cmd.Output, []byte(rendered), 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		slog.Info("Task graph written", "file", cmd.Output, "format", cmd.Format)
		return nil
	}
	_, err = fmt.Fprint(out, rendered)
	return err
}
