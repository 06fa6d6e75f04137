package commands

import (
	"fmt"
	"strings"

	"git.home.luguber.info/inful/buildflow/internal/config"
	"git.home.luguber.info/inful/buildflow/internal/task"
)

// ListCmd implements the 'list' command.
type ListCmd struct{}

func (l *ListCmd) Run(g *Global, root *CLI) error {
	p, err := loadProject(g, root.Config, config.Overrides{})
	if err != nil {
		return err
	}
	out := g.out()
	reg := p.plan.Registry
	for _, name := range reg.Names() {
		t, err := reg.Resolve(name)
		if err != nil {
			return err
		}
		marker := " "
		if name == p.plan.DefaultTask() {
			marker = "*"
		}
		detail := ""
		switch d := t.Def.(type) {
		case task.Leaf:
			detail = d.Transform.Name()
			if d.Inputs != nil {
				detail += " <- " + d.Inputs.Name
			}
		default:
			detail = strings.Join(task.Children(t.Def), ", ")
		}
		_, _ = fmt.Fprintf(out, "%s %-16s %-9s %s\n", marker, name, t.Def.Kind(), detail)
		if t.Description != "" {
			_, _ = fmt.Fprintf(out, "  %-16s %s\n", "", t.Description)
		}
	}
	return nil
}
