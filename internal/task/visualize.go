package task

import (
	"encoding/json"
	"fmt"
	"strings"
)

// VisualizationFormat represents the output format for task graph visualization.
type VisualizationFormat string

const (
	FormatText    VisualizationFormat = "text"
	FormatMermaid VisualizationFormat = "mermaid"
	FormatDOT     VisualizationFormat = "dot"
	FormatJSON    VisualizationFormat = "json"
)

// Visualize renders the graph below root, or every root task when root is empty.
func Visualize(r *Registry, root string, format VisualizationFormat) (string, error) {
	roots := r.Roots()
	if root != "" {
		if _, err := r.Resolve(root); err != nil {
			return "", err
		}
		roots = []string{root}
	}

	switch format {
	case FormatText:
		return visualizeText(r, roots), nil
	case FormatMermaid:
		return visualizeMermaid(r, roots), nil
	case FormatDOT:
		return visualizeDOT(r, roots), nil
	case FormatJSON:
		return visualizeJSON(r, roots)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

func describe(t Task) string {
	switch d := t.Def.(type) {
	case Leaf:
		label := fmt.Sprintf("%s (%s", t.Name, d.Transform.Name())
		if d.Inputs != nil {
			label += " <- " + d.Inputs.Name
		}
		return label + ")"
	default:
		return fmt.Sprintf("%s [%s]", t.Name, t.Def.Kind())
	}
}

// visualizeText draws each root as an ASCII tree.
func visualizeText(r *Registry, roots []string) string {
	var sb strings.Builder
	sb.WriteString("Task Graph\n")
	sb.WriteString("==========\n\n")

	var draw func(name, prefix string, last bool, top bool)
	draw = func(name, prefix string, last bool, top bool) {
		t, _ := r.Resolve(name)
		switch {
		case top:
			sb.WriteString(describe(t) + "\n")
		case last:
			sb.WriteString(prefix + "└── " + describe(t) + "\n")
		default:
			sb.WriteString(prefix + "├── " + describe(t) + "\n")
		}

		childPrefix := prefix
		if !top {
			if last {
				childPrefix += "    "
			} else {
				childPrefix += "│   "
			}
		}
		children := Children(t.Def)
		for i, c := range children {
			draw(c, childPrefix, i == len(children)-1, false)
		}
	}

	for i, root := range roots {
		if i > 0 {
			sb.WriteString("\n")
		}
		draw(root, "", true, true)
	}
	return sb.String()
}

func nodeID(name string) string {
	return strings.NewReplacer("-", "_", ".", "_", " ", "_", ":", "_").Replace(name)
}

// walk visits every task reachable from roots once, parents before children.
func walk(r *Registry, roots []string, visit func(t Task)) {
	seen := make(map[string]bool)
	var rec func(name string)
	rec = func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		t, err := r.Resolve(name)
		if err != nil {
			return
		}
		visit(t)
		for _, c := range Children(t.Def) {
			rec(c)
		}
	}
	for _, root := range roots {
		rec(root)
	}
}

// visualizeMermaid creates a Mermaid flowchart. Series edges are numbered by position.
func visualizeMermaid(r *Registry, roots []string) string {
	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("graph TD\n")

	var edges []string
	walk(r, roots, func(t Task) {
		id := nodeID(t.Name)
		switch t.Def.Kind() {
		case KindLeaf:
			sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", id, describe(t)))
		case KindSeries:
			sb.WriteString(fmt.Sprintf("    %s{{\"%s\"}}\n", id, describe(t)))
		case KindParallel:
			sb.WriteString(fmt.Sprintf("    %s[[\"%s\"]]\n", id, describe(t)))
		}
		for i, c := range Children(t.Def) {
			if t.Def.Kind() == KindSeries {
				edges = append(edges, fmt.Sprintf("    %s -->|%d| %s\n", id, i+1, nodeID(c)))
			} else {
				edges = append(edges, fmt.Sprintf("    %s --> %s\n", id, nodeID(c)))
			}
		}
	})

	sb.WriteString("\n")
	for _, e := range edges {
		sb.WriteString(e)
	}
	sb.WriteString("```\n")
	return sb.String()
}

// visualizeDOT creates a Graphviz DOT diagram.
func visualizeDOT(r *Registry, roots []string) string {
	var sb strings.Builder
	sb.WriteString("digraph TaskGraph {\n")
	sb.WriteString("    rankdir=TB;\n")
	sb.WriteString("    node [shape=box, style=rounded];\n\n")

	var edges []string
	walk(r, roots, func(t Task) {
		shape := "box"
		switch t.Def.Kind() {
		case KindSeries:
			shape = "cds"
		case KindParallel:
			shape = "box3d"
		}
		sb.WriteString(fmt.Sprintf("    %q [label=%q, shape=%s];\n", t.Name, describe(t), shape))
		for i, c := range Children(t.Def) {
			if t.Def.Kind() == KindSeries {
				edges = append(edges, fmt.Sprintf("    %q -> %q [label=\"%d\"];\n", t.Name, c, i+1))
			} else {
				edges = append(edges, fmt.Sprintf("    %q -> %q;\n", t.Name, c))
			}
		}
	})

	sb.WriteString("\n")
	for _, e := range edges {
		sb.WriteString(e)
	}
	sb.WriteString("}\n")
	return sb.String()
}

type jsonNode struct {
	Name      string   `json:"name"`
	Kind      Kind     `json:"kind"`
	Transform string   `json:"transform,omitempty"`
	FileSet   string   `json:"fileset,omitempty"`
	Children  []string `json:"children,omitempty"`
}

type jsonGraph struct {
	Roots      []string   `json:"roots"`
	Tasks      []jsonNode `json:"tasks"`
	TotalTasks int        `json:"totalTasks"`
}

// visualizeJSON creates a structured JSON representation of the graph.
func visualizeJSON(r *Registry, roots []string) (string, error) {
	g := jsonGraph{Roots: roots}
	walk(r, roots, func(t Task) {
		n := jsonNode{Name: t.Name, Kind: t.Def.Kind(), Children: Children(t.Def)}
		if leaf, ok := t.Def.(Leaf); ok {
			n.Transform = leaf.Transform.Name()
			if leaf.Inputs != nil {
				n.FileSet = leaf.Inputs.Name
			}
		}
		g.Tasks = append(g.Tasks, n)
	})
	g.TotalTasks = len(g.Tasks)

	out, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out) + "\n", nil
}

// GetSupportedFormats returns a list of supported visualization formats.
func GetSupportedFormats() []VisualizationFormat {
	return []VisualizationFormat{FormatText, FormatMermaid, FormatDOT, FormatJSON}
}

// GetFormatDescription returns a description of a visualization format.
func GetFormatDescription(format VisualizationFormat) string {
	descriptions := map[VisualizationFormat]string{
		FormatText:    "Human-readable text tree",
		FormatMermaid: "Mermaid diagram (for GitHub, GitLab, etc.)",
		FormatDOT:     "Graphviz DOT format (render with `dot -Tpng graph.dot -o graph.png`)",
		FormatJSON:    "Structured JSON representation",
	}
	return descriptions[format]
}
