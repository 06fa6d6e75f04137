package task

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func graphFixture(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.RegisterAll([]Task{
		{Name: "clean", Def: noop("clean")},
		{Name: "html", Def: noop("html")},
		{Name: "version-stamp", Def: noop("version-stamp")},
		{Name: "bundle", Def: noop("bundle")},
		{Name: "js", Def: Series{Children: []string{"version-stamp", "bundle"}}},
		{Name: "assets", Def: Parallel{Children: []string{"html", "js"}}},
		{Name: "default", Def: Series{Children: []string{"clean", "assets"}}},
	}))
	return r
}

func TestVisualize_Text(t *testing.T) {
	out, err := Visualize(graphFixture(t), "default", FormatText)
	require.NoError(t, err)

	want := strings.Join([]string{
		"Task Graph",
		"==========",
		"",
		"default [series]",
		"├── clean (clean)",
		"└── assets [parallel]",
		"    ├── html (html)",
		"    └── js [series]",
		"        ├── version-stamp (version-stamp)",
		"        └── bundle (bundle)",
		"",
	}, "\n")
	require.Equal(t, want, out)
}

func TestVisualize_MermaidAndDOT(t *testing.T) {
	r := graphFixture(t)

	mermaid, err := Visualize(r, "", FormatMermaid)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(mermaid, "```mermaid\ngraph TD\n"))
	require.Contains(t, mermaid, "default -->|1| clean")
	require.Contains(t, mermaid, "js -->|2| bundle")
	require.Contains(t, mermaid, "assets --> html")
	require.Contains(t, mermaid, `version_stamp["version-stamp (version-stamp)"]`)

	dot, err := Visualize(r, "", FormatDOT)
	require.NoError(t, err)
	require.Contains(t, dot, "digraph TaskGraph {")
	require.Contains(t, dot, `"default" -> "clean" [label="1"];`)
	require.Contains(t, dot, `"assets" -> "js";`)
}

func TestVisualize_JSON(t *testing.T) {
	out, err := Visualize(graphFixture(t), "js", FormatJSON)
	require.NoError(t, err)

	var g jsonGraph
	require.NoError(t, json.Unmarshal([]byte(out), &g))
	require.Equal(t, []string{"js"}, g.Roots)
	require.Equal(t, 3, g.TotalTasks)
	require.Equal(t, KindSeries, g.Tasks[0].Kind)
	require.Equal(t, "version-stamp", g.Tasks[1].Transform)
}

func TestVisualize_Errors(t *testing.T) {
	r := graphFixture(t)
	_, err := Visualize(r, "nope", FormatText)
	var unknown *UnknownTaskError
	require.ErrorAs(t, err, &unknown)

	_, err = Visualize(r, "", VisualizationFormat("png"))
	require.Error(t, err)

	for _, f := range GetSupportedFormats() {
		require.NotEmpty(t, GetFormatDescription(f))
	}
}
