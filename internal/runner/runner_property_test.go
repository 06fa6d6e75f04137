package runner

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"pgregory.net/rapid"

	"git.home.luguber.info/inful/buildflow/internal/config"
	"git.home.luguber.info/inful/buildflow/internal/task"
	"git.home.luguber.info/inful/buildflow/internal/transform"
)

// TestProperty_RunVisitsEveryReachableLeafOnce builds random acyclic graphs and checks
// that running any task terminates and executes each reachable leaf exactly once.
func TestProperty_RunVisitsEveryReachableLeafOnce(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		var mu sync.Mutex
		calls := map[string]int{}

		reg := task.NewRegistry()
		n := rapid.IntRange(1, 15).Draw(rt, "num_tasks")
		names := make([]string, 0, n)
		for i := range n {
			name := fmt.Sprintf("t%d", i)
			var def task.Definition
			if i == 0 || !rapid.Bool().Draw(rt, "composite") {
				leafName := name
				def = task.Leaf{Transform: transform.Func{ID: name, Fn: func(context.Context, []string, *config.BuildConfig) ([]string, error) {
					mu.Lock()
					calls[leafName]++
					mu.Unlock()
					return nil, nil
				}}}
			} else {
				k := rapid.IntRange(1, min(i, 4)).Draw(rt, "num_children")
				children := make([]string, 0, k)
				for range k {
					children = append(children, names[rapid.IntRange(0, i-1).Draw(rt, "child")])
				}
				if rapid.Bool().Draw(rt, "parallel") {
					def = task.Parallel{Children: children}
				} else {
					def = task.Series{Children: children}
				}
			}
			if err := reg.Register(name, def); err != nil {
				rt.Fatalf("Register(%s): %v", name, err)
			}
			names = append(names, name)
		}

		root := rapid.SampledFrom(names).Draw(rt, "root")
		want, err := reg.Leaves(root)
		if err != nil {
			rt.Fatalf("Leaves: %v", err)
		}

		if err := New(reg, &config.BuildConfig{}).Run(context.Background(), root); err != nil {
			rt.Fatalf("Run(%s): %v", root, err)
		}
		if len(calls) != len(want) {
			rt.Fatalf("executed %v, want leaves %v", calls, want)
		}
		for _, leaf := range want {
			if calls[leaf] != 1 {
				rt.Fatalf("leaf %s executed %d times", leaf, calls[leaf])
			}
		}
	})
}
