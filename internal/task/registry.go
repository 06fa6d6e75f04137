package task

import (
	"maps"
	"slices"
	"sync"

	ferrors "git.home.luguber.info/inful/buildflow/internal/foundation/errors"
)

// Registry maps task names to definitions. It is safe for concurrent use;
// registration is expected at startup and lookups during runs.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]Task)}
}

// Register adds a single task. Children of a composite must already be registered.
func (r *Registry) Register(name string, def Definition) error {
	return r.RegisterAll([]Task{{Name: name, Def: def}})
}

// RegisterAll adds a batch of tasks atomically. Composites may reference tasks
// registered earlier or anywhere in the same batch. On error nothing is registered.
func (r *Registry) RegisterAll(batch []Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	staged := maps.Clone(r.tasks)
	for _, t := range batch {
		if err := checkDefinition(t); err != nil {
			return err
		}
		if _, exists := staged[t.Name]; exists {
			return &DuplicateTaskError{Name: t.Name}
		}
		staged[t.Name] = t
	}

	for _, t := range batch {
		for _, child := range Children(t.Def) {
			if _, ok := staged[child]; !ok {
				return &UnknownTaskError{Name: child, Parent: t.Name}
			}
		}
	}

	for _, t := range batch {
		if path := findCycle(staged, t.Name); path != nil {
			return &CyclicTaskGraphError{Path: path}
		}
	}

	r.tasks = staged
	return nil
}

func checkDefinition(t Task) error {
	if t.Name == "" {
		return ferrors.ValidationError("task name cannot be empty").Build()
	}
	switch d := t.Def.(type) {
	case nil:
		return ferrors.ValidationError("task has no definition").WithContext("task", t.Name).Build()
	case Leaf:
		if d.Transform == nil {
			return ferrors.ValidationError("leaf task has no transform").WithContext("task", t.Name).Build()
		}
	case Series, Parallel:
		if len(Children(d)) == 0 {
			return ferrors.ValidationError("composite task has no children").
				WithContext("task", t.Name).
				WithContext("kind", string(d.Kind())).
				Build()
		}
	}
	return nil
}

// findCycle walks depth-first from start and returns the first cycle found as a
// path of names that begins and ends with the same task, or nil.
func findCycle(tasks map[string]Task, start string) []string {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int)
	var stack []string

	var dfs func(name string) []string
	dfs = func(name string) []string {
		color[name] = gray
		stack = append(stack, name)
		for _, child := range Children(tasks[name].Def) {
			switch color[child] {
			case gray:
				i := slices.Index(stack, child)
				return append(slices.Clone(stack[i:]), child)
			case white:
				if p := dfs(child); p != nil {
					return p
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		return nil
	}
	return dfs(start)
}

// Resolve returns the task registered under name.
func (r *Registry) Resolve(name string) (Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[name]
	if !ok {
		return Task{}, &UnknownTaskError{Name: name}
	}
	return t, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tasks[name]
	return ok
}

// Names returns all registered task names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.tasks))
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Leaves returns the leaf tasks reachable from name in depth-first child order,
// each listed once.
func (r *Registry) Leaves(name string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.tasks[name]; !ok {
		return nil, &UnknownTaskError{Name: name}
	}
	seen := make(map[string]bool)
	var leaves []string
	var walk func(n string)
	walk = func(n string) {
		if seen[n] {
			return
		}
		seen[n] = true
		t := r.tasks[n]
		if t.Def.Kind() == KindLeaf {
			leaves = append(leaves, n)
			return
		}
		for _, c := range Children(t.Def) {
			walk(c)
		}
	}
	walk(name)
	return leaves, nil
}

// Roots returns the tasks no other task references, sorted.
func (r *Registry) Roots() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	referenced := make(map[string]bool)
	for _, t := range r.tasks {
		for _, c := range Children(t.Def) {
			referenced[c] = true
		}
	}
	var roots []string
	for name := range r.tasks {
		if !referenced[name] {
			roots = append(roots, name)
		}
	}
	slices.Sort(roots)
	return roots
}
