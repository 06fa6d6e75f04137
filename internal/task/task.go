// Package task holds the typed task registry: named units of build work that are
// either a single transform invocation (Leaf) or an ordered composition of other
// tasks run one after another (Series) or side by side (Parallel).
//
// The registry validates the graph when tasks are registered, so a registered
// graph is always closed (every child exists) and acyclic.
package task

import (
	"git.home.luguber.info/inful/buildflow/internal/fileset"
	"git.home.luguber.info/inful/buildflow/internal/transform"
)

// Kind is the structural variant of a task.
type Kind string

const (
	KindLeaf     Kind = "leaf"
	KindSeries   Kind = "series"
	KindParallel Kind = "parallel"
)

// Definition is the sealed set of task variants: Leaf, Series and Parallel.
type Definition interface {
	Kind() Kind
	isDefinition()
}

// Leaf invokes one transform over the files of Inputs (resolved fresh on every run).
// A nil Inputs runs the transform with no input files.
type Leaf struct {
	Transform transform.Transform
	Inputs    *fileset.FileSet
}

// Series runs Children strictly in order and stops at the first failure.
type Series struct {
	Children []string
}

// Parallel starts all Children together and waits for every one of them.
type Parallel struct {
	Children []string
}

func (Leaf) Kind() Kind     { return KindLeaf }
func (Series) Kind() Kind   { return KindSeries }
func (Parallel) Kind() Kind { return KindParallel }

func (Leaf) isDefinition()     {}
func (Series) isDefinition()   {}
func (Parallel) isDefinition() {}

// Children returns the child names of a composite definition, or nil for a leaf.
func Children(def Definition) []string {
	switch d := def.(type) {
	case Series:
		return d.Children
	case Parallel:
		return d.Children
	default:
		return nil
	}
}

// Task is a named, registered definition.
type Task struct {
	Name        string
	Description string
	Def         Definition
}
