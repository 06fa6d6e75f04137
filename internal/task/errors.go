package task

import (
	"fmt"
	"strings"

	ferrors "git.home.luguber.info/inful/buildflow/internal/foundation/errors"
)

// Typed graph errors. Each carries a Category for CLI exit code mapping.
type UnknownTaskError struct{ Name, Parent string }

func (e *UnknownTaskError) Error() string {
	if e.Parent != "" {
		return fmt.Sprintf("unknown task %q referenced by %q", e.Name, e.Parent)
	}
	return fmt.Sprintf("unknown task %q", e.Name)
}
func (e *UnknownTaskError) Category() ferrors.ErrorCategory { return ferrors.CategoryNotFound }

type DuplicateTaskError struct{ Name string }

func (e *DuplicateTaskError) Error() string { return fmt.Sprintf("task %q is already registered", e.Name) }
func (e *DuplicateTaskError) Category() ferrors.ErrorCategory {
	return ferrors.CategoryAlreadyExists
}

// CyclicTaskGraphError reports one cycle witness; Path starts and ends with the same task.
type CyclicTaskGraphError struct{ Path []string }

func (e *CyclicTaskGraphError) Error() string {
	return "task graph cycle: " + strings.Join(e.Path, " -> ")
}
func (e *CyclicTaskGraphError) Category() ferrors.ErrorCategory { return ferrors.CategoryGraph }
