// Package errors provides the classified error primitives shared across buildflow.
//
// Key features:
//   - ErrorCategory: broad classification (config, graph, transform, process, ...)
//   - ErrorSeverity: impact level (fatal, error, warning, info)
//   - ClassifiedError: structured error with category, severity and context
//   - ErrorBuilder: fluent API for creating classified errors
//   - CLIErrorAdapter: maps any error carrying a category to an exit code and message
//
// Example usage:
//
//	err := errors.NewError(errors.CategoryConfig, "unknown fileset").
//		WithContext("task", name).
//		WithCause(originalErr).
//		Build()
package errors
