// Package build provides pluggable build backends used by the smoke-test
// phase to run build, lint, and test against the workspace.
package build

import (
	"context"
	"io"
)

// Backend defines the interface for different build system backends.
type Backend interface {
	// Name returns the backend name for logging and identification.
	Name() string

	// Detect determines if this backend applies to the given project root.
	Detect(root string) bool

	// Build executes the build process for the project.
	Build(ctx context.Context, exec Executor, root string, stream io.Writer) error

	// Lint executes linting checks for the project.
	Lint(ctx context.Context, exec Executor, root string, stream io.Writer) error

	// Test executes the test suite for the project.
	Test(ctx context.Context, exec Executor, root string, stream io.Writer) error
}

// Priority defines the priority order for backend detection.
type Priority int

const (
	// PriorityHigh is for specific project types (go.mod, package.json, etc.)
	PriorityHigh Priority = 100

	// PriorityMedium is for generic build files (Makefile)
	PriorityMedium Priority = 50

	// PriorityLow is for fallback backends (NullBackend)
	PriorityLow Priority = 10
)

// Registration combines a backend with its priority.
type Registration struct {
	Backend  Backend
	Priority Priority
}
