package build

import (
	"context"
	"fmt"
	"io"
)

// NullBackend is the fallback for workspaces with no recognized build system.
// Every step succeeds without running anything.
type NullBackend struct{}

// NewNullBackend creates a new null backend.
func NewNullBackend() *NullBackend {
	return &NullBackend{}
}

// Name implements Backend.
func (n *NullBackend) Name() string {
	return "null"
}

// Detect implements Backend. The null backend matches everything.
func (n *NullBackend) Detect(root string) bool {
	return true
}

// Build implements Backend.
func (n *NullBackend) Build(ctx context.Context, exec Executor, root string, stream io.Writer) error {
	if stream != nil {
		fmt.Fprintln(stream, "no build system detected, skipping build")
	}
	return nil
}

// Lint implements Backend.
func (n *NullBackend) Lint(ctx context.Context, exec Executor, root string, stream io.Writer) error {
	return nil
}

// Test implements Backend.
func (n *NullBackend) Test(ctx context.Context, exec Executor, root string, stream io.Writer) error {
	return nil
}
