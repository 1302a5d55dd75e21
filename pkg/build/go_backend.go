package build

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// GoBackend handles Go projects detected by the presence of go.mod.
type GoBackend struct{}

// NewGoBackend creates a new Go backend.
func NewGoBackend() *GoBackend {
	return &GoBackend{}
}

// Name implements Backend.
func (g *GoBackend) Name() string {
	return "go"
}

// Detect implements Backend.
func (g *GoBackend) Detect(root string) bool {
	_, err := os.Stat(filepath.Join(root, "go.mod"))
	return err == nil
}

// Build implements Backend.
func (g *GoBackend) Build(ctx context.Context, exec Executor, root string, stream io.Writer) error {
	return exec.Run(ctx, []string{"go", "build", "./..."}, ExecOpts{Dir: root}, stream)
}

// Lint implements Backend.
func (g *GoBackend) Lint(ctx context.Context, exec Executor, root string, stream io.Writer) error {
	return exec.Run(ctx, []string{"go", "vet", "./..."}, ExecOpts{Dir: root}, stream)
}

// Test implements Backend.
func (g *GoBackend) Test(ctx context.Context, exec Executor, root string, stream io.Writer) error {
	return exec.Run(ctx, []string{"go", "test", "./..."}, ExecOpts{Dir: root}, stream)
}
