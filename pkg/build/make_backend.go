package build

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MakeBackend handles projects with a Makefile.
type MakeBackend struct{}

// NewMakeBackend creates a new Make backend.
func NewMakeBackend() *MakeBackend {
	return &MakeBackend{}
}

// Name implements Backend.
func (m *MakeBackend) Name() string {
	return "make"
}

// Detect implements Backend.
func (m *MakeBackend) Detect(root string) bool {
	for _, name := range []string{"Makefile", "makefile", "GNUmakefile"} {
		if _, err := os.Stat(filepath.Join(root, name)); err == nil {
			return true
		}
	}
	return false
}

// Build implements Backend.
func (m *MakeBackend) Build(ctx context.Context, exec Executor, root string, stream io.Writer) error {
	if !m.hasTarget(root, "build") {
		// Fall back to the default target.
		return exec.Run(ctx, []string{"make"}, ExecOpts{Dir: root}, stream)
	}
	return exec.Run(ctx, []string{"make", "build"}, ExecOpts{Dir: root}, stream)
}

// Lint implements Backend.
func (m *MakeBackend) Lint(ctx context.Context, exec Executor, root string, stream io.Writer) error {
	if !m.hasTarget(root, "lint") {
		return nil
	}
	return exec.Run(ctx, []string{"make", "lint"}, ExecOpts{Dir: root}, stream)
}

// Test implements Backend.
func (m *MakeBackend) Test(ctx context.Context, exec Executor, root string, stream io.Writer) error {
	if !m.hasTarget(root, "test") {
		return nil
	}
	return exec.Run(ctx, []string{"make", "test"}, ExecOpts{Dir: root}, stream)
}

// hasTarget scans the Makefile for a top-level target declaration.
func (m *MakeBackend) hasTarget(root, target string) bool {
	for _, name := range []string{"Makefile", "makefile", "GNUmakefile"} {
		f, err := os.Open(filepath.Join(root, name))
		if err != nil {
			continue
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, target+":") {
				return true
			}
		}
		return false
	}
	return false
}
