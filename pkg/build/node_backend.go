package build

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
)

// NodeBackend handles Node.js projects detected by package.json.
type NodeBackend struct{}

// NewNodeBackend creates a new Node.js backend.
func NewNodeBackend() *NodeBackend {
	return &NodeBackend{}
}

// Name implements Backend.
func (n *NodeBackend) Name() string {
	return "node"
}

// Detect implements Backend.
func (n *NodeBackend) Detect(root string) bool {
	_, err := os.Stat(filepath.Join(root, "package.json"))
	return err == nil
}

// Build implements Backend.
func (n *NodeBackend) Build(ctx context.Context, exec Executor, root string, stream io.Writer) error {
	if !n.hasScript(root, "build") {
		return nil
	}
	return exec.Run(ctx, []string{"npm", "run", "build"}, ExecOpts{Dir: root}, stream)
}

// Lint implements Backend.
func (n *NodeBackend) Lint(ctx context.Context, exec Executor, root string, stream io.Writer) error {
	if !n.hasScript(root, "lint") {
		return nil
	}
	return exec.Run(ctx, []string{"npm", "run", "lint"}, ExecOpts{Dir: root}, stream)
}

// Test implements Backend.
func (n *NodeBackend) Test(ctx context.Context, exec Executor, root string, stream io.Writer) error {
	if !n.hasScript(root, "test") {
		return nil
	}
	return exec.Run(ctx, []string{"npm", "test"}, ExecOpts{Dir: root}, stream)
}

// hasScript reports whether package.json declares the named script. Steps
// without a script are skipped rather than failed.
func (n *NodeBackend) hasScript(root, name string) bool {
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		return false
	}
	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false
	}
	_, ok := pkg.Scripts[name]
	return ok
}
