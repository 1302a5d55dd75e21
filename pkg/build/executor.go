package build

import (
	"context"
	"fmt"
	"io"
	"os/exec"
)

// ExecOpts describes a single command invocation.
type ExecOpts struct {
	// Dir is the working directory for the command.
	Dir string

	// Env holds extra environment entries in KEY=VALUE form. The host
	// environment is inherited either way.
	Env []string
}

// Executor abstracts running external commands so backends can be tested
// without touching the host toolchain.
type Executor interface {
	// Run executes argv and streams combined output to stream. A non-zero
	// exit status is returned as an error.
	Run(ctx context.Context, argv []string, opts ExecOpts, stream io.Writer) error
}

// HostExecutor runs commands directly on the host.
type HostExecutor struct{}

// NewHostExecutor creates an executor that runs commands on the host.
func NewHostExecutor() *HostExecutor {
	return &HostExecutor{}
}

// Run implements Executor.
func (e *HostExecutor) Run(ctx context.Context, argv []string, opts ExecOpts, stream io.Writer) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(cmd.Environ(), opts.Env...)
	}
	if stream != nil {
		cmd.Stdout = stream
		cmd.Stderr = stream
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}

// MockExecCall records a single invocation received by MockExecutor.
type MockExecCall struct {
	Argv []string
	Dir  string
}

// MockExecutor is a test double that records calls and returns canned results.
type MockExecutor struct {
	Calls  []MockExecCall
	Output string
	Err    error
}

// Run implements Executor.
func (m *MockExecutor) Run(ctx context.Context, argv []string, opts ExecOpts, stream io.Writer) error {
	m.Calls = append(m.Calls, MockExecCall{Argv: argv, Dir: opts.Dir})
	if stream != nil && m.Output != "" {
		fmt.Fprint(stream, m.Output)
	}
	return m.Err
}
