// Package exec runs the external CLIs secret-loader talks to.
// Everything that shells out goes through CommandExecutor so it can be mocked.
package exec

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// CommandExecutor defines an interface for executing commands.
type CommandExecutor interface {
	// Execute runs a command with the given context and arguments.
	// Returns stdout, stderr, and any error that occurred.
	Execute(ctx context.Context, name string, args ...string) (stdout []byte, stderr []byte, err error)
}

// RealCommandExecutor executes actual commands using os/exec.
type RealCommandExecutor struct {
	// Environ, when set, supplies the child environment. Otherwise the child
	// inherits the process environment.
	Environ func() []string
}

// Execute runs an actual command.
func (r *RealCommandExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if r.Environ != nil {
		cmd.Env = r.Environ()
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// ExitCoder is implemented by errors carrying a process exit status,
// *exec.ExitError among them.
type ExitCoder interface {
	ExitCode() int
}

// ExitCode extracts the process exit status from an Execute error.
// It returns 0 for nil and -1 when the error carries no exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coder ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return -1
}

// LookPath reports whether name resolves to an executable on PATH.
func LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
