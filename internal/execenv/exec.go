// Package execenv runs a child command with a loaded secrets environment.
package execenv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	dserrors "github.com/systmms/secret-loader/internal/errors"
	"github.com/systmms/secret-loader/internal/logging"
)

// Executor handles running commands with ephemeral environment variables
type Executor struct {
	logger *logging.Logger
	out    io.Writer
}

// New creates a new executor
func New(logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Executor{
		logger: logger,
		out:    os.Stdout,
	}
}

// ExecOptions configures command execution
type ExecOptions struct {
	Command    []string          // Command and arguments to run
	Environ    []string          // Full child environment in KEY=VALUE form
	Loaded     map[string]string // Variables that came from secrets files, for PrintVars
	PrintVars  bool              // Print loaded variables (names only, values masked)
	WorkingDir string
	Timeout    time.Duration // 0 for no timeout

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// ExitError carries the exit status of a child that ran but failed.
type ExitError struct {
	Code int
}

func (e ExitError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.Code)
}

// ExitCode implements pkg/exec.ExitCoder.
func (e ExitError) ExitCode() int {
	return e.Code
}

// Exec runs the command with exactly options.Environ as its environment.
func (e *Executor) Exec(ctx context.Context, options ExecOptions) error {
	if err := ValidateCommand(options.Command); err != nil {
		return err
	}

	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	if options.PrintVars {
		e.printEnvironment(options.Loaded)
	}

	cmdName := options.Command[0]
	cmd := exec.CommandContext(ctx, cmdName, options.Command[1:]...)
	cmd.Env = options.Environ
	cmd.Stdin = orReader(options.Stdin, os.Stdin)
	cmd.Stdout = orWriter(options.Stdout, os.Stdout)
	cmd.Stderr = orWriter(options.Stderr, os.Stderr)
	if options.WorkingDir != "" {
		cmd.Dir = options.WorkingDir
	}

	e.logger.Debug("Executing command: %s", strings.Join(options.Command, " "))
	e.logger.Debug("Environment variables set: %d", len(options.Environ))

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			if code < 0 {
				code = 1
			}
			return ExitError{Code: code}
		}
		return dserrors.CommandError{
			Command:    strings.Join(options.Command, " "),
			Message:    err.Error(),
			Suggestion: "Check the command output above for details",
		}
	}
	return nil
}

// printEnvironment displays the loaded variables (values masked)
func (e *Executor) printEnvironment(environment map[string]string) {
	if len(environment) == 0 {
		_, _ = fmt.Fprintln(e.out, "No secrets loaded")
		return
	}

	_, _ = fmt.Fprintf(e.out, "Loaded %d secrets:\n", len(environment))

	keys := make([]string, 0, len(environment))
	for key := range environment {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		_, _ = fmt.Fprintf(e.out, "  %s=%s\n", key, MaskValue(environment[key]))
	}
	_, _ = fmt.Fprintln(e.out)
}

// MaskValue masks a secret value for display
func MaskValue(value string) string {
	if len(value) == 0 {
		return "(empty)"
	}

	if len(value) <= 3 {
		return strings.Repeat("*", len(value))
	}

	if len(value) <= 8 {
		return value[:1] + strings.Repeat("*", len(value)-2) + value[len(value)-1:]
	}

	return value[:3] + strings.Repeat("*", 8) + value[len(value)-2:]
}

// ValidateCommand checks that a command was given and is on PATH.
func ValidateCommand(command []string) error {
	if len(command) == 0 {
		return dserrors.UserError{
			Message:    "No command specified",
			Suggestion: "Provide a command after -- (e.g., secret-loader exec --env dev -- npm start)",
		}
	}

	if _, err := exec.LookPath(command[0]); err != nil {
		return dserrors.WrapCommandNotFound(command[0], err)
	}
	return nil
}

func orReader(r, def io.Reader) io.Reader {
	if r != nil {
		return r
	}
	return def
}

func orWriter(w, def io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return def
}
