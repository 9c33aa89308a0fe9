package execenv

import (
	"bytes"
	"context"
	"os/exec"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/systmms/secret-loader/internal/errors"
	"github.com/systmms/secret-loader/internal/logging"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestMaskValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", "(empty)"},
		{"single_char", "a", "*"},
		{"three_chars", "abc", "***"},
		{"four_chars", "abcd", "a**d"},
		{"eight_chars", "abcdefgh", "a******h"},
		{"nine_chars", "abcdefghi", "abc********hi"},
		{"long_value", "mysupersecretpassword", "mys********rd"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, MaskValue(tt.input))
		})
	}
}

func TestValidateCommand(t *testing.T) {
	t.Parallel()

	var userErr dserrors.UserError
	require.ErrorAs(t, ValidateCommand(nil), &userErr)
	assert.Contains(t, userErr.Suggestion, "secret-loader exec")

	assert.Error(t, ValidateCommand([]string{"definitely-not-a-real-command-xyz"}))
}

func TestExec_PassesEnvironment(t *testing.T) {
	t.Parallel()
	requireShell(t)

	var stdout bytes.Buffer
	err := New(logging.Discard()).Exec(context.Background(), ExecOptions{
		Command: []string{"sh", "-c", "printf %s \"$API_KEY\""},
		Environ: []string{"API_KEY=from-secrets", "PATH=/usr/bin:/bin"},
		Stdout:  &stdout,
	})
	require.NoError(t, err)
	assert.Equal(t, "from-secrets", stdout.String())
}

func TestExec_PropagatesExitCode(t *testing.T) {
	t.Parallel()
	requireShell(t)

	err := New(nil).Exec(context.Background(), ExecOptions{
		Command: []string{"sh", "-c", "exit 7"},
		Environ: []string{"PATH=/usr/bin:/bin"},
	})

	var exitErr ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 7, exitErr.ExitCode())
}

func TestExec_PrintVarsMasksValues(t *testing.T) {
	t.Parallel()
	requireShell(t)

	var out bytes.Buffer
	executor := New(nil)
	executor.out = &out

	err := executor.Exec(context.Background(), ExecOptions{
		Command:   []string{"sh", "-c", "true"},
		Environ:   []string{"PATH=/usr/bin:/bin"},
		Loaded:    map[string]string{"DB_PASSWORD": "mysupersecretpassword"},
		PrintVars: true,
		Stdout:    &bytes.Buffer{},
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "DB_PASSWORD=mys********rd")
	assert.NotContains(t, out.String(), "mysupersecretpassword")
}
