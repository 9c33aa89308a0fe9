package testutil

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/systmms/secret-loader/internal/logging"
)

// TestLogger captures the output of a real logging.Logger for validation.
//
// Example usage:
//
//	tl := NewTestLogger(t, true)
//	pipeline, err := fetch.FromConfig(cfg, store, mock, fetch.WithLogger(tl.Logger))
//	...
//	tl.AssertNoSecrets(t, token, password)
type TestLogger struct {
	Logger *logging.Logger

	mu  sync.Mutex
	buf *bytes.Buffer
}

type lockedWriter struct {
	tl *TestLogger
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.tl.mu.Lock()
	defer w.tl.mu.Unlock()
	return w.tl.buf.Write(p)
}

// NewTestLogger creates an uncolored logger writing to memory.
func NewTestLogger(t *testing.T, debug bool) *TestLogger {
	t.Helper()

	tl := &TestLogger{buf: &bytes.Buffer{}}
	tl.Logger = logging.NewWithWriter(lockedWriter{tl}, debug, true)
	return tl
}

// GetOutput returns everything logged so far.
func (l *TestLogger) GetOutput() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

// AssertContains asserts that the log output contains substr.
func (l *TestLogger) AssertContains(t *testing.T, substr string) {
	t.Helper()
	assert.Contains(t, l.GetOutput(), substr, "Expected log output to contain %q", substr)
}

// AssertNoSecrets asserts that none of the values appear in the log output.
func (l *TestLogger) AssertNoSecrets(t *testing.T, secrets ...string) {
	t.Helper()
	output := l.GetOutput()
	for _, secret := range secrets {
		assert.NotContains(t, output, secret, "Secret %q leaked into log output", secret)
	}
}

// AssertLogCount asserts how often a level appears.
//
// Level markers:
//   - info: "✓"
//   - warn: "⚠"
//   - error: "✗"
//   - debug: "[DEBUG]"
func (l *TestLogger) AssertLogCount(t *testing.T, level string, count int) {
	t.Helper()

	var marker string
	switch level {
	case "info":
		marker = "✓"
	case "warn":
		marker = "⚠"
	case "error":
		marker = "✗"
	case "debug":
		marker = "[DEBUG]"
	default:
		t.Fatalf("Unknown log level: %s", level)
	}

	actual := strings.Count(l.GetOutput(), marker)
	assert.Equal(t, count, actual, "Expected %d %s log messages, got %d", count, level, actual)
}

// Lines returns the non-empty log lines.
func (l *TestLogger) Lines() []string {
	lines := strings.Split(l.GetOutput(), "\n")
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			result = append(result, line)
		}
	}
	return result
}
