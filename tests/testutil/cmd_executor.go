// Package testutil provides testing utilities for secret-loader.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// MockCommandExecutor provides a configurable mock for the vault CLI.
type MockCommandExecutor struct {
	mu sync.Mutex

	// Responses maps command patterns to their mock responses.
	// Key format: "command arg1 arg2" (space-separated command and args).
	// The longest pattern that prefixes the executed command wins.
	Responses map[string]MockResponse

	// DefaultResponse is used when no matching pattern is found.
	DefaultResponse *MockResponse

	// RecordedCalls stores all calls made to Execute for verification.
	RecordedCalls []RecordedCall

	// StrictMode causes Execute to fail if no matching response is found.
	StrictMode bool
}

// MockResponse defines the expected output for a mocked command.
type MockResponse struct {
	Stdout []byte
	Stderr []byte
	Err    error
}

// RecordedCall stores information about a command execution.
type RecordedCall struct {
	Command string
	Args    []string
	Context context.Context
}

// Line returns the call as "command arg1 arg2".
func (c RecordedCall) Line() string {
	return buildKey(c.Command, c.Args)
}

// MockExitError mimics *exec.ExitError for a failed command.
type MockExitError struct {
	Code int
	Msg  string
}

func (e *MockExitError) Error() string {
	return fmt.Sprintf("exit status %d: %s", e.Code, e.Msg)
}

// ExitCode returns the simulated exit status.
func (e *MockExitError) ExitCode() int {
	return e.Code
}

// NewMockCommandExecutor creates a new mock executor with empty responses.
func NewMockCommandExecutor() *MockCommandExecutor {
	return &MockCommandExecutor{
		Responses:     make(map[string]MockResponse),
		RecordedCalls: make([]RecordedCall, 0),
	}
}

// Execute returns the mocked response for the given command.
func (m *MockCommandExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RecordedCalls = append(m.RecordedCalls, RecordedCall{
		Command: name,
		Args:    append([]string(nil), args...),
		Context: ctx,
	})

	key := buildKey(name, args)

	if resp, ok := m.Responses[key]; ok {
		return resp.Stdout, resp.Stderr, resp.Err
	}

	best := ""
	for pattern := range m.Responses {
		if strings.HasPrefix(key, pattern) && len(pattern) > len(best) {
			best = pattern
		}
	}
	if best != "" {
		resp := m.Responses[best]
		return resp.Stdout, resp.Stderr, resp.Err
	}

	if m.DefaultResponse != nil {
		return m.DefaultResponse.Stdout, m.DefaultResponse.Stderr, m.DefaultResponse.Err
	}

	if m.StrictMode {
		return nil, nil, fmt.Errorf("mock: no response configured for command: %s", key)
	}

	// Non-strict mode returns empty success
	return []byte{}, []byte{}, nil
}

func buildKey(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}

// AddResponse registers a mock response for a specific command pattern.
func (m *MockCommandExecutor) AddResponse(commandPattern string, response MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[commandPattern] = response
}

// AddJSONResponse is a convenience method to add a JSON response.
func (m *MockCommandExecutor) AddJSONResponse(commandPattern string, jsonData string) {
	m.AddResponse(commandPattern, MockResponse{Stdout: []byte(jsonData)})
}

// AddErrorResponse adds a failing response with the given stderr and exit code.
func (m *MockCommandExecutor) AddErrorResponse(commandPattern string, errMsg string, exitCode int) {
	m.AddResponse(commandPattern, MockResponse{
		Stdout: []byte{},
		Stderr: []byte(errMsg),
		Err:    &MockExitError{Code: exitCode, Msg: errMsg},
	})
}

// Calls returns every recorded call line in order.
func (m *MockCommandExecutor) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	lines := make([]string, 0, len(m.RecordedCalls))
	for _, call := range m.RecordedCalls {
		lines = append(lines, call.Line())
	}
	return lines
}

// CallCount returns the number of times Execute was called.
func (m *MockCommandExecutor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.RecordedCalls)
}

// CountPrefix returns how many recorded calls start with prefix.
func (m *MockCommandExecutor) CountPrefix(prefix string) int {
	n := 0
	for _, line := range m.Calls() {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls and responses.
func (m *MockCommandExecutor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = make(map[string]MockResponse)
	m.RecordedCalls = make([]RecordedCall, 0)
	m.DefaultResponse = nil
}

// BitwardenMockResponses provides pre-configured responses for the Bitwarden CLI.
type BitwardenMockResponses struct{}

// Unlock returns the output of a successful `bw unlock`.
func (BitwardenMockResponses) Unlock(token string) MockResponse {
	return MockResponse{
		Stdout: []byte(fmt.Sprintf(`Your vault is now unlocked!

To unlock your vault, set your session key to the `+"`BW_SESSION`"+` environment variable. ex:
$ export BW_SESSION="%[1]s"
> $env:BW_SESSION="%[1]s"

You can also pass the session key to any command with the `+"`--session`"+` option. ex:
$ bw list items --session %[1]s
`, token)),
	}
}

// Login returns the output of a successful `bw login --apikey`.
func (BitwardenMockResponses) Login() MockResponse {
	return MockResponse{Stdout: []byte("You are logged in!\n")}
}

// Logout returns the output of a successful `bw logout`.
func (BitwardenMockResponses) Logout() MockResponse {
	return MockResponse{Stdout: []byte("You have logged out.\n")}
}

// NoteItem returns a secure note item as printed by `bw get item`.
func (BitwardenMockResponses) NoteItem(id, name, notes string) MockResponse {
	return MockResponse{Stdout: mustJSON(noteItem(id, name, notes))}
}

// NoteList returns `bw list items` output for the given id/name/notes triples.
func (BitwardenMockResponses) NoteList(items ...[3]string) MockResponse {
	list := make([]map[string]interface{}, 0, len(items))
	for _, it := range items {
		list = append(list, noteItem(it[0], it[1], it[2]))
	}
	return MockResponse{Stdout: mustJSON(list)}
}

func noteItem(id, name, notes string) map[string]interface{} {
	return map[string]interface{}{
		"object":         "item",
		"id":             id,
		"organizationId": "org-1",
		"folderId":       nil,
		"type":           2,
		"name":           name,
		"notes":          notes,
		"collectionIds":  []string{"collection-1"},
		"revisionDate":   "2024-01-15T10:30:00.000Z",
		"secureNote":     map[string]int{"type": 0},
	}
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// NewBitwardenMock returns a strict mock where logout, login and unlock succeed
// with the given session token.
func NewBitwardenMock(token string) *MockCommandExecutor {
	m := NewMockCommandExecutor()
	m.StrictMode = true
	var bw BitwardenMockResponses
	m.AddResponse("bw logout", bw.Logout())
	m.AddResponse("bw login --apikey", bw.Login())
	m.AddResponse("bw unlock --passwordenv BW_PASSWORD", bw.Unlock(token))
	m.AddResponse("bw sync", MockResponse{Stdout: []byte("Syncing complete.\n")})
	return m
}
