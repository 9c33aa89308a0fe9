package errors

import (
	"errors"
	"fmt"
	"strings"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// CommandError represents a command execution error
type CommandError struct {
	Command    string
	ExitCode   int
	Message    string
	Suggestion string
}

func (e CommandError) Error() string {
	msg := fmt.Sprintf("Command '%s' failed", e.Command)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit code: %d)", e.ExitCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// MissingCredentialsError is returned when neither the credentials file nor the
// environment yields a complete credential set. Missing holds the primary
// variable names of the unset fields.
type MissingCredentialsError struct {
	Missing []string
}

func (e MissingCredentialsError) Error() string {
	msg := "Unable to get all vault credentials from the credentials file or environment variables"
	if len(e.Missing) > 0 {
		msg += fmt.Sprintf(" (missing: %s)", strings.Join(e.Missing, ", "))
	}
	msg += "\n  💡 Set TH_BW_CLIENT_ID/BW_CLIENTID, TH_BW_CLIENT_SECRET/BW_CLIENTSECRET and TH_BW_PASSWORD/BW_PASSWORD, or create ~/.threshold-secrets.json"
	return msg
}

// VaultCommandError is returned when a vault CLI invocation fails, either by a
// non-zero exit or by producing no output where output was required.
type VaultCommandError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e VaultCommandError) Error() string {
	msg := fmt.Sprintf("vault command '%s' failed", e.Command)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit code: %d)", e.ExitCode)
	}
	switch {
	case e.Stderr != "":
		msg += ": " + e.Stderr
	case e.Err != nil:
		msg += ": " + e.Err.Error()
	}

	if suggestion := vaultSuggestion(e.Stderr); suggestion != "" {
		msg += "\n  💡 " + suggestion
	}

	return msg
}

func (e VaultCommandError) Unwrap() error {
	return e.Err
}

// vaultSuggestion returns helpful suggestions based on the bw CLI error output
func vaultSuggestion(stderr string) string {
	switch {
	case strings.Contains(stderr, "client_id or client_secret is incorrect"):
		return "Check the client id and secret of your Bitwarden API key"
	case strings.Contains(stderr, "Invalid master password"):
		return "Check TH_BW_PASSWORD/BW_PASSWORD"
	case strings.Contains(stderr, "Not found"):
		return "Verify the item exists. Use 'bw list items --search <name>' to search"
	case strings.Contains(stderr, "command not found"), strings.Contains(stderr, "executable file not found"):
		return "Install Bitwarden CLI: https://bitwarden.com/help/cli/"
	}
	return ""
}

// MalformedRecordError is returned when a retrieved vault record cannot be
// materialized as a secrets file.
type MalformedRecordError struct {
	ID     string
	Name   string
	Reason string
}

func (e MalformedRecordError) Error() string {
	ref := e.ID
	if ref == "" {
		ref = e.Name
	}
	return fmt.Sprintf("malformed vault record '%s': %s", ref, e.Reason)
}

// SecretsDirectoryNotFoundError is returned by the loader when fetch has not run.
type SecretsDirectoryNotFoundError struct {
	Dir string
}

func (e SecretsDirectoryNotFoundError) Error() string {
	return fmt.Sprintf("Unable to find secrets directory '%s'\n  💡 Fetch the secrets first: secret-loader fetch", e.Dir)
}

// ParseError is returned when the credentials file is absent or malformed.
type ParseError struct {
	Path   string
	Reason string
	Err    error
}

func (e ParseError) Error() string {
	msg := fmt.Sprintf("cannot parse '%s'", e.Path)
	if e.Reason != "" {
		msg += ": " + e.Reason
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e ParseError) Unwrap() error {
	return e.Err
}

// WrapCommandNotFound wraps command not found errors with helpful suggestions
func WrapCommandNotFound(command string, err error) error {
	suggestions := map[string]string{
		"bw":     "Install Bitwarden CLI: https://bitwarden.com/help/cli/",
		"npx":    "Install Node.js from https://nodejs.org/",
		"npm":    "Install Node.js from https://nodejs.org/",
		"node":   "Install Node.js from https://nodejs.org/",
		"go":     "Install Go from https://golang.org/",
		"docker": "Install Docker from https://docker.com/",
	}

	suggestion := suggestions[command]
	if suggestion == "" {
		suggestion = fmt.Sprintf("Make sure '%s' is installed and in your PATH", command)
	}

	msg := "command not found"
	if err != nil {
		msg += " (" + err.Error() + ")"
	}

	return CommandError{
		Command:    command,
		Message:    msg,
		Suggestion: suggestion,
	}
}

// IsNotFetched reports whether err signals that fetch has never run.
func IsNotFetched(err error) bool {
	var notFound SecretsDirectoryNotFoundError
	return errors.As(err, &notFound)
}
