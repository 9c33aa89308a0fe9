// Package credentials resolves the Bitwarden API key and master password used
// by a fetch, from the credentials file, the OS keychain or the environment.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/systmms/secret-loader/internal/envstore"
	dserrors "github.com/systmms/secret-loader/internal/errors"
	"github.com/systmms/secret-loader/internal/logging"
)

// DefaultFileName is the credentials file looked up in the user's home directory.
const DefaultFileName = ".threshold-secrets.json"

// Variable names. The TH_* names are project specific and win over the
// names the Bitwarden CLI itself reads.
const (
	EnvClientID     = "TH_BW_CLIENT_ID"
	EnvClientSecret = "TH_BW_CLIENT_SECRET"
	EnvPassword     = "TH_BW_PASSWORD"

	CLIClientID     = "BW_CLIENTID"
	CLIClientSecret = "BW_CLIENTSECRET"
	CLIPassword     = "BW_PASSWORD"
)

// Source records where a credential set came from.
type Source string

const (
	SourceFile     Source = "file"
	SourceKeychain Source = "keychain"
	SourceEnv      Source = "environment"
)

// Credentials is the complete set needed to log in and unlock the vault.
type Credentials struct {
	ClientID     string `json:"TH_BW_CLIENT_ID"`
	ClientSecret string `json:"TH_BW_CLIENT_SECRET"`
	Password     string `json:"TH_BW_PASSWORD"`
}

// Missing returns the primary variable names of the unset fields.
func (c Credentials) Missing() []string {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, EnvClientID)
	}
	if c.ClientSecret == "" {
		missing = append(missing, EnvClientSecret)
	}
	if c.Password == "" {
		missing = append(missing, EnvPassword)
	}
	return missing
}

// Complete reports whether all three fields are set.
func (c Credentials) Complete() bool {
	return len(c.Missing()) == 0
}

func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{ClientID:%s ClientSecret:%s Password:%s}",
		logging.Secret(c.ClientID), logging.Secret(c.ClientSecret), logging.Secret(c.Password))
}

func (c Credentials) GoString() string {
	return c.String()
}

// Values returns the secret values, for scrubbing subprocess output.
func (c Credentials) Values() []string {
	return []string{c.ClientID, c.ClientSecret, c.Password}
}

const fileSchema = `{
  "type": "object",
  "required": ["TH_BW_CLIENT_ID", "TH_BW_CLIENT_SECRET", "TH_BW_PASSWORD"],
  "properties": {
    "TH_BW_CLIENT_ID":     {"type": "string", "minLength": 1},
    "TH_BW_CLIENT_SECRET": {"type": "string", "minLength": 1},
    "TH_BW_PASSWORD":      {"type": "string", "minLength": 1}
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(fileSchema)

// ReadFile reads a credentials file. Any failure, including a missing file,
// is reported as a ParseError.
func ReadFile(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		reason := "cannot read file"
		if errors.Is(err, os.ErrNotExist) {
			reason = "file does not exist"
		}
		return Credentials{}, dserrors.ParseError{Path: path, Reason: reason, Err: err}
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return Credentials{}, dserrors.ParseError{Path: path, Reason: "invalid JSON", Err: err}
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return Credentials{}, dserrors.ParseError{Path: path, Reason: strings.Join(problems, "; ")}
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, dserrors.ParseError{Path: path, Reason: "invalid JSON", Err: err}
	}
	return creds, nil
}

// DefaultFilePath returns ~/.threshold-secrets.json.
func DefaultFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, DefaultFileName), nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Resolver finds credentials and exports them for the vault CLI.
type Resolver struct {
	filePath string
	keychain KeychainReader
	env      envstore.Store
	logger   *logging.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFile overrides the credentials file path. An empty path disables the file source.
func WithFile(path string) Option {
	return func(r *Resolver) { r.filePath = path }
}

// WithKeychain enables the OS keychain source.
func WithKeychain(k KeychainReader) Option {
	return func(r *Resolver) { r.keychain = k }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a resolver reading fallbacks from and exporting into env.
func NewResolver(env envstore.Store, opts ...Option) *Resolver {
	r := &Resolver{
		env:    env,
		logger: logging.Discard(),
	}
	if path, err := DefaultFilePath(); err == nil {
		r.filePath = path
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns a complete credential set or MissingCredentialsError. On
// success the values are exported as BW_CLIENTID, BW_CLIENTSECRET and
// BW_PASSWORD.
func (r *Resolver) Resolve(ctx context.Context) (Credentials, Source, error) {
	creds, source, err := r.lookup(ctx)
	if err != nil {
		return Credentials{}, "", err
	}

	exports := [][2]string{
		{CLIClientID, creds.ClientID},
		{CLIClientSecret, creds.ClientSecret},
		{CLIPassword, creds.Password},
	}
	for _, kv := range exports {
		if err := r.env.Set(kv[0], kv[1]); err != nil {
			return Credentials{}, "", fmt.Errorf("failed to export %s: %w", kv[0], err)
		}
	}
	return creds, source, nil
}

func (r *Resolver) lookup(ctx context.Context) (Credentials, Source, error) {
	if r.filePath != "" {
		creds, err := ReadFile(r.filePath)
		if err == nil {
			r.logger.Debug("Using credentials from '%s'", r.filePath)
			return creds, SourceFile, nil
		}
		r.logger.Debug("Credentials file not usable, falling back: %v", err)
	}

	if r.keychain != nil {
		creds, err := r.keychain.Read(ctx)
		switch {
		case err == nil && creds.Complete():
			r.logger.Debug("Using credentials from the OS keychain")
			return creds, SourceKeychain, nil
		case err != nil:
			r.logger.Debug("Keychain not usable, falling back: %v", err)
		}
	}

	creds := Credentials{
		ClientID:     r.firstSet(EnvClientID, CLIClientID),
		ClientSecret: r.firstSet(EnvClientSecret, CLIClientSecret),
		Password:     r.firstSet(EnvPassword, CLIPassword),
	}
	if missing := creds.Missing(); len(missing) > 0 {
		return Credentials{}, "", dserrors.MissingCredentialsError{Missing: missing}
	}
	r.logger.Debug("Using credentials from environment variables")
	return creds, SourceEnv, nil
}

func (r *Resolver) firstSet(names ...string) string {
	for _, name := range names {
		if v, ok := r.env.Get(name); ok && v != "" {
			return v
		}
	}
	return ""
}
