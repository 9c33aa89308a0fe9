package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/systmms/secret-loader/internal/credentials"
	"github.com/systmms/secret-loader/internal/envstore"
	dserrors "github.com/systmms/secret-loader/internal/errors"
	"github.com/systmms/secret-loader/internal/logging"
	"github.com/systmms/secret-loader/internal/shred"
	"github.com/systmms/secret-loader/internal/vault"
	pkgexec "github.com/systmms/secret-loader/pkg/exec"
)

// DefaultFileName is the optional configuration file at the project root.
const DefaultFileName = ".secret-loader.yaml"

// DefaultSecretsDir is the secrets directory name under the project root.
const DefaultSecretsDir = ".threshold-secrets"

// Config holds the runtime configuration
type Config struct {
	Path           string
	Root           string // project root; relative paths resolve against it
	Logger         *logging.Logger
	NonInteractive bool
	Definition     *Definition

	// Store and Executor default to the process environment and real
	// subprocesses when nil.
	Store    envstore.Store
	Executor pkgexec.CommandExecutor
}

// Definition represents the .secret-loader.yaml structure
type Definition struct {
	Version     int               `yaml:"version"`
	SecretsDir  string            `yaml:"secrets_dir"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Vault       VaultConfig       `yaml:"vault"`
	Fetch       FetchConfig       `yaml:"fetch"`
	Materialize MaterializeConfig `yaml:"materialize"`
	Load        LoadConfig        `yaml:"load"`
}

// CredentialsConfig selects the credential sources.
type CredentialsConfig struct {
	File            string `yaml:"file"`
	KeychainService string `yaml:"keychain_service,omitempty"`
}

// VaultConfig describes how the vault CLI is invoked.
type VaultConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"` // prefix args, e.g. ["bw"] for npx
	Sync    bool     `yaml:"sync"`
}

// FetchConfig selects the retrieval mode.
type FetchConfig struct {
	Mode         string   `yaml:"mode"`
	ItemIDs      []string `yaml:"item_ids,omitempty"`
	CollectionID string   `yaml:"collection_id,omitempty"`
}

// MaterializeConfig controls how the secrets directory is replaced.
type MaterializeConfig struct {
	ShredPrevious bool `yaml:"shred_previous"`
	ShredPasses   int  `yaml:"shred_passes"`
}

// LoadConfig holds loader defaults.
type LoadConfig struct {
	Override bool `yaml:"override"`
}

// Defaults returns the built-in configuration.
func Defaults() *Definition {
	return &Definition{
		SecretsDir: DefaultSecretsDir,
		Credentials: CredentialsConfig{
			File: "~/" + credentials.DefaultFileName,
		},
		Vault: VaultConfig{
			Command: vault.DefaultCommand,
		},
		Fetch: FetchConfig{
			Mode:    string(vault.ModeItemIDs),
			ItemIDs: append([]string(nil), vault.DefaultItemIDs...),
		},
		Materialize: MaterializeConfig{
			ShredPasses: 1,
		},
	}
}

// Load reads and validates the configuration file. A missing file yields the
// defaults.
func (c *Config) Load() error {
	def := Defaults()

	path := c.ResolvedPath()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, def); err != nil {
			return dserrors.ConfigError{
				Message:    fmt.Sprintf("invalid YAML syntax in %s", filepath.Base(path)),
				Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
			}
		}
		c.logger().Debug("Loaded configuration from %s", path)
	case os.IsNotExist(err):
		c.logger().Debug("No configuration file at %s, using defaults", path)
	default:
		return dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	if err := def.Validate(); err != nil {
		return err
	}

	c.Definition = def
	return nil
}

// ResolvedPath returns the configuration file path, relative to Root unless absolute.
func (c *Config) ResolvedPath() string {
	path := c.Path
	if path == "" {
		path = DefaultFileName
	}
	if filepath.IsAbs(path) || c.Root == "" {
		return path
	}
	return filepath.Join(c.Root, path)
}

// SecretsDir returns the absolute secrets directory.
func (c *Config) SecretsDir() string {
	dir := DefaultSecretsDir
	if c.Definition != nil && c.Definition.SecretsDir != "" {
		dir = c.Definition.SecretsDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.Root, dir)
}

// CredentialsFile returns the expanded credentials file path, or "" when the
// file source is disabled.
func (c *Config) CredentialsFile() (string, error) {
	if c.Definition == nil || c.Definition.Credentials.File == "" {
		return "", nil
	}
	return credentials.ExpandHome(c.Definition.Credentials.File)
}

// Env returns the environment store commands read from and load into.
func (c *Config) Env() envstore.Store {
	if c.Store == nil {
		c.Store = envstore.NewOS()
	}
	return c.Store
}

func (c *Config) logger() *logging.Logger {
	if c.Logger == nil {
		return logging.Discard()
	}
	return c.Logger
}

// Validate checks field values and cross-field constraints.
func (d *Definition) Validate() error {
	if d.Version != 0 {
		return dserrors.ConfigError{
			Field:      "version",
			Value:      d.Version,
			Message:    "unsupported configuration version",
			Suggestion: "Set 'version: 0' at the top of your " + DefaultFileName + " file",
		}
	}

	if d.SecretsDir != "" && strings.TrimSpace(d.SecretsDir) == "" {
		return dserrors.ConfigError{
			Field:   "secrets_dir",
			Message: "must not be blank",
		}
	}

	if strings.TrimSpace(d.Vault.Command) == "" {
		return dserrors.ConfigError{
			Field:      "vault.command",
			Message:    "vault command is required",
			Suggestion: "Use 'bw', or 'npx' with args: [bw]",
		}
	}

	switch vault.Mode(d.Fetch.Mode) {
	case vault.ModeItemIDs:
		if len(d.Fetch.ItemIDs) == 0 {
			return dserrors.ConfigError{
				Field:      "fetch.item_ids",
				Message:    "at least one item id is required in 'ids' mode",
				Suggestion: "List the vault item ids, or switch to mode: collection",
			}
		}
		for i, id := range d.Fetch.ItemIDs {
			if _, err := uuid.Parse(id); err != nil {
				return dserrors.ConfigError{
					Field:   fmt.Sprintf("fetch.item_ids[%d]", i),
					Value:   id,
					Message: "not a valid item id",
				}
			}
		}
	case vault.ModeCollection:
		if d.Fetch.CollectionID == "" {
			return dserrors.ConfigError{
				Field:      "fetch.collection_id",
				Message:    "collection id is required in 'collection' mode",
				Suggestion: "Find it with 'bw list collections'",
			}
		}
		if _, err := uuid.Parse(d.Fetch.CollectionID); err != nil {
			return dserrors.ConfigError{
				Field:   "fetch.collection_id",
				Value:   d.Fetch.CollectionID,
				Message: "not a valid collection id",
			}
		}
	default:
		return dserrors.ConfigError{
			Field:      "fetch.mode",
			Value:      d.Fetch.Mode,
			Message:    "unknown fetch mode",
			Suggestion: "Use 'ids' or 'collection'",
		}
	}

	if d.Materialize.ShredPrevious && (d.Materialize.ShredPasses < 1 || d.Materialize.ShredPasses > shred.MaxPasses) {
		return dserrors.ConfigError{
			Field:   "materialize.shred_passes",
			Value:   d.Materialize.ShredPasses,
			Message: fmt.Sprintf("must be between 1 and %d", shred.MaxPasses),
		}
	}

	return nil
}
