package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Project is a temporary project root with an optional secrets directory.
//
// Example usage:
//
//	p := NewProject(t)
//	p.WriteSecrets(map[string]string{"secrets.env": "A=1", "dev-secrets.env": "A=2"})
//	engine := precedence.New(p.SecretsDir(), store)
type Project struct {
	Root string
	t    *testing.T
}

// NewProject creates a project root marked by a go.mod file.
func NewProject(t *testing.T) *Project {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/app\n"), 0600))
	return &Project{Root: root, t: t}
}

// SecretsDir returns <root>/.threshold-secrets.
func (p *Project) SecretsDir() string {
	return filepath.Join(p.Root, ".threshold-secrets")
}

// WriteConfig writes .secret-loader.yaml.
func (p *Project) WriteConfig(yaml string) string {
	p.t.Helper()

	path := filepath.Join(p.Root, ".secret-loader.yaml")
	require.NoError(p.t, os.WriteFile(path, []byte(yaml), 0600))
	return path
}

// WriteSecrets creates the secrets directory with the given files.
func (p *Project) WriteSecrets(files map[string]string) {
	p.t.Helper()

	require.NoError(p.t, os.MkdirAll(p.SecretsDir(), 0700))
	for name, content := range files {
		require.NoError(p.t, os.WriteFile(filepath.Join(p.SecretsDir(), name), []byte(content), 0600))
	}
}
