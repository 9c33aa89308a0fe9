package precedence_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/secret-loader/internal/envstore"
	dserrors "github.com/systmms/secret-loader/internal/errors"
	"github.com/systmms/secret-loader/internal/precedence"
	"github.com/systmms/secret-loader/internal/telemetry"
	"github.com/systmms/secret-loader/tests/testutil"
)

func secretsDir(t *testing.T, files map[string]string) string {
	t.Helper()
	project := testutil.NewProject(t)
	project.WriteSecrets(files)
	return project.SecretsDir()
}

func get(t *testing.T, store envstore.Store, key string) string {
	t.Helper()
	v, ok := store.Get(key)
	require.True(t, ok, "expected %s to be set", key)
	return v
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"prod", "production"},
		{"PROD", "production"},
		{"stg", "staging"},
		{"dev", "development"},
		{"test", "testing"},
		{"production", "production"},
		{"Staging", "staging"},
		{"development", "development"},
		{"testing", "testing"},
		{"qa", "qa"},
		{"QA", "qa"},
		{" dev", " dev"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			once := precedence.Normalize(tt.in)
			assert.Equal(t, tt.want, once)
			assert.Equal(t, once, precedence.Normalize(once), "normalize must be idempotent")
		})
	}
}

func TestIsKnown(t *testing.T) {
	t.Parallel()
	assert.True(t, precedence.IsKnown("dev"))
	assert.True(t, precedence.IsKnown("production"))
	assert.False(t, precedence.IsKnown("qa"))
}

func TestEngine_Scenario(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"secrets.env":     "A=1",
		"dev-secrets.env": "A=2\nB=3",
	}

	t.Run("development with override", func(t *testing.T) {
		t.Parallel()
		store := envstore.NewMap(nil)
		res, err := precedence.New(secretsDir(t, files), store).Load("development", true)
		require.NoError(t, err)

		assert.Equal(t, "2", get(t, store, "A"))
		assert.Equal(t, "3", get(t, store, "B"))
		assert.Equal(t, []string{"secrets.env", "dev-secrets.env"}, res.Files)
		assert.Equal(t, []string{"A", "B"}, res.Keys)
	})

	t.Run("production with override", func(t *testing.T) {
		t.Parallel()
		store := envstore.NewMap(nil)
		res, err := precedence.New(secretsDir(t, files), store).Load("production", true)
		require.NoError(t, err)

		assert.Equal(t, "1", get(t, store, "A"))
		_, ok := store.Get("B")
		assert.False(t, ok)
		assert.Equal(t, []string{"secrets.env"}, res.Files)
	})

	t.Run("dev alias without override keeps existing", func(t *testing.T) {
		t.Parallel()
		store := envstore.NewMap(map[string]string{"A": "9"})
		res, err := precedence.New(secretsDir(t, files), store).Load("dev", false)
		require.NoError(t, err)

		assert.Equal(t, "9", get(t, store, "A"))
		assert.Equal(t, "3", get(t, store, "B"))
		assert.Equal(t, "development", res.Environment)
		assert.Equal(t, []string{"A"}, res.Preserved)
	})
}

func TestEngine_MissingDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), ".threshold-secrets")
	store := envstore.NewMap(map[string]string{"KEEP": "1"})

	_, err := precedence.New(dir, store).Load("production", true)

	var notFound dserrors.SecretsDirectoryNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, dir, notFound.Dir)
	assert.Equal(t, []string{"KEEP=1"}, store.Environ())
}

func TestEngine_DirectoryIsAFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".threshold-secrets")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))

	_, err := precedence.New(path, envstore.NewMap(nil)).Plan("production")
	var notFound dserrors.SecretsDirectoryNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestEngine_OverlayWinsOverProduction(t *testing.T) {
	t.Parallel()

	dir := secretsDir(t, map[string]string{
		"secrets.env":          "DB=prod\nAPI=prod\nONLY_PROD=1",
		"prod-extra.env":       "API=prod-extra",
		"staging-secrets.env":  "DB=staging",
		"stg-cache.env":        "CACHE=stg",
		"test-secrets.env":     "DB=test",
		"testing-override.env": "DB=testing",
	})

	store := envstore.NewMap(nil)
	res, err := precedence.New(dir, store).Load("stg", true)
	require.NoError(t, err)

	assert.Equal(t, []string{"secrets.env", "prod-extra.env", "staging-secrets.env", "stg-cache.env"}, res.Files)
	assert.Equal(t, "staging", get(t, store, "DB"))
	assert.Equal(t, "prod-extra", get(t, store, "API"))
	assert.Equal(t, "stg", get(t, store, "CACHE"))
	assert.Equal(t, "1", get(t, store, "ONLY_PROD"))

	store = envstore.NewMap(nil)
	res, err = precedence.New(dir, store).Load("test", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"secrets.env", "prod-extra.env", "test-secrets.env", "testing-override.env"}, res.Files)
	assert.Equal(t, "testing", get(t, store, "DB"), "later file in enumeration order wins")
}

func TestEngine_NoOverrideKeepsEveryPreexistingKey(t *testing.T) {
	t.Parallel()

	dir := secretsDir(t, map[string]string{
		"secrets.env":     "A=1\nB=1\nC=1",
		"dev-secrets.env": "A=2\nD=2",
	})

	before := map[string]string{"A": "orig-a", "C": "", "PATH": "/bin"}
	store := envstore.NewMap(before)

	_, err := precedence.New(dir, store).Load("development", false)
	require.NoError(t, err)

	for key, value := range before {
		assert.Equal(t, value, get(t, store, key), "key %s changed", key)
	}
	assert.Equal(t, "1", get(t, store, "B"))
	assert.Equal(t, "2", get(t, store, "D"))
}

func TestEngine_UnknownEnvironmentLoadsProductionOnly(t *testing.T) {
	t.Parallel()

	dir := secretsDir(t, map[string]string{
		"secrets.env":     "A=1",
		"dev-secrets.env": "A=2",
	})

	store := envstore.NewMap(nil)
	res, err := precedence.New(dir, store).Load("qa", true)
	require.NoError(t, err)
	assert.Equal(t, "qa", res.Environment)
	assert.Equal(t, []string{"secrets.env"}, res.Files)
	assert.Equal(t, "1", get(t, store, "A"))
}

func TestEngine_MissingDefaultFileIsSkipped(t *testing.T) {
	t.Parallel()

	dir := secretsDir(t, map[string]string{"dev-secrets.env": "B=3"})

	store := envstore.NewMap(nil)
	res, err := precedence.New(dir, store).Load("dev", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"dev-secrets.env"}, res.Files)
	assert.Equal(t, "3", get(t, store, "B"))
}

func TestEngine_FileLoadedOnce(t *testing.T) {
	t.Parallel()

	dir := secretsDir(t, map[string]string{
		"secrets.env":            "A=1",
		"production-secrets.env": "A=2",
	})

	plan, err := precedence.New(dir, envstore.NewMap(nil)).Plan("production")
	require.NoError(t, err)
	assert.Equal(t, []string{"secrets.env", "production-secrets.env"}, plan.Production)
	assert.Empty(t, plan.Overlay)
}

func TestEngine_IgnoresNonEnvFiles(t *testing.T) {
	t.Parallel()

	dir := secretsDir(t, map[string]string{
		"secrets.env":  "A=1",
		".gitignore":   ".gitignore\nsecrets.env\n",
		"dev-notes.md": "not loaded",
	})
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "dev-dir.env"), 0700))

	plan, err := precedence.New(dir, envstore.NewMap(nil)).Plan("dev")
	require.NoError(t, err)
	assert.Equal(t, []string{"secrets.env"}, plan.Files())
}

func TestEngine_Idempotent(t *testing.T) {
	t.Parallel()

	dir := secretsDir(t, map[string]string{
		"secrets.env":     "A=1\nQUOTED=\"a b\"",
		"dev-secrets.env": "A=2\n# comment\nexport B=3",
	})

	store := envstore.NewMap(nil)
	engine := precedence.New(dir, store)

	_, err := engine.Load("dev", true)
	require.NoError(t, err)
	first := store.Environ()

	_, err = engine.Load("dev", true)
	require.NoError(t, err)
	assert.Equal(t, first, store.Environ())
	assert.Equal(t, "a b", get(t, store, "QUOTED"))
	assert.Equal(t, "3", get(t, store, "B"))
}

func TestEngine_RecordsMetrics(t *testing.T) {
	t.Parallel()

	dir := secretsDir(t, map[string]string{"secrets.env": "A=1"})
	m := telemetry.New()

	_, err := precedence.New(dir, envstore.NewMap(nil), precedence.WithMetrics(m)).Load("prod", true)
	require.NoError(t, err)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "secret_loader_load_total")
}

func TestEngine_ValuesAreLiteral(t *testing.T) {
	t.Parallel()

	dir := secretsDir(t, map[string]string{
		"secrets.env": "OTHER=x${HOME_LITERAL}y\nBASE=1\nREF=$BASE\n" +
			"QUOTED=\"p$ss${BASE}\"\nSINGLE='$HOME'\nTOKEN=ab$CD$ef",
	})

	store := envstore.NewMap(map[string]string{"BASE": "store"})
	_, err := precedence.New(dir, store).Load("prod", true)
	require.NoError(t, err)

	tests := []struct {
		key  string
		want string
	}{
		{"OTHER", "x${HOME_LITERAL}y"},
		{"REF", "$BASE"},
		{"QUOTED", "p$ss${BASE}"},
		{"SINGLE", "$HOME"},
		{"TOKEN", "ab$CD$ef"},
		{"BASE", "1"},
	}
	for _, tt := range tests {
		tt := tt
		assert.Equal(t, tt.want, get(t, store, tt.key), tt.key)
	}
}

func TestEngine_FailedLoadHasNoEffect(t *testing.T) {
	t.Parallel()

	for _, override := range []bool{true, false} {
		override := override
		t.Run(fmt.Sprintf("override=%t", override), func(t *testing.T) {
			t.Parallel()

			dir := secretsDir(t, map[string]string{
				"secrets.env":     "A=1\nNEW=1",
				"dev-secrets.env": "A=2\nmissing separator",
			})

			store := envstore.NewMap(map[string]string{"A": "original", "KEEP": "k"})
			before := store.Environ()

			res, err := precedence.New(dir, store).Load("dev", override)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "dev-secrets.env")
			assert.Empty(t, res.Files)

			assert.Equal(t, before, store.Environ())
			_, ok := store.Get("NEW")
			assert.False(t, ok)
		})
	}
}
