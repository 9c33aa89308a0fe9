package fetch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/secret-loader/internal/config"
	"github.com/systmms/secret-loader/internal/envstore"
	dserrors "github.com/systmms/secret-loader/internal/errors"
	"github.com/systmms/secret-loader/internal/fetch"
	"github.com/systmms/secret-loader/internal/telemetry"
	"github.com/systmms/secret-loader/tests/testutil"
)

const (
	token  = "c2Vzc2lvbi10b2tlbg=="
	prodID = "55ce8907-9407-4514-bf09-b097012e798a"
	devID  = "a83af41a-dd02-4a64-b887-b09800deb316"
)

var bw testutil.BitwardenMockResponses

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{Root: t.TempDir()}
	require.NoError(t, cfg.Load())
	cfg.Definition.Credentials.File = ""
	cfg.Definition.Fetch.ItemIDs = []string{prodID, devID}
	return cfg
}

func credentialStore() *envstore.MapStore {
	return envstore.NewMap(testutil.CredentialEnv("user.client", "client-secret", "master-password"))
}

func TestPipeline_Run(t *testing.T) {
	t.Parallel()

	cfg := loadConfig(t)
	mock := testutil.NewBitwardenMock(token)
	mock.AddResponse("bw get item "+prodID, bw.NoteItem(prodID, "secrets.env", "A=1"))
	mock.AddResponse("bw get item "+devID, bw.NoteItem(devID, "dev-secrets.env", "A=2\nB=3"))

	store := credentialStore()
	metrics := telemetry.New()
	p, err := fetch.FromConfig(cfg, store, mock, fetch.WithMetrics(metrics))
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"secrets.env", "dev-secrets.env"}, res.Files)

	// credentials exported for the CLI
	v, _ := store.Get("BW_CLIENTID")
	assert.Equal(t, "user.client", v)
	v, _ = store.Get("BW_PASSWORD")
	assert.Equal(t, "master-password", v)

	assert.Equal(t, []string{
		"bw logout",
		"bw login --apikey",
		"bw unlock --passwordenv BW_PASSWORD",
		"bw get item " + prodID + " --session " + token,
		"bw get item " + devID + " --session " + token,
		"bw logout",
	}, mock.Calls())

	data, err := os.ReadFile(filepath.Join(cfg.SecretsDir(), "dev-secrets.env"))
	require.NoError(t, err)
	assert.Equal(t, "A=2\nB=3", string(data))

	ignore, err := os.ReadFile(filepath.Join(cfg.SecretsDir(), ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, ".gitignore\nsecrets.env\ndev-secrets.env\n", string(ignore))

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestPipeline_MissingCredentialsRunsNoSubprocess(t *testing.T) {
	t.Parallel()

	cfg := loadConfig(t)
	mock := testutil.NewBitwardenMock(token)
	store := envstore.NewMap(map[string]string{
		"TH_BW_CLIENT_ID": "user.client",
		"BW_PASSWORD":     "master-password",
	})

	p, err := fetch.FromConfig(cfg, store, mock)
	require.NoError(t, err)

	_, err = p.Run(context.Background())

	var missing dserrors.MissingCredentialsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, 0, mock.CallCount())
	_, exported := store.Get("BW_CLIENTID")
	assert.False(t, exported)
	_, statErr := os.Stat(cfg.SecretsDir())
	assert.True(t, os.IsNotExist(statErr))
}

func TestPipeline_FetchFailureLogsOutAndKeepsDirectory(t *testing.T) {
	t.Parallel()

	cfg := loadConfig(t)
	require.NoError(t, os.MkdirAll(cfg.SecretsDir(), 0700))
	previous := filepath.Join(cfg.SecretsDir(), "secrets.env")
	require.NoError(t, os.WriteFile(previous, []byte("OLD=1"), 0600))

	mock := testutil.NewBitwardenMock(token)
	mock.AddResponse("bw get item "+prodID, bw.NoteItem(prodID, "secrets.env", "A=1"))
	mock.AddErrorResponse("bw get item "+devID, "Not found.", 1)

	p, err := fetch.FromConfig(cfg, credentialStore(), mock)
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	var vaultErr dserrors.VaultCommandError
	require.ErrorAs(t, err, &vaultErr)

	calls := mock.Calls()
	assert.Equal(t, "bw logout", calls[len(calls)-1], "session must be logged out on failure")
	assert.Equal(t, 2, mock.CountPrefix("bw logout"))

	data, err := os.ReadFile(previous)
	require.NoError(t, err)
	assert.Equal(t, "OLD=1", string(data), "directory is only replaced after a successful fetch")
}

func TestPipeline_LoginFailureStillLogsOut(t *testing.T) {
	t.Parallel()

	cfg := loadConfig(t)
	mock := testutil.NewBitwardenMock(token)
	mock.AddErrorResponse("bw login --apikey", "client_id or client_secret is incorrect. Try again.", 1)

	p, err := fetch.FromConfig(cfg, credentialStore(), mock)
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"bw logout", "bw login --apikey", "bw logout"}, mock.Calls())
}

func TestPipeline_MalformedRecord(t *testing.T) {
	t.Parallel()

	cfg := loadConfig(t)
	cfg.Definition.Fetch.ItemIDs = []string{prodID}
	mock := testutil.NewBitwardenMock(token)
	mock.AddResponse("bw get item "+prodID, bw.NoteItem(prodID, "../escape.env", "A=1"))

	p, err := fetch.FromConfig(cfg, credentialStore(), mock)
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	var malformed dserrors.MalformedRecordError
	require.ErrorAs(t, err, &malformed)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(cfg.SecretsDir()), "escape.env"))
}

func TestPipeline_VerboseNeverLogsSecrets(t *testing.T) {
	t.Parallel()

	cfg := loadConfig(t)
	cfg.Definition.Fetch.ItemIDs = []string{prodID}
	mock := testutil.NewBitwardenMock(token)
	mock.AddResponse("bw get item "+prodID, bw.NoteItem(prodID, "secrets.env", "API_KEY=sk_live_123"))

	tl := testutil.NewTestLogger(t, true)
	p, err := fetch.FromConfig(cfg, credentialStore(), mock, fetch.WithLogger(tl.Logger), fetch.WithVerbose(true))
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.NoError(t, err)

	tl.AssertContains(t, "Logging in to vault")
	tl.AssertContains(t, "Added 'secrets.env'")
	tl.AssertNoSecrets(t, token, "sk_live_123", "master-password", "client-secret")
	tl.AssertLogCount(t, "error", 0)
	assert.Equal(t, "✓ Getting vault credentials", tl.Lines()[0])
}

func TestPipeline_CollectionMode(t *testing.T) {
	t.Parallel()

	const collectionID = "0b1c2d3e-4f50-6172-8394-a5b6c7d8e9f0"
	cfg := loadConfig(t)
	cfg.Definition.Fetch.Mode = "collection"
	cfg.Definition.Fetch.CollectionID = collectionID

	mock := testutil.NewBitwardenMock(token)
	mock.AddResponse("bw list items --collectionid "+collectionID, bw.NoteList(
		[3]string{"1", "secrets.env", "A=1"},
		[3]string{"2", "test-secrets.env", "T=1"},
	))

	p, err := fetch.FromConfig(cfg, credentialStore(), mock)
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"secrets.env", "test-secrets.env"}, res.Files)
}

func TestPipeline_CredentialsScrubbedFromVaultErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		command string
		stderr  string
		secret  string
	}{
		{"login echoes client secret", "bw login --apikey", "client_secret client-secret is incorrect", "client-secret"},
		{"login echoes client id", "bw login --apikey", "unknown client user.client", "user.client"},
		{"unlock echoes password", "bw unlock --passwordenv BW_PASSWORD", "Invalid master password master-password", "master-password"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := testutil.NewBitwardenMock(token)
			mock.AddErrorResponse(tt.command, tt.stderr, 1)

			p, err := fetch.FromConfig(loadConfig(t), credentialStore(), mock)
			require.NoError(t, err)

			_, err = p.Run(context.Background())
			var vaultErr dserrors.VaultCommandError
			require.ErrorAs(t, err, &vaultErr)
			testutil.AssertSecretRedacted(t, err.Error(), tt.secret)
			assert.NotContains(t, vaultErr.Stderr, tt.secret)
		})
	}
}
