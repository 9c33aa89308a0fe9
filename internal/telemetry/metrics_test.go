package telemetry_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/secret-loader/internal/telemetry"
)

func TestMetrics_RecordFetch(t *testing.T) {
	t.Parallel()

	m := telemetry.New()
	m.RecordFetch(time.Now(), 4, nil)
	m.RecordFetch(time.Now(), 0, errors.New("boom"))

	expected := `
# HELP secret_loader_fetch_total Total number of fetch runs
# TYPE secret_loader_fetch_total counter
secret_loader_fetch_total{result="failure"} 1
secret_loader_fetch_total{result="success"} 1
# HELP secret_loader_records_fetched Number of secret records written by the last fetch
# TYPE secret_loader_records_fetched gauge
secret_loader_records_fetched 4
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"secret_loader_fetch_total", "secret_loader_records_fetched"))
}

func TestMetrics_RecordLoad(t *testing.T) {
	t.Parallel()

	m := telemetry.New()
	m.RecordLoad("development", 2, nil)
	m.RecordLoad("development", 1, nil)
	m.RecordLoad("production", 0, errors.New("no dir"))

	count, err := testutil.GatherAndCount(m.Registry(), "secret_loader_load_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	expected := `
# HELP secret_loader_files_loaded_total Total number of secrets files applied by loads
# TYPE secret_loader_files_loaded_total counter
secret_loader_files_loaded_total{environment="development"} 3
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"secret_loader_files_loaded_total"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *telemetry.Metrics
	assert.NotPanics(t, func() {
		m.RecordFetch(time.Now(), 1, nil)
		m.RecordVaultCommand("login", nil)
		m.RecordLoad("production", 1, nil)
	})
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	t.Parallel()

	m := telemetry.New()
	m.RecordVaultCommand("unlock", nil)

	path := filepath.Join(t.TempDir(), "secret_loader.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `secret_loader_vault_commands_total{command="unlock",result="success"} 1`)
}

func TestMetrics_NewWithExternalRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := telemetry.NewWith(reg)
	m.RecordLoad("staging", 3, nil)

	expected := `
# HELP secret_loader_files_loaded_total Total number of secrets files applied by loads
# TYPE secret_loader_files_loaded_total counter
secret_loader_files_loaded_total{environment="staging"} 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "secret_loader_files_loaded_total"))

	assert.Nil(t, m.Registry())
	assert.Error(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
	assert.Panics(t, func() { telemetry.NewWith(reg) })
}
