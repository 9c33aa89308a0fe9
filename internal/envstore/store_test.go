package envstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/secret-loader/internal/envstore"
	"github.com/systmms/secret-loader/tests/testutil"
)

func TestMapStore_SnapshotIsCopy(t *testing.T) {
	t.Parallel()

	s := envstore.NewMap(map[string]string{"A": "1"})
	snap := s.Snapshot()
	require.NoError(t, s.Set("A", "2"))

	assert.Equal(t, "1", snap["A"])
	v, ok := s.Get("A")
	assert.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestMapStore_RestoreOnlyTouchesSnapshotKeys(t *testing.T) {
	t.Parallel()

	s := envstore.NewMap(map[string]string{"A": "1"})
	snap := s.Snapshot()

	require.NoError(t, s.Set("A", "changed"))
	require.NoError(t, s.Set("B", "new"))
	require.NoError(t, s.Restore(snap))

	a, _ := s.Get("A")
	b, ok := s.Get("B")
	assert.Equal(t, "1", a)
	assert.True(t, ok)
	assert.Equal(t, "new", b)
}

func TestMapStore_SetRejectsInvalidNames(t *testing.T) {
	t.Parallel()

	s := envstore.NewMap(nil)
	assert.Error(t, s.Set("", "x"))
	assert.Error(t, s.Set("A=B", "x"))
}

func TestMapStore_EnvironSorted(t *testing.T) {
	t.Parallel()

	s := envstore.NewMap(map[string]string{"B": "2", "A": "1", "C": "x=y"})
	assert.Equal(t, []string{"A=1", "B=2", "C=x=y"}, s.Environ())

	require.NoError(t, s.Unset("B"))
	_, ok := s.Get("B")
	assert.False(t, ok)
}

func TestOSStore_SetGetRestore(t *testing.T) {
	testutil.SetupTestEnv(t, map[string]string{"SECRET_LOADER_STORE_TEST": "before"})

	s := envstore.NewOS()
	snap := s.Snapshot()
	require.NoError(t, s.Set("SECRET_LOADER_STORE_TEST", "after"))

	v, ok := s.Get("SECRET_LOADER_STORE_TEST")
	require.True(t, ok)
	assert.Equal(t, "after", v)

	require.NoError(t, s.Restore(snap))
	v, _ = s.Get("SECRET_LOADER_STORE_TEST")
	assert.Equal(t, "before", v)
}

func TestOSStore_UnsetRestoredAfterSnapshot(t *testing.T) {
	testutil.SetupTestEnv(t, testutil.CredentialEnv("user.client", "client-secret", "master-password"))

	s := envstore.NewOS()
	snap := s.Snapshot()
	require.NoError(t, s.Unset("TH_BW_PASSWORD"))
	_, ok := s.Get("TH_BW_PASSWORD")
	require.False(t, ok)

	require.NoError(t, s.Restore(snap))
	v, ok := s.Get("TH_BW_PASSWORD")
	assert.True(t, ok)
	assert.Equal(t, "master-password", v)
}
