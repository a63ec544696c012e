package authstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExistsMissingDirectory(t *testing.T) {
	store := New(t.TempDir())
	assert.False(t, store.Exists("nope"))
}

func TestExistsEmptyDirectoryCountsAsAbsent(t *testing.T) {
	store := New(t.TempDir())

	_, err := store.Ensure("session-1")
	require.NoError(t, err)

	assert.False(t, store.Exists("session-1"))
}

func TestExistsWithMaterial(t *testing.T) {
	store := New(t.TempDir())

	dir, err := store.Ensure("session-1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "session.db"), []byte("x"), 0o644))

	assert.True(t, store.Exists("session-1"))
}

func TestLocationForIsStable(t *testing.T) {
	store := New("/var/lib/auth")
	assert.Equal(t, store.LocationFor("abc"), store.LocationFor("abc"))
	assert.NotEqual(t, store.LocationFor("abc"), store.LocationFor("def"))
}

func TestDeleteRemovesMaterial(t *testing.T) {
	store := New(t.TempDir())

	dir, err := store.Ensure("session-1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "session.db"), []byte("x"), 0o644))

	require.NoError(t, store.Delete("session-1"))
	assert.False(t, store.Exists("session-1"))

	// Deleting what is already gone is fine.
	assert.NoError(t, store.Delete("session-1"))
}

func TestMarkBackupWritesStamp(t *testing.T) {
	store := New(t.TempDir())

	require.NoError(t, store.MarkBackup("session-1"))

	data, err := os.ReadFile(filepath.Join(store.LocationFor("session-1"), ".last-connected"))
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}
