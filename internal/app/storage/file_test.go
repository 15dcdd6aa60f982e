package storage

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_LoadMissing(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "users.json"))

	data, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestFileStore_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	s := NewFileStore(path)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, []byte(`{"a":1}`)))
	require.NoError(t, s.Save(ctx, []byte(`{}`)))

	data, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
	assert.Equal(t, "users.json", entries[0].Name())

	if runtime.GOOS != "windows" {
		fi, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
	}
}

func TestFileStore_SaveIntoMissingDirectory(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "nope", "users.json"))
	assert.Error(t, s.Save(context.Background(), []byte(`{}`)))
}

func TestFileStore_LoadUnreadable(t *testing.T) {
	// A directory where the file should be is a read error, not "missing".
	dir := t.TempDir()
	s := NewFileStore(dir)

	_, err := s.Load(context.Background())
	assert.Error(t, err)
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	s, err := NewStore(ctx, ServiceConfig{Driver: "file", FilePath: "users.json"})
	require.NoError(t, err)
	assert.Equal(t, "file:users.json", s.Describe())
	assert.NoError(t, s.Close())

	_, err = NewStore(ctx, ServiceConfig{Driver: "redis"})
	assert.Error(t, err)
}
