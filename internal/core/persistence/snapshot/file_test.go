package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "saves", "world.yaml")
	fs := NewFileStore(path, false)

	_, err := fs.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSave)

	require.NoError(t, fs.Save(ctx, []byte("first")))
	require.NoError(t, fs.Save(ctx, []byte("second")))

	data, err := fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	_, err = os.Stat(fs.BackupPath())
	assert.True(t, os.IsNotExist(err))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files left behind")
}

func TestFileStore_KeepBackup(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "world.yaml")
	fs := NewFileStore(path, true)

	require.NoError(t, fs.Save(ctx, []byte("first")))
	require.NoError(t, fs.Save(ctx, []byte("second")))

	backup, err := os.ReadFile(fs.BackupPath())
	require.NoError(t, err)
	assert.Equal(t, "first", string(backup))
}

func TestFileStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fs := NewFileStore(filepath.Join(t.TempDir(), "world.yaml"), false)
	assert.ErrorIs(t, fs.Save(ctx, []byte("x")), context.Canceled)
	_, err := fs.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileStore_BackupLeavesSaveInPlace(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "world.yaml")
	fs := NewFileStore(path, true)

	for _, data := range []string{"first", "second", "third"} {
		require.NoError(t, fs.Save(ctx, []byte(data)))
	}

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "third", string(current))

	backup, err := os.ReadFile(fs.BackupPath())
	require.NoError(t, err)
	assert.Equal(t, "second", string(backup))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "staged backup or temp files left behind")
}

// A crash while rotating can leave only the backup on disk. Load must still
// find it, and later saves must not rotate it away.
func TestFileStore_LoadFallsBackToBackup(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "world.yaml")
	fs := NewFileStore(path, true)

	require.NoError(t, fs.Save(ctx, []byte("first")))
	require.NoError(t, fs.Save(ctx, []byte("second")))
	require.NoError(t, os.Rename(path, fs.BackupPath()))

	data, err := fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	require.NoError(t, fs.Save(ctx, []byte("third")))
	backup, err := os.ReadFile(fs.BackupPath())
	require.NoError(t, err)
	assert.Equal(t, "second", string(backup))

	data, err = fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "third", string(data))
}
