package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planethub/planethub/pkg/filestore"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	h, err := New(t.TempDir())
	require.NoError(t, err)
	return h
}

func TestRoundTripAndList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newTestHandler(t)

	info, err := h.PutFile(ctx, "a.txt", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "a.txt", info.Name)
	assert.Equal(t, int64(5), info.Size)

	_, err = h.CreateDirectory(ctx, "sub")
	require.NoError(t, err)

	data, err := h.GetFile(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	entries := map[string]filestore.EntryType{}
	require.NoError(t, h.List(ctx, func(e filestore.Entry) {
		entries[e.Name] = e.Type
	}))
	assert.Equal(t, map[string]filestore.EntryType{
		"a.txt": filestore.EntryFile,
		"sub":   filestore.EntryDir,
	}, entries)
}

func TestSentinelErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newTestHandler(t)

	_, err := h.GetFile(ctx, "missing")
	assert.ErrorIs(t, err, filestore.ErrNotFound)

	assert.ErrorIs(t, h.RemoveFile(ctx, "missing"), filestore.ErrNotFound)

	_, err = h.EnterDirectory(ctx, "missing")
	assert.ErrorIs(t, err, filestore.ErrNotFound)

	sub, err := h.CreateDirectory(ctx, "sub")
	require.NoError(t, err)
	_, err = h.CreateDirectory(ctx, "sub")
	assert.ErrorIs(t, err, filestore.ErrExists)

	_, err = sub.PutFile(ctx, "f", []byte("x"))
	require.NoError(t, err)
	assert.ErrorIs(t, h.RemoveDirectory(ctx, "sub"), filestore.ErrNotEmpty)

	require.NoError(t, sub.RemoveFile(ctx, "f"))
	require.NoError(t, h.RemoveDirectory(ctx, "sub"))
}

func TestEnterFileIsNotDirectory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newTestHandler(t)

	_, err := h.PutFile(ctx, "f", []byte("x"))
	require.NoError(t, err)

	_, err = h.EnterDirectory(ctx, "f")
	assert.ErrorIs(t, err, filestore.ErrNotDirectory)
	_, err = h.GetFile(ctx, "f")
	require.NoError(t, err)
}

func TestUnknownEntryClassified(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	h, err := New(dir)
	require.NoError(t, err)

	// A dangling symlink is neither a file nor a directory.
	require.NoError(t, os.Symlink(filepath.Join(dir, "nowhere"), filepath.Join(dir, "dangling")))

	var unknown bool
	require.NoError(t, h.List(ctx, func(e filestore.Entry) {
		if e.Name == "dangling" {
			unknown = e.Type == filestore.EntryUnknown
		}
	}))
	assert.True(t, unknown)
}
