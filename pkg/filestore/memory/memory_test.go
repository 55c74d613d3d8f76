package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planethub/planethub/pkg/filestore"
)

func TestRoundTripAndIsolation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := New()

	_, err := h.PutFile(ctx, "a", []byte("hello"))
	require.NoError(t, err)

	// Stored content is copied both ways.
	data, err := h.GetFile(ctx, "a")
	require.NoError(t, err)
	data[0] = 'X'
	again, err := h.GetFile(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(again))
}

func TestListOrderAndTypes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := New()

	_, err := h.PutFile(ctx, "b.txt", []byte("x"))
	require.NoError(t, err)
	_, err = h.PutFile(ctx, "a.txt", []byte("xy"))
	require.NoError(t, err)
	_, err = h.CreateDirectory(ctx, "sub")
	require.NoError(t, err)

	var names []string
	var types []filestore.EntryType
	require.NoError(t, h.List(ctx, func(e filestore.Entry) {
		names = append(names, e.Name)
		types = append(types, e.Type)
	}))
	assert.Equal(t, []string{"a.txt", "b.txt", "sub"}, names)
	assert.Equal(t, []filestore.EntryType{filestore.EntryFile, filestore.EntryFile, filestore.EntryDir}, types)
}

func TestSentinelErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := New()

	_, err := h.GetFile(ctx, "missing")
	assert.ErrorIs(t, err, filestore.ErrNotFound)
	assert.ErrorIs(t, h.RemoveFile(ctx, "missing"), filestore.ErrNotFound)

	sub, err := h.CreateDirectory(ctx, "sub")
	require.NoError(t, err)
	_, err = h.CreateDirectory(ctx, "sub")
	assert.ErrorIs(t, err, filestore.ErrExists)

	_, err = h.PutFile(ctx, "sub", []byte("x"))
	assert.ErrorIs(t, err, filestore.ErrIsDirectory)

	_, err = sub.PutFile(ctx, "f", []byte("x"))
	require.NoError(t, err)
	assert.ErrorIs(t, h.RemoveDirectory(ctx, "sub"), filestore.ErrNotEmpty)

	_, err = h.PutFile(ctx, "file", nil)
	require.NoError(t, err)
	_, err = h.EnterDirectory(ctx, "file")
	assert.ErrorIs(t, err, filestore.ErrNotDirectory)
	assert.ErrorIs(t, h.RemoveDirectory(ctx, "file"), filestore.ErrNotDirectory)
}

func TestSharedTreeConsistency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := New()

	sub, err := h.CreateDirectory(ctx, "games")
	require.NoError(t, err)
	_, err = sub.PutFile(ctx, "player1.rst", []byte("turn"))
	require.NoError(t, err)

	// Entering through the root sees the same directory object.
	entered, err := h.EnterDirectory(ctx, "games")
	require.NoError(t, err)
	data, err := entered.GetFile(ctx, "player1.rst")
	require.NoError(t, err)
	assert.Equal(t, "turn", string(data))
}
