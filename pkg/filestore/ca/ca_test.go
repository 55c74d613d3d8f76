package ca

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planethub/planethub/pkg/filestore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := newTestStore(t).Root()

	info, err := root.PutFile(ctx, "a.txt", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	assert.Len(t, info.ContentID, 40)

	data, err := root.GetFile(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestIdenticalContentSharesBlob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := newTestStore(t).Root()

	a, err := root.PutFile(ctx, "a", []byte("same"))
	require.NoError(t, err)
	b, err := root.PutFile(ctx, "b", []byte("same"))
	require.NoError(t, err)
	assert.Equal(t, a.ContentID, b.ContentID)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	sub, err := s.Root().CreateDirectory(ctx, "games")
	require.NoError(t, err)
	_, err = sub.PutFile(ctx, "pconfig.src", []byte("gamename = Foo"))
	require.NoError(t, err)

	reopened, err := Open(dir)
	require.NoError(t, err)
	sub2, err := reopened.Root().EnterDirectory(ctx, "games")
	require.NoError(t, err)
	data, err := sub2.GetFile(ctx, "pconfig.src")
	require.NoError(t, err)
	assert.Equal(t, "gamename = Foo", string(data))
}

func TestObjectCountAndGC(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	root := s.Root()

	dir1, err := root.CreateDirectory(ctx, "dir1")
	require.NoError(t, err)
	dir2, err := root.CreateDirectory(ctx, "dir2")
	require.NoError(t, err)

	_, err = dir1.PutFile(ctx, "a", []byte("hello"))
	require.NoError(t, err)
	_, err = dir2.PutFile(ctx, "a", []byte("hello"))
	require.NoError(t, err)

	// Live: one shared blob, the shared dir tree, the root tree, one commit.
	_, err = s.GC()
	require.NoError(t, err)
	count, err := s.ObjectCount()
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	// Diverge dir2: new blob, two distinct subtrees, root, commit.
	_, err = dir2.PutFile(ctx, "a", []byte("world"))
	require.NoError(t, err)
	_, err = s.GC()
	require.NoError(t, err)
	count, err = s.ObjectCount()
	require.NoError(t, err)
	assert.Equal(t, 6, count)

	// Converge again: back to a single shared subtree.
	_, err = dir1.PutFile(ctx, "a", []byte("world"))
	require.NoError(t, err)
	_, err = s.GC()
	require.NoError(t, err)
	count, err = s.ObjectCount()
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestCopyFileReusesObject(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	root := s.Root()

	src, err := root.CreateDirectory(ctx, "src")
	require.NoError(t, err)
	dst, err := root.CreateDirectory(ctx, "dst")
	require.NoError(t, err)

	put, err := src.PutFile(ctx, "f", []byte("content"))
	require.NoError(t, err)

	handled, err := dst.(*Handler).CopyFile(ctx, src, "f", "g")
	require.NoError(t, err)
	assert.True(t, handled)

	data, err := dst.GetFile(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	var copied filestore.FileInfo
	require.NoError(t, dst.List(ctx, func(e filestore.Entry) {
		if e.Name == "g" {
			copied = e.Info
		}
	}))
	assert.Equal(t, put.ContentID, copied.ContentID)
}

func TestCopyFileDeclinesForeignSource(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := newTestStore(t)
	b := newTestStore(t)

	handled, err := a.Root().CopyFile(ctx, b.Root(), "x", "y")
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestSnapshotsKeepObjectsLive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	root := s.Root()

	_, err := root.PutFile(ctx, "keep", []byte("old"))
	require.NoError(t, err)
	require.NoError(t, root.SnapCreate(ctx, "before"))

	_, err = root.PutFile(ctx, "keep", []byte("new"))
	require.NoError(t, err)

	_, err = s.GC()
	require.NoError(t, err)

	// Both generations survive: the snapshot pins the old blob.
	count, err := s.ObjectCount()
	require.NoError(t, err)
	assert.Equal(t, 6, count)

	names, err := root.SnapList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"before"}, names)

	require.NoError(t, root.SnapCopy(ctx, "before", "archived"))
	require.NoError(t, root.SnapRemove(ctx, "before"))
	names, err = root.SnapList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"archived"}, names)
}

func TestRemoveDirectoryRequiresEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := newTestStore(t).Root()

	sub, err := root.CreateDirectory(ctx, "d")
	require.NoError(t, err)
	_, err = sub.PutFile(ctx, "f", nil)
	require.NoError(t, err)

	err = root.RemoveDirectory(ctx, "d")
	assert.ErrorIs(t, err, filestore.ErrNotEmpty)

	require.NoError(t, sub.RemoveFile(ctx, "f"))
	require.NoError(t, root.RemoveDirectory(ctx, "d"))
}
