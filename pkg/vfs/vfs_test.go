package vfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planethub/planethub/pkg/filestore/memory"
	"github.com/planethub/planethub/pkg/svcerr"
)

func TestParsePermission(t *testing.T) {
	t.Parallel()

	assert.Equal(t, PermRead|PermList, ParsePermission("rl"))
	assert.Equal(t, PermAll, ParsePermission("rwla"))
	assert.Equal(t, Permission(0), ParsePermission(""))
	assert.Equal(t, Permission(0), ParsePermission("0"))

	// Unknown characters are dropped.
	assert.Equal(t, PermRead, ParsePermission("rxq9"))

	assert.Equal(t, "0", Permission(0).String())
	assert.Equal(t, "rwla", PermAll.String())
	assert.Equal(t, "wl", (PermWrite | PermList).String())
}

func TestControlFileRoundTrip(t *testing.T) {
	t.Parallel()

	props := map[string]string{
		"owner":      "1001",
		"perms:1002": "rl",
		"prop:name":  "My Game",
	}
	decoded, err := parseControlFile(encodeControlFile(props))
	require.NoError(t, err)
	assert.Equal(t, props, decoded)

	_, err = parseControlFile([]byte("no separator here\n"))
	assert.Error(t, err)
}

func TestReadContentClassification(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := memory.New()
	_, err := store.PutFile(ctx, "a.dat", []byte("x"))
	require.NoError(t, err)
	_, err = store.CreateDirectory(ctx, "sub")
	require.NoError(t, err)
	_, err = store.PutFile(ctx, ControlFileName, []byte("owner=1001\n"))
	require.NoError(t, err)

	root := NewRoot(store)
	assert.False(t, root.WasRead())

	files := root.Files(ctx)
	require.Len(t, files, 1)
	assert.Equal(t, "a.dat", files[0].Name())
	assert.True(t, root.WasRead())
	assert.False(t, root.HasUnknownContent(ctx))
	assert.Equal(t, "1001", root.Owner(ctx))

	dirs := root.Dirs(ctx)
	require.Len(t, dirs, 1)
	assert.Equal(t, "sub", dirs[0].Name())

	// A stray dotfile marks the directory as having unknown content.
	_, err = store.PutFile(ctx, ".stray", []byte("?"))
	require.NoError(t, err)
	root.ForgetContent()
	assert.True(t, root.HasUnknownContent(ctx))
}

func TestCreateOnUnreadParentSharesNode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	root := NewRoot(memory.New())
	require.False(t, root.WasRead())

	// A child created before the parent is read must be the node every
	// later lookup sees, so metadata written through it stays visible.
	u, err := root.CreateDirectory(ctx, "u")
	require.NoError(t, err)
	assert.Same(t, u, root.Dir(ctx, "u"))

	require.NoError(t, u.SetPermission(ctx, "1002", "l"))
	assert.Equal(t, PermList, root.Dir(ctx, "u").PermissionsFor(ctx, "1002"))

	f, err := u.CreateFile(ctx, "f", []byte("x"))
	require.NoError(t, err)
	assert.Same(t, f, u.File(ctx, "f"))
}

func TestOwnerInheritance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	root := NewRoot(memory.New())
	u, err := root.CreateDirectory(ctx, "u")
	require.NoError(t, err)
	require.NoError(t, u.SetOwner(ctx, "1001"))

	sub, err := u.CreateDirectory(ctx, "sub")
	require.NoError(t, err)
	assert.Equal(t, "1001", sub.Owner(ctx))

	// Owner holds every flag; strangers none.
	assert.Equal(t, PermAll, sub.PermissionsFor(ctx, "1001"))
	assert.Equal(t, Permission(0), sub.PermissionsFor(ctx, "1002"))

	// Admin context holds every flag everywhere.
	assert.Equal(t, PermAll, sub.PermissionsFor(ctx, ""))
}

func TestPermissionPrecedence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	root := NewRoot(memory.New())
	d, err := root.CreateDirectory(ctx, "d")
	require.NoError(t, err)
	require.NoError(t, d.SetOwner(ctx, "1001"))
	require.NoError(t, d.SetPermission(ctx, "*", "l"))
	require.NoError(t, d.SetPermission(ctx, "1002", "rw"))

	// Per-user entry wins over the world entry.
	assert.Equal(t, PermRead|PermWrite, d.PermissionsFor(ctx, "1002"))
	assert.Equal(t, PermList, d.PermissionsFor(ctx, "1003"))

	assert.Equal(t, 2, d.VisibilityLevel(ctx))

	perms := d.Permissions(ctx)
	require.Len(t, perms, 2)
	assert.Equal(t, "*", perms[0].User)
	assert.Equal(t, "1002", perms[1].User)
}

func TestPropertySetEmptyKeepsKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	root := NewRoot(memory.New())
	d, err := root.CreateDirectory(ctx, "d")
	require.NoError(t, err)

	require.NoError(t, d.SetProperty(ctx, "name", "Foo"))
	v, ok := d.Property(ctx, "name")
	assert.True(t, ok)
	assert.Equal(t, "Foo", v)

	// Setting the empty value does not remove the key.
	require.NoError(t, d.SetProperty(ctx, "name", ""))
	v, ok = d.Property(ctx, "name")
	assert.True(t, ok)
	assert.Equal(t, "", v)

	// State survives a cache reset.
	d.ForgetContent()
	_, ok = d.Property(ctx, "name")
	assert.True(t, ok)
}

func TestSplitPath(t *testing.T) {
	t.Parallel()

	comps, err := SplitPath("a/b/c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, comps)

	comps, err = SplitPath("")
	require.NoError(t, err)
	assert.Empty(t, comps)

	for _, bad := range []string{"a//b", "/a", "a/", ".hidden", "a/.b", "a:b", "a\\b", "a/\x00"} {
		_, err := SplitPath(bad)
		assert.Error(t, err, "path %q", bad)
		assert.Equal(t, 400, svcerr.CodeOf(err))
	}
}

func TestResolverVisibility(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	root := NewRoot(memory.New())
	u, err := root.CreateDirectory(ctx, "u")
	require.NoError(t, err)
	require.NoError(t, u.SetOwner(ctx, "1001"))
	_, err = u.CreateFile(ctx, "present", []byte("hello"))
	require.NoError(t, err)
	require.NoError(t, root.SetPermission(ctx, "*", "l"))

	r := NewResolver(root, "1002")

	// No permission at all: everything inside u is hidden.
	_, err = r.File(ctx, "u/anything")
	assert.Equal(t, 403, svcerr.CodeOf(err))
	_, err = r.File(ctx, "u/present")
	assert.Equal(t, 403, svcerr.CodeOf(err))

	// With List, absence becomes observable.
	require.NoError(t, u.SetPermission(ctx, "1002", "l"))
	_, err = r.File(ctx, "u/anything")
	assert.Equal(t, 404, svcerr.CodeOf(err))
	_, err = r.File(ctx, "u/present")
	assert.Equal(t, 403, svcerr.CodeOf(err))

	// With Read, present files resolve.
	require.NoError(t, u.SetPermission(ctx, "1002", "r"))
	f, err := r.File(ctx, "u/present")
	require.NoError(t, err)
	data, err := f.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	// Missing intermediate directory: parent u is not listable for 1002
	// any more, so the component vanishes behind 403.
	_, err = r.File(ctx, "u/no/file")
	assert.Equal(t, 403, svcerr.CodeOf(err))

	// The owner sees a 404 instead.
	_, err = NewResolver(root, "1001").File(ctx, "u/no/file")
	assert.Equal(t, 404, svcerr.CodeOf(err))
}

func TestResolverStat(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	root := NewRoot(memory.New())
	d, err := root.CreateDirectory(ctx, "d")
	require.NoError(t, err)
	require.NoError(t, d.SetOwner(ctx, "1001"))
	_, err = d.CreateFile(ctx, "f", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, root.SetPermission(ctx, "*", "rl"))

	owner := NewResolver(root, "1001")
	f, dir, err := owner.Stat(ctx, "d/f")
	require.NoError(t, err)
	assert.Nil(t, dir)
	assert.Equal(t, "f", f.Name())

	f, dir, err = owner.Stat(ctx, "d")
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Equal(t, "d", dir.Name())

	// A directory STAT checks the target's own listability.
	_, _, err = NewResolver(root, "1002").Stat(ctx, "d")
	assert.Equal(t, 403, svcerr.CodeOf(err))
}
