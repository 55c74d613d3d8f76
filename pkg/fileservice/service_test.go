package fileservice

import (
	"context"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planethub/planethub/internal/protocol/resp"
	"github.com/planethub/planethub/pkg/filestore/memory"
	"github.com/planethub/planethub/pkg/svcerr"
)

func newTestService() *Service {
	return New(memory.New(), 10*1024)
}

func TestPutGetRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.Mkdir(ctx, "", "d")
	require.NoError(t, err)
	_, err = svc.Put(ctx, "", "d/file.txt", []byte("content"))
	require.NoError(t, err)

	v, err := svc.Get(ctx, "", "d/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "content", v.Str())

	v, err = svc.Stat(ctx, "", "d/file.txt")
	require.NoError(t, err)
	items := v.Items()
	require.Len(t, items, 3)
	assert.Equal(t, "file", items[0].Str())
	assert.Equal(t, "file.txt", items[1].Str())
	assert.Equal(t, int64(7), items[2].Int())
}

func TestSizeLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := New(memory.New(), 8)

	_, err := svc.Put(ctx, "", "big", []byte("123456789"))
	assert.Equal(t, 413, svcerr.CodeOf(err))

	// Exactly at the limit is fine.
	_, err = svc.Put(ctx, "", "ok", []byte("12345678"))
	require.NoError(t, err)
	_, err = svc.Get(ctx, "", "ok")
	require.NoError(t, err)
}

func TestPermissionScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.MkdirAs(ctx, "", "u", "1001")
	require.NoError(t, err)
	_, err = svc.Put(ctx, "", "u/present", []byte("hello"))
	require.NoError(t, err)

	// Stranger sees nothing, not even absence.
	_, err = svc.Get(ctx, "1002", "u/anything")
	assert.Equal(t, 403, svcerr.CodeOf(err))
	_, err = svc.Get(ctx, "1002", "u/present")
	assert.Equal(t, 403, svcerr.CodeOf(err))

	// List permission reveals absence.
	_, err = svc.SetPerm(ctx, "", "u", "1002", "l")
	require.NoError(t, err)
	_, err = svc.Get(ctx, "1002", "u/anything")
	assert.Equal(t, 404, svcerr.CodeOf(err))

	// Read permission reveals content.
	_, err = svc.SetPerm(ctx, "", "u", "1002", "r")
	require.NoError(t, err)
	v, err := svc.Get(ctx, "1002", "u/present")
	require.NoError(t, err)
	assert.Equal(t, "hello", v.Str())

	// The owner can do everything.
	_, err = svc.Put(ctx, "1001", "u/own.txt", []byte("x"))
	require.NoError(t, err)
}

func TestSnoopScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService()

	for _, d := range []string{"d", "d2"} {
		_, err := svc.Mkdir(ctx, "", d)
		require.NoError(t, err)
	}

	_, err := svc.Put(ctx, "", "d/pconfig.src", []byte("gamename = Foo\n"))
	require.NoError(t, err)
	v, err := svc.PropGet(ctx, "", "d", "name")
	require.NoError(t, err)
	assert.Equal(t, "Foo", v.Str())

	_, err = svc.Copy(ctx, "", "d/pconfig.src", "d2/pconfig.src")
	require.NoError(t, err)
	v, err = svc.PropGet(ctx, "", "d2", "name")
	require.NoError(t, err)
	assert.Equal(t, "Foo", v.Str())
}

func TestRemove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.Mkdir(ctx, "", "d")
	require.NoError(t, err)
	_, err = svc.Put(ctx, "", "d/f", []byte("x"))
	require.NoError(t, err)

	// Non-empty directory cannot be removed with RM.
	_, err = svc.Remove(ctx, "", "d")
	assert.Equal(t, 409, svcerr.CodeOf(err))

	_, err = svc.Remove(ctx, "", "d/f")
	require.NoError(t, err)
	_, err = svc.Remove(ctx, "", "d")
	require.NoError(t, err)

	_, err = svc.Stat(ctx, "", "d")
	assert.Equal(t, 404, svcerr.CodeOf(err))
}

func TestRemoveTree(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.MkdirHier(ctx, "", "a/b/c")
	require.NoError(t, err)
	_, err = svc.Put(ctx, "", "a/b/f1", []byte("x"))
	require.NoError(t, err)
	_, err = svc.Put(ctx, "", "a/b/c/f2", []byte("y"))
	require.NoError(t, err)
	_, err = svc.PropSet(ctx, "", "a/b", "name", "Game")
	require.NoError(t, err)

	_, err = svc.RemoveTree(ctx, "", "a")
	require.NoError(t, err)
	_, err = svc.Stat(ctx, "", "a")
	assert.Equal(t, 404, svcerr.CodeOf(err))
}

func TestRemoveTreeChecksPermissions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.MkdirAs(ctx, "", "u", "1001")
	require.NoError(t, err)
	_, err = svc.MkdirAs(ctx, "", "u/locked", "1009")
	require.NoError(t, err)
	_, err = svc.SetPerm(ctx, "", "", "1001", "wl")
	require.NoError(t, err)

	// 1001 may write the root and owns u, but not u/locked, so the whole
	// operation fails before anything is deleted.
	_, err = svc.RemoveTree(ctx, "1001", "u")
	assert.Equal(t, 403, svcerr.CodeOf(err))
	_, err = svc.Stat(ctx, "", "u/locked")
	require.NoError(t, err)
}

func TestMkdirHier(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.MkdirHier(ctx, "", "x/y/z")
	require.NoError(t, err)

	// Idempotent over existing prefixes.
	_, err = svc.MkdirHier(ctx, "", "x/y/z")
	require.NoError(t, err)

	// A file in the way fails with 409.
	_, err = svc.Put(ctx, "", "x/y/file", []byte("x"))
	require.NoError(t, err)
	_, err = svc.MkdirHier(ctx, "", "x/y/file/deeper")
	assert.Equal(t, 409, svcerr.CodeOf(err))
}

func TestUsage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.MkdirHier(ctx, "", "d/sub")
	require.NoError(t, err)
	_, err = svc.Put(ctx, "", "d/small", []byte("x"))
	require.NoError(t, err)
	_, err = svc.Put(ctx, "", "d/big", make([]byte, 2049))
	require.NoError(t, err)

	v, err := svc.Usage(ctx, "", "d")
	require.NoError(t, err)
	items := v.Items()
	require.Len(t, items, 2)

	// d + sub + 2 files; d 1KB + sub 1KB + 1KB + 3KB.
	assert.Equal(t, int64(4), items[0].Int())
	assert.Equal(t, int64(6), items[1].Int())
}

func TestForgetAndFileTest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.Mkdir(ctx, "", "d")
	require.NoError(t, err)
	_, err = svc.Put(ctx, "", "d/f", []byte("x"))
	require.NoError(t, err)

	// Forget is silent even for missing paths.
	_, err = svc.Forget(ctx, "nonexistent/deep")
	require.NoError(t, err)
	_, err = svc.Forget(ctx, "d")
	require.NoError(t, err)

	v, err := svc.FileTest(ctx, "", []string{"d/f", "d/missing", "bad//path"})
	require.NoError(t, err)
	items := v.Items()
	require.Len(t, items, 3)
	assert.Equal(t, int64(1), items[0].Int())
	assert.Equal(t, int64(0), items[1].Int())
	assert.Equal(t, int64(0), items[2].Int())
}

func TestSnapshotUnavailable(t *testing.T) {
	t.Parallel()
	_, err := newTestService().SnapList(context.Background(), "")
	assert.Equal(t, 400, svcerr.CodeOf(err))
}

// makeKeyFile builds a registration key blob: 13 header words, two
// position-ciphered 25-byte labels, and the key id.
func makeKeyFile(registered bool, label1, label2 string, keyID uint32) []byte {
	data := make([]byte, 13*4+25+25+4)
	if registered {
		binary.LittleEndian.PutUint32(data, 1)
	}
	enc := func(off int, s string) {
		for i := 0; i < 25; i++ {
			c := byte(' ')
			if i < len(s) {
				c = s[i]
			}
			data[off+i] = c + byte(i+1)
		}
	}
	enc(13*4, label1)
	enc(13*4+25, label2)
	binary.LittleEndian.PutUint32(data[13*4+50:], keyID)
	return data
}

func TestListReg(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.MkdirHier(ctx, "", "games/alpha")
	require.NoError(t, err)
	_, err = svc.MkdirHier(ctx, "", "games/beta")
	require.NoError(t, err)
	_, err = svc.Put(ctx, "", "games/alpha/fizz.bin", makeKeyFile(true, "Joe", "j@example", 100))
	require.NoError(t, err)
	_, err = svc.Put(ctx, "", "games/beta/fizz.bin", makeKeyFile(true, "Joe", "j@example", 100))
	require.NoError(t, err)

	v, err := svc.ListReg(ctx, "", "games", ListRegOptions{})
	require.NoError(t, err)
	assert.Len(t, v.Items(), 2)

	v, err = svc.ListReg(ctx, "", "games", ListRegOptions{Unique: true})
	require.NoError(t, err)
	assert.Len(t, v.Items(), 1)

	v, err = svc.ListReg(ctx, "", "games", ListRegOptions{KeyID: 999})
	require.NoError(t, err)
	assert.Empty(t, v.Items())

	// STATREG reports the key record of one directory.
	v, err = svc.StatReg(ctx, "", "games/alpha")
	require.NoError(t, err)
	items := v.Items()
	require.Len(t, items, 6)
	assert.Equal(t, "games/alpha", items[0].Str())
	assert.Equal(t, "fizz.bin", items[1].Str())
	assert.Equal(t, int64(1), items[2].Int())
	assert.Equal(t, "Joe", items[3].Str())
	assert.Equal(t, int64(100), items[5].Int())
}

func TestStatGame(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.Mkdir(ctx, "", "g")
	require.NoError(t, err)
	_, err = svc.Put(ctx, "", "g/player1.rst", []byte("xxxxVER3.514"))
	require.NoError(t, err)
	_, err = svc.PropSet(ctx, "", "g", "game", "42")
	require.NoError(t, err)

	v, err := svc.StatGame(ctx, "", "g")
	require.NoError(t, err)
	items := v.Items()
	require.Len(t, items, 8)
	assert.Equal(t, "g", items[0].Str())
	assert.Equal(t, "42", items[2].Str())
	assert.Equal(t, "VER3.514", items[5].Str())
	require.Len(t, items[6].Items(), 1)

	// Not a game directory.
	_, err = svc.Mkdir(ctx, "", "empty")
	require.NoError(t, err)
	v, err = svc.StatGame(ctx, "", "empty")
	require.NoError(t, err)
	assert.Equal(t, resp.KindNull, v.Kind())
}

func TestHandlerDispatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService()
	h := svc.NewHandler()

	do := func(verb string, args ...string) (resp.Value, error) {
		return h.Handle(ctx, resp.Command{Verb: verb, Args: args})
	}

	v, err := do("PING")
	require.NoError(t, err)
	assert.Equal(t, "PONG", v.Str())

	v, err = do("HELP")
	require.NoError(t, err)
	assert.True(t, strings.Contains(v.Str(), "MKDIRHIER"))

	_, err = do("NOSUCH")
	assert.Equal(t, 400, svcerr.CodeOf(err))

	_, err = do("GET")
	assert.Equal(t, 400, svcerr.CodeOf(err))

	// USER switches the connection context.
	_, err = do("MKDIRAS", "u", "1001")
	require.NoError(t, err)
	_, err = do("USER", "1002")
	require.NoError(t, err)
	_, err = do("LS", "u")
	assert.Equal(t, 403, svcerr.CodeOf(err))
}

func TestListFormat(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.Mkdir(ctx, "", "d")
	require.NoError(t, err)
	_, err = svc.Mkdir(ctx, "", "d/sub")
	require.NoError(t, err)
	_, err = svc.Put(ctx, "", "d/file", []byte("x"))
	require.NoError(t, err)

	v, err := svc.List(ctx, "", "d")
	require.NoError(t, err)
	items := v.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "sub/", items[0].Str())
	assert.Equal(t, "file", items[1].Str())
}
