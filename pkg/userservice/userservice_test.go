package userservice

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planethub/planethub/internal/ident"
	"github.com/planethub/planethub/internal/protocol/resp"
	"github.com/planethub/planethub/pkg/config"
	"github.com/planethub/planethub/pkg/svcerr"
	"github.com/planethub/planethub/pkg/userdb"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	srv := miniredis.RunT(t)
	db := userdb.NewWithClient(redis.NewClient(&redis.Options{Addr: srv.Addr()}))
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.UserConfig{
		Key: "pepper",
		Data: config.UserDataConfig{
			MaxKeySize:   10,
			MaxValueSize: 100,
			MaxTotalSize: 50,
		},
		Profile: config.ProfileConfig{MaxValueSize: 5},
	}
	return New(db, cfg, ident.NewCrypto())
}

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "joesmith", Canonicalize("Joe.Smith"))
	assert.Equal(t, "joe_smith", Canonicalize("Joe_Smith"))
	assert.Equal(t, "user42", Canonicalize("User 42!"))
	assert.Equal(t, "", Canonicalize("---"))
}

func TestPasswordScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	id, err := svc.AddUser(ctx, "joe", "secret")
	require.NoError(t, err)

	got, err := svc.Login(ctx, "joe", "secret")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	require.NoError(t, svc.SetPassword(ctx, id, "x"))

	_, err = svc.Login(ctx, "joe", "secret")
	assert.Equal(t, 401, svcerr.CodeOf(err))

	got, err = svc.Login(ctx, "joe", "x")
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestAddUserConflictsAndLookup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	id, err := svc.AddUser(ctx, "Joe Smith", "pw")
	require.NoError(t, err)

	// Different spellings of the same canonical name collide.
	_, err = svc.AddUser(ctx, "joe.smith", "pw")
	assert.Equal(t, 409, svcerr.CodeOf(err))

	got, err := svc.Lookup(ctx, "JOE SMITH")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	name, err := svc.Name(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Joe Smith", name)

	_, err = svc.Lookup(ctx, "nobody")
	assert.Equal(t, 404, svcerr.CodeOf(err))
}

func TestLoginUpgradesLegacyHash(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	id, err := svc.AddUser(ctx, "old", "pw")
	require.NoError(t, err)

	// Regress the stored hash to the classic scheme.
	classic := NewClassicEncrypter("pepper")
	require.NoError(t, svc.db.Set(ctx, userKey(id, "password"), classic.Encrypt("pw", id)))

	got, err := svc.Login(ctx, "old", "pw")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	// The record now carries a salted hash.
	hash, ok, err := svc.db.Get(ctx, userKey(id, "password"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(hash, "2,"))

	got, err = svc.Login(ctx, "old", "pw")
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestEncrypters(t *testing.T) {
	t.Parallel()

	classic := NewClassicEncrypter("key")
	h := classic.Encrypt("pass", "7")
	assert.True(t, strings.HasPrefix(h, "1,"))
	assert.True(t, classic.Check("pass", h, "7"))
	assert.False(t, classic.Check("wrong", h, "7"))

	salted := NewSaltedEncrypter(ident.NewCounter())
	h = salted.Encrypt("pass", "7")
	assert.True(t, strings.HasPrefix(h, "2,"))
	assert.True(t, salted.Check("pass", h, "7"))
	assert.False(t, salted.Check("pass", h, "8"))
	assert.False(t, salted.Check("wrong", h, "7"))

	comp := NewCompositeEncrypter(salted, classic)
	assert.Equal(t, ValidCurrent, comp.Check("pass", comp.Encrypt("pass", "7"), "7"))
	assert.Equal(t, ValidNeedUpdate, comp.Check("pass", classic.Encrypt("pass", "7"), "7"))
	assert.Equal(t, Invalid, comp.Check("nope", comp.Encrypt("pass", "7"), "7"))
}

func TestDeletedUserCannotLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	id, err := svc.AddUser(ctx, "gone", "pw")
	require.NoError(t, err)
	require.NoError(t, svc.DelUser(ctx, id))

	_, err = svc.Login(ctx, "gone", "pw")
	assert.Equal(t, 401, svcerr.CodeOf(err))
	_, err = svc.Lookup(ctx, "gone")
	assert.Equal(t, 404, svcerr.CodeOf(err))

	// The id is not re-used by the next account.
	id2, err := svc.AddUser(ctx, "fresh", "pw")
	require.NoError(t, err)
	assert.NotEqual(t, id, id2)
}

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	info, err := svc.GetToken(ctx, "9", "login")
	require.NoError(t, err)
	require.NotEmpty(t, info.Token)

	checked, err := svc.CheckToken(ctx, info.Token, "", false)
	require.NoError(t, err)
	assert.Equal(t, "9", checked.UserID)
	assert.Equal(t, "login", checked.Type)

	// A fresh token is re-used, not replaced.
	again, err := svc.GetToken(ctx, "9", "login")
	require.NoError(t, err)
	assert.Equal(t, info.Token, again.Token)

	// Type enforcement is opaque.
	_, err = svc.CheckToken(ctx, info.Token, "reset", false)
	assert.Equal(t, 401, svcerr.CodeOf(err))

	_, err = svc.GetToken(ctx, "9", "bogus")
	assert.Equal(t, 400, svcerr.CodeOf(err))
}

func TestTokenExpiryBoundary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	base := time.Now()
	svc.now = func() time.Time { return base }

	info, err := svc.GetToken(ctx, "9", "reset")
	require.NoError(t, err)

	// validUntil == now is expired.
	svc.now = func() time.Time { return info.ValidUntil }
	_, err = svc.CheckToken(ctx, info.Token, "", false)
	assert.Equal(t, 401, svcerr.CodeOf(err))

	// The token is gone for good, even when the clock rolls back.
	svc.now = func() time.Time { return base }
	_, err = svc.CheckToken(ctx, info.Token, "", false)
	assert.Equal(t, 401, svcerr.CodeOf(err))
}

func TestTokenRenewScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	base := time.Now()
	svc.now = func() time.Time { return base }

	info, err := svc.GetToken(ctx, "9", "login")
	require.NoError(t, err)

	// Age the token past the renewal threshold: remaining < 3 months.
	svc.now = func() time.Time { return base.Add(4 * 31 * 24 * time.Hour) }

	checked, err := svc.CheckToken(ctx, info.Token, "login", true)
	require.NoError(t, err)
	require.NotEmpty(t, checked.NewToken)
	assert.NotEqual(t, info.Token, checked.NewToken)

	// An immediate second renewal returns the same replacement.
	again, err := svc.CheckToken(ctx, info.Token, "login", true)
	require.NoError(t, err)
	assert.Equal(t, checked.NewToken, again.NewToken)
}

func TestResetTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	login, err := svc.GetToken(ctx, "9", "login")
	require.NoError(t, err)
	api, err := svc.GetToken(ctx, "9", "api")
	require.NoError(t, err)

	n, err := svc.ResetTokens(ctx, "9", []string{"login", "api", "reset"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = svc.CheckToken(ctx, login.Token, "", false)
	assert.Equal(t, 401, svcerr.CodeOf(err))
	_, err = svc.CheckToken(ctx, api.Token, "", false)
	assert.Equal(t, 401, svcerr.CodeOf(err))
}

func TestUserData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	require.NoError(t, svc.SetData(ctx, "9", "k", "hello"))
	v, err := svc.GetData(ctx, "9", "k")
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	// Key validation: length and printability.
	err = svc.SetData(ctx, "9", "12345678901", "v")
	assert.Equal(t, 400, svcerr.CodeOf(err))
	err = svc.SetData(ctx, "9", "", "v")
	assert.Equal(t, 400, svcerr.CodeOf(err))
	err = svc.SetData(ctx, "9", "a\x01b", "v")
	assert.Equal(t, 400, svcerr.CodeOf(err))
	require.NoError(t, svc.SetData(ctx, "9", "1234567890", "v"))
}

func TestUserDataEviction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	long := strings.Repeat("x", 20)

	// Each entry charges 2*1+20 = 22 units against the budget of 50.
	require.NoError(t, svc.SetData(ctx, "9", "a", long))
	require.NoError(t, svc.SetData(ctx, "9", "b", long))
	require.NoError(t, svc.SetData(ctx, "9", "c", long))

	// The least recently used key was evicted.
	v, err := svc.GetData(ctx, "9", "a")
	require.NoError(t, err)
	assert.Equal(t, "", v)
	v, err = svc.GetData(ctx, "9", "c")
	require.NoError(t, err)
	assert.Equal(t, long, v)
}

func TestUserDataOversizedSingleKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	big := strings.Repeat("y", 60)
	require.NoError(t, svc.SetData(ctx, "9", "big", big))

	// The just-written key survives even though it busts the budget.
	v, err := svc.GetData(ctx, "9", "big")
	require.NoError(t, err)
	assert.Equal(t, big, v)
}

func TestProfileFields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	require.NoError(t, svc.SetProfile(ctx, "9", "realname", "Joseph"))

	// Values are truncated to the configured limit.
	v, err := svc.GetProfile(ctx, "9", "realname")
	require.NoError(t, err)
	assert.Equal(t, "Josep", v)

	v, err = svc.GetProfile(ctx, "9", "unset")
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestHandlerDispatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)
	h := svc.NewHandler()

	do := func(verb string, args ...string) (resp.Value, error) {
		return h.Handle(ctx, resp.Command{Verb: verb, Args: args})
	}

	v, err := do("PING")
	require.NoError(t, err)
	assert.Equal(t, "PONG", v.Str())

	v, err = do("ADDUSER", "joe", "secret")
	require.NoError(t, err)
	id := v.Str()
	require.NotEmpty(t, id)

	v, err = do("LOGIN", "joe", "secret")
	require.NoError(t, err)
	assert.Equal(t, id, v.Str())

	v, err = do("MAKETOKEN", id, "api")
	require.NoError(t, err)
	token := v.Str()

	v, err = do("CHECKTOKEN", token, "TYPE", "api")
	require.NoError(t, err)
	items := v.Items()
	require.Len(t, items, 3)
	assert.Equal(t, id, items[0].Str())
	assert.Equal(t, "api", items[1].Str())

	_, err = do("CHECKTOKEN", token, "BOGUS")
	assert.Equal(t, 400, svcerr.CodeOf(err))

	_, err = do("NOSUCH")
	assert.Equal(t, 400, svcerr.CodeOf(err))
}
