// Package userservice implements the user server: accounts, passwords,
// tokens and per-user key/value data over Redis, exposed through the
// RESP wire protocol.
package userservice

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/planethub/planethub/internal/ident"
	"github.com/planethub/planethub/pkg/config"
	"github.com/planethub/planethub/pkg/svcerr"
	"github.com/planethub/planethub/pkg/userdb"
)

// Service is the user service core.
type Service struct {
	db  *userdb.DB
	enc *CompositeEncrypter
	ids ident.Generator
	cfg config.UserConfig

	// now is the clock; tests replace it.
	now func() time.Time
}

// New composes the service: salted hashes as primary scheme, the classic
// keyed scheme kept for verification and upgrade of old records.
func New(db *userdb.DB, cfg config.UserConfig, ids ident.Generator) *Service {
	return &Service{
		db:  db,
		enc: NewCompositeEncrypter(NewSaltedEncrypter(ids), NewClassicEncrypter(cfg.Key)),
		ids: ids,
		cfg: cfg,
		now: time.Now,
	}
}

// Redis key layout.
func uidKey(name string) string     { return "uid:" + name }
func userKey(id, sub string) string { return "user:" + id + ":" + sub }

const uidCounterKey = "user:uid"

// Canonicalize derives the login name: lower-cased, everything except
// letters, digits and underscores stripped.
func Canonicalize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLower(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// errInvalidCredentials is the single answer to every login failure.
func errInvalidCredentials() error {
	return svcerr.Unauthorized("Invalid user or password")
}

// AddUser creates an account and returns its user id. The canonical
// name is claimed atomically; a lost race reports "already exists".
func (s *Service) AddUser(ctx context.Context, name, password string) (string, error) {
	canon := Canonicalize(name)
	if canon == "" {
		return "", svcerr.BadRequest("Invalid user name")
	}

	// Claim the name as blocked first; a crash between claim and
	// id assignment leaves a reserved name, never a half-made user.
	claimed, err := s.db.SetNX(ctx, uidKey(canon), "0")
	if err != nil {
		return "", err
	}
	if !claimed {
		return "", svcerr.AlreadyExists("User already exists")
	}

	seq, err := s.db.Incr(ctx, uidCounterKey)
	if err != nil {
		return "", err
	}
	id := formatID(seq)

	if err := s.db.Set(ctx, userKey(id, "name"), name); err != nil {
		return "", err
	}
	if err := s.db.Set(ctx, userKey(id, "password"), s.enc.Encrypt(password, id)); err != nil {
		return "", err
	}
	if err := s.db.Set(ctx, uidKey(canon), id); err != nil {
		return "", err
	}
	return id, nil
}

// DelUser tombstones an account: the canonical name is blocked, the
// password removed and all tokens revoked. The id is never re-used.
func (s *Service) DelUser(ctx context.Context, id string) error {
	name, err := s.screenName(ctx, id)
	if err != nil {
		return err
	}
	if canon := Canonicalize(name); canon != "" {
		if err := s.db.Set(ctx, uidKey(canon), "0"); err != nil {
			return err
		}
	}
	if err := s.db.Del(ctx, userKey(id, "password")); err != nil {
		return err
	}
	_, err = s.resetTokens(ctx, id, tokenTypeNames())
	return err
}

// Login verifies credentials and returns the user id. Legacy password
// hashes are transparently upgraded to the current scheme.
func (s *Service) Login(ctx context.Context, name, password string) (string, error) {
	id, err := s.lookup(ctx, name)
	if err != nil {
		return "", errInvalidCredentials()
	}
	hash, ok, err := s.db.Get(ctx, userKey(id, "password"))
	if err != nil {
		return "", err
	}
	if !ok || hash == "" {
		return "", errInvalidCredentials()
	}
	switch s.enc.Check(password, hash, id) {
	case ValidCurrent:
		return id, nil
	case ValidNeedUpdate:
		if err := s.db.Set(ctx, userKey(id, "password"), s.enc.Encrypt(password, id)); err != nil {
			return "", err
		}
		return id, nil
	default:
		return "", errInvalidCredentials()
	}
}

// lookup resolves a name to a live user id.
func (s *Service) lookup(ctx context.Context, name string) (string, error) {
	canon := Canonicalize(name)
	if canon == "" {
		return "", svcerr.NotFound("No such user")
	}
	id, ok, err := s.db.Get(ctx, uidKey(canon))
	if err != nil {
		return "", err
	}
	if !ok || id == "0" {
		return "", svcerr.NotFound("No such user")
	}
	return id, nil
}

// Lookup resolves a (screen or login) name to a user id.
func (s *Service) Lookup(ctx context.Context, name string) (string, error) {
	return s.lookup(ctx, name)
}

// screenName returns the display name of a user.
func (s *Service) screenName(ctx context.Context, id string) (string, error) {
	name, ok, err := s.db.Get(ctx, userKey(id, "name"))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", svcerr.NotFound("No such user")
	}
	return name, nil
}

// Name returns the display name of a user.
func (s *Service) Name(ctx context.Context, id string) (string, error) {
	return s.screenName(ctx, id)
}

// Names resolves display names for several ids; unknown ids come back
// empty instead of failing the batch.
func (s *Service) Names(ctx context.Context, ids []string) ([]string, error) {
	out := make([]string, len(ids))
	for i, id := range ids {
		name, ok, err := s.db.Get(ctx, userKey(id, "name"))
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = name
		}
	}
	return out, nil
}

// GetProfile reads one profile field ("" if unset).
func (s *Service) GetProfile(ctx context.Context, id, field string) (string, error) {
	v, _, err := s.db.HGet(ctx, userKey(id, "profile"), field)
	return v, err
}

// SetProfile writes one profile field, truncated to the configured limit.
func (s *Service) SetProfile(ctx context.Context, id, field, value string) error {
	if field == "" {
		return svcerr.BadRequest("Invalid field name")
	}
	if max := s.cfg.Profile.MaxValueSize; max > 0 && len(value) > max {
		value = value[:max]
	}
	return s.db.HSet(ctx, userKey(id, "profile"), field, value)
}

// SetPassword overwrites the stored password hash.
func (s *Service) SetPassword(ctx context.Context, id, password string) error {
	if _, err := s.screenName(ctx, id); err != nil {
		return err
	}
	return s.db.Set(ctx, userKey(id, "password"), s.enc.Encrypt(password, id))
}

// formatID renders a sequence number as a user id.
func formatID(seq int64) string {
	return strconv.FormatInt(seq, 10)
}
