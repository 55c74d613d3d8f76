package userservice

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/planethub/planethub/pkg/svcerr"
)

// Token lifetimes per type, in minutes: maximum age at creation and the
// remaining-lifetime threshold below which a renewal mints a new token.
type tokenLifetime struct {
	maxAge   time.Duration
	renewAge time.Duration
}

const minute = time.Minute

var tokenLifetimes = map[string]tokenLifetime{
	"login": {maxAge: 6 * 31 * 24 * 60 * minute, renewAge: 3 * 31 * 24 * 60 * minute},
	"api":   {maxAge: 6 * 31 * 24 * 60 * minute, renewAge: 3 * 31 * 24 * 60 * minute},
	"reset": {maxAge: 4 * 24 * 60 * minute, renewAge: 3 * 24 * 60 * minute},
}

func tokenTypeNames() []string {
	names := make([]string, 0, len(tokenLifetimes))
	for n := range tokenLifetimes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Token store keys.
const allTokensKey = "token:all"

func tokenKey(id string) string { return "token:t:" + id }

func userTokensKey(uid, typ string) string { return userKey(uid, "tokens:"+typ) }

// errTokenExpired is the single opaque answer to every token failure.
func errTokenExpired() error {
	return svcerr.Unauthorized("Token expired")
}

// TokenInfo is the result of a token check or creation.
type TokenInfo struct {
	Token      string
	UserID     string
	Type       string
	ValidUntil time.Time

	// NewToken is set when a renewal minted a replacement.
	NewToken string
}

// GetToken returns a live token for (user, type), re-using the freshest
// stored one when it still has enough lifetime and minting a new one
// otherwise. Expired tokens encountered on the way are deleted.
func (s *Service) GetToken(ctx context.Context, uid, typ string) (TokenInfo, error) {
	life, ok := tokenLifetimes[typ]
	if !ok {
		return TokenInfo{}, svcerr.BadRequest("Invalid token type")
	}
	now := s.now()

	ids, err := s.db.SMembers(ctx, userTokensKey(uid, typ))
	if err != nil {
		return TokenInfo{}, err
	}

	var best string
	var bestUntil time.Time
	for _, id := range ids {
		until, ok, err := s.tokenValidUntil(ctx, id)
		if err != nil {
			return TokenInfo{}, err
		}
		if !ok || !until.After(now) {
			if err := s.deleteToken(ctx, id, uid, typ); err != nil {
				return TokenInfo{}, err
			}
			continue
		}
		if until.After(bestUntil) {
			best, bestUntil = id, until
		}
	}

	if best != "" && !bestUntil.Before(now.Add(life.renewAge)) {
		return TokenInfo{Token: best, UserID: uid, Type: typ, ValidUntil: bestUntil}, nil
	}
	return s.createToken(ctx, uid, typ, now.Add(life.maxAge))
}

// createToken mints a unique token. Write order matters: the metadata
// record first, then the per-user set, the global set last, so that a
// creation that crashes halfway never yields a checkable token.
func (s *Service) createToken(ctx context.Context, uid, typ string, until time.Time) (TokenInfo, error) {
	var id string
	for {
		id = s.ids.ID()
		member, err := s.db.SIsMember(ctx, allTokensKey, id)
		if err != nil {
			return TokenInfo{}, err
		}
		if !member {
			break
		}
	}

	err := s.db.HSet(ctx, tokenKey(id),
		"user", uid,
		"type", typ,
		"validuntil", strconv.FormatInt(until.Unix(), 10))
	if err != nil {
		return TokenInfo{}, err
	}
	if err := s.db.SAdd(ctx, userTokensKey(uid, typ), id); err != nil {
		return TokenInfo{}, err
	}
	if err := s.db.SAdd(ctx, allTokensKey, id); err != nil {
		return TokenInfo{}, err
	}
	return TokenInfo{Token: id, UserID: uid, Type: typ, ValidUntil: until}, nil
}

// deleteToken removes a token: global set first, then the per-user set,
// then the record, so a partial deletion is invisible to CheckToken.
func (s *Service) deleteToken(ctx context.Context, id, uid, typ string) error {
	if err := s.db.SRem(ctx, allTokensKey, id); err != nil {
		return err
	}
	if err := s.db.SRem(ctx, userTokensKey(uid, typ), id); err != nil {
		return err
	}
	return s.db.Del(ctx, tokenKey(id))
}

// tokenValidUntil reads a token's expiry. ok=false means the record is
// missing or unreadable.
func (s *Service) tokenValidUntil(ctx context.Context, id string) (time.Time, bool, error) {
	v, ok, err := s.db.HGet(ctx, tokenKey(id), "validuntil")
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	return time.Unix(sec, 0), true, nil
}

// CheckToken validates a token, optionally enforcing a type and renewing
// it when its remaining lifetime has dropped below the threshold. Every
// failure is the same opaque error.
func (s *Service) CheckToken(ctx context.Context, token, requiredType string, renew bool) (TokenInfo, error) {
	member, err := s.db.SIsMember(ctx, allTokensKey, token)
	if err != nil {
		return TokenInfo{}, err
	}
	if !member {
		return TokenInfo{}, errTokenExpired()
	}

	meta, err := s.db.HGetAll(ctx, tokenKey(token))
	if err != nil {
		return TokenInfo{}, err
	}
	uid, typ := meta["user"], meta["type"]
	life, known := tokenLifetimes[typ]
	if uid == "" || !known {
		return TokenInfo{}, errTokenExpired()
	}
	if requiredType != "" && typ != requiredType {
		return TokenInfo{}, errTokenExpired()
	}

	sec, err := strconv.ParseInt(meta["validuntil"], 10, 64)
	if err != nil {
		return TokenInfo{}, errTokenExpired()
	}
	until := time.Unix(sec, 0)
	now := s.now()
	if !until.After(now) {
		if err := s.deleteToken(ctx, token, uid, typ); err != nil {
			return TokenInfo{}, err
		}
		return TokenInfo{}, errTokenExpired()
	}

	info := TokenInfo{Token: token, UserID: uid, Type: typ, ValidUntil: until}
	if renew && until.Before(now.Add(life.renewAge)) {
		fresh, err := s.GetToken(ctx, uid, typ)
		if err != nil {
			return TokenInfo{}, err
		}
		info.NewToken = fresh.Token
	}
	return info, nil
}

// ResetTokens revokes all tokens of the given types for a user and
// returns how many were removed.
func (s *Service) ResetTokens(ctx context.Context, uid string, types []string) (int, error) {
	return s.resetTokens(ctx, uid, types)
}

func (s *Service) resetTokens(ctx context.Context, uid string, types []string) (int, error) {
	count := 0
	for _, typ := range types {
		if _, ok := tokenLifetimes[typ]; !ok {
			return 0, svcerr.BadRequest("Invalid token type")
		}
		ids, err := s.db.SMembers(ctx, userTokensKey(uid, typ))
		if err != nil {
			return 0, err
		}
		for _, id := range ids {
			if err := s.deleteToken(ctx, id, uid, typ); err != nil {
				return 0, err
			}
			count++
		}
	}
	return count, nil
}
