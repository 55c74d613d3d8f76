package userservice

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/planethub/planethub/internal/ident"
)

// CheckResult classifies a password check.
type CheckResult int

const (
	// Invalid means the password does not match.
	Invalid CheckResult = iota

	// ValidCurrent means the password matches the current scheme.
	ValidCurrent

	// ValidNeedUpdate means the password matches a legacy scheme and
	// should be re-hashed.
	ValidNeedUpdate
)

// Encrypter hashes and verifies passwords. The user id takes part in
// salted schemes; scheme prefixes keep hashes self-describing.
type Encrypter interface {
	Encrypt(password, userID string) string
	Check(password, hash, userID string) bool
}

// ClassicEncrypter is the legacy scheme: an unsalted MD5 over a fixed
// system key and the password, base64url-encoded without padding.
type ClassicEncrypter struct {
	key string
}

// NewClassicEncrypter creates the legacy encrypter with the system key.
func NewClassicEncrypter(key string) *ClassicEncrypter {
	return &ClassicEncrypter{key: key}
}

// Encrypt implements Encrypter.
func (e *ClassicEncrypter) Encrypt(password, _ string) string {
	sum := md5.Sum([]byte(e.key + password))
	return "1," + base64.RawURLEncoding.EncodeToString(sum[:])
}

// Check implements Encrypter.
func (e *ClassicEncrypter) Check(password, hash, userID string) bool {
	expected := e.Encrypt(password, userID)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(hash)) == 1
}

// SaltedEncrypter is the current scheme: SHA-1 over scheme tag, salt,
// user id and password, hex-encoded. Salts come from the injected
// identifier generator.
type SaltedEncrypter struct {
	salts ident.Generator
}

// NewSaltedEncrypter creates the salted encrypter.
func NewSaltedEncrypter(salts ident.Generator) *SaltedEncrypter {
	return &SaltedEncrypter{salts: salts}
}

func saltedHash(salt, userID, password string) string {
	sum := sha1.Sum([]byte("2," + salt + "," + userID + "," + password))
	return "2," + salt + "," + hex.EncodeToString(sum[:])
}

// Encrypt implements Encrypter.
func (e *SaltedEncrypter) Encrypt(password, userID string) string {
	return saltedHash(e.salts.ID(), userID, password)
}

// Check implements Encrypter.
func (e *SaltedEncrypter) Check(password, hash, userID string) bool {
	parts := strings.SplitN(hash, ",", 3)
	if len(parts) != 3 || parts[0] != "2" {
		return false
	}
	expected := saltedHash(parts[1], userID, password)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(hash)) == 1
}

// CompositeEncrypter pairs the current scheme with a legacy one. New
// hashes always use the primary; a password that only the secondary
// accepts reports ValidNeedUpdate so the caller re-hashes it.
type CompositeEncrypter struct {
	primary   Encrypter
	secondary Encrypter
}

// NewCompositeEncrypter creates the primary/secondary pair.
func NewCompositeEncrypter(primary, secondary Encrypter) *CompositeEncrypter {
	return &CompositeEncrypter{primary: primary, secondary: secondary}
}

// Encrypt hashes with the primary scheme.
func (e *CompositeEncrypter) Encrypt(password, userID string) string {
	return e.primary.Encrypt(password, userID)
}

// Check verifies against both schemes.
func (e *CompositeEncrypter) Check(password, hash, userID string) CheckResult {
	if e.primary.Check(password, hash, userID) {
		return ValidCurrent
	}
	if e.secondary != nil && e.secondary.Check(password, hash, userID) {
		return ValidNeedUpdate
	}
	return Invalid
}
