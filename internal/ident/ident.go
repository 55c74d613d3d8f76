// Package ident provides identifier generation for session IDs, tokens, and
// password salts.
//
// Two generators coexist: Counter produces small sequential IDs for tests
// and debugging; Crypto produces unpredictable hex digests for production
// tokens. Generators are composed at startup and passed in explicitly;
// nothing in this package keeps hidden global state.
package ident

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"sync"
	"time"
)

// Generator produces identifier strings. Implementations must never return
// an empty string and must be safe for concurrent use.
type Generator interface {
	ID() string
}

// Counter is a monotone base-10 counter generator for tests and debugging.
type Counter struct {
	mu sync.Mutex
	n  uint64
}

// NewCounter creates a counter generator starting at 1.
func NewCounter() *Counter {
	return &Counter{}
}

// ID returns the next counter value as a decimal string.
func (c *Counter) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return strconv.FormatUint(c.n, 10)
}

// Crypto generates identifiers by hashing a mutable state buffer seeded from
// the system entropy source plus startup time. Each call increments the
// state and returns the lowercase hex SHA-1 digest.
type Crypto struct {
	mu    sync.Mutex
	state [32]byte
}

// NewCrypto creates a cryptographically seeded generator.
func NewCrypto() *Crypto {
	g := &Crypto{}
	// rand.Read never fails on supported platforms; if the entropy source
	// is somehow unavailable the startup-time fold below still perturbs
	// the state.
	_, _ = rand.Read(g.state[:])
	var t [8]byte
	binary.LittleEndian.PutUint64(t[:], uint64(time.Now().UnixNano()))
	for i, b := range t {
		g.state[i] ^= b
	}
	return g
}

// ID increments the state buffer and returns hex(SHA-1(state)).
func (g *Crypto) ID() string {
	g.mu.Lock()
	for i := range g.state {
		g.state[i]++
		if g.state[i] != 0 {
			break
		}
	}
	sum := sha1.Sum(g.state[:])
	g.mu.Unlock()
	return hex.EncodeToString(sum[:])
}
