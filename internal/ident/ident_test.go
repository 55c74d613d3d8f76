package ident

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounterSequence(t *testing.T) {
	t.Parallel()

	g := NewCounter()
	assert.Equal(t, "1", g.ID())
	assert.Equal(t, "2", g.ID())
	assert.Equal(t, "3", g.ID())
}

func TestCryptoShape(t *testing.T) {
	t.Parallel()

	g := NewCrypto()
	hexDigest := regexp.MustCompile(`^[0-9a-f]{40}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := g.ID()
		assert.Regexp(t, hexDigest, id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestCryptoIndependentInstances(t *testing.T) {
	t.Parallel()

	a, b := NewCrypto(), NewCrypto()
	assert.NotEqual(t, a.ID(), b.ID())
}
