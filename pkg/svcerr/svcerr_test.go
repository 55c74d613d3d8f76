package svcerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormat(t *testing.T) {
	t.Parallel()

	err := New(404, "File not found")
	assert.Equal(t, "404 File not found", err.Error())
}

func TestCodeOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, CodeOf(nil))
	assert.Equal(t, 403, CodeOf(PermissionDenied()))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("disk on fire")))

	// Wrapped errors are unwrapped.
	wrapped := fmt.Errorf("resolving: %w", NotFound("File not found"))
	assert.Equal(t, 404, CodeOf(wrapped))
}

func TestWire(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "413 File too large", Wire(FileTooLarge()))
	assert.Equal(t, "500 Internal error", Wire(errors.New("open /x: EIO")))
}

func TestIsCode(t *testing.T) {
	t.Parallel()

	assert.True(t, IsCode(AlreadyExists("Already exists"), CodeAlreadyExists))
	assert.False(t, IsCode(errors.New("plain"), CodeInternal))
}
