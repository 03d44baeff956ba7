package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := NotFound("chat not found")

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrNotParticipant))

	wrapped := fmt.Errorf("load chat: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, CodeNotFound, CodeOf(wrapped))
}

func TestCodeOfUntypedIsInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
}

func TestFieldDetail(t *testing.T) {
	err := Mismatch("text_content", "text messages require text content")

	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, "text messages require text content", e.Fields["text_content"])
	assert.True(t, errors.Is(err, ErrContentMismatch))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("duplicate key")
	err := Conflict("chat already exists", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "duplicate key")
}
