package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("message without cause", func(t *testing.T) {
		err := New(ErrCodeValidation, "Please enter some text")
		assert.Equal(t, "[VALIDATION_ERROR] Please enter some text", err.Error())
		assert.Nil(t, err.Unwrap())
	})

	t.Run("message with cause", func(t *testing.T) {
		cause := stderrors.New("dial tcp: connection refused")
		err := Wrap(cause, ErrCodeTransport, "generation service unreachable")
		assert.Equal(t, "[TRANSPORT_ERROR] generation service unreachable: dial tcp: connection refused", err.Error())
		assert.ErrorIs(t, err, cause)
	})
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("submit: %w", New(ErrCodeInProgress, "busy"))

	assert.Equal(t, ErrCodeInProgress, CodeOf(wrapped))
	assert.True(t, Is(wrapped, ErrCodeInProgress))
	assert.False(t, Is(wrapped, ErrCodeTimeout))
	assert.Equal(t, ErrCodeInternal, CodeOf(stderrors.New("plain")))
	assert.Equal(t, "busy", MessageOf(wrapped))
	assert.Equal(t, "plain", MessageOf(stderrors.New("plain")))
	assert.Equal(t, "", MessageOf(nil))
}
