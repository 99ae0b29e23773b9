package snapd

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	t.Parallel()

	err := newError(KindReadFailed, nil, "snapd connection closed")
	assert.True(t, errors.Is(err, ErrReadFailed))
	assert.False(t, errors.Is(err, ErrWriteFailed))

	wrapped := fmt.Errorf("list snaps: %w", err)
	assert.True(t, errors.Is(wrapped, ErrReadFailed))
	assert.True(t, IsKind(wrapped, KindReadFailed))
	assert.False(t, IsKind(wrapped, KindFailed))

	// A non-sentinel target must not match on kind alone.
	other := newError(KindReadFailed, nil, "other")
	assert.False(t, errors.Is(err, other))
}

func TestError_CancelledUnwrapsToContext(t *testing.T) {
	t.Parallel()

	err := cancelledError(context.Canceled)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "operation was cancelled: context canceled", err.Error())
}

func TestError_Message(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "bad request", (&Error{Kind: KindBadRequest}).Error())
	assert.Equal(t, "no such snap", (&Error{Kind: KindFailed, Message: "no such snap"}).Error())
	assert.Equal(t, "kind(99)", ErrorKind(99).String())
}

func TestEnvelopeErr_FallsBackToStatusText(t *testing.T) {
	t.Parallel()

	err := envelopeErr(&envelope{Type: envelopeError, StatusCode: 500})
	assert.Equal(t, KindFailed, err.Kind)
	assert.Equal(t, "Internal Server Error", err.Message)
}
