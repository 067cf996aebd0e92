package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type kmsError struct {
	Provider string
}

func (e kmsError) Error() string { return e.Provider + " throttled" }

func TestWrap(t *testing.T) {
	t.Run("Success_KeepsChain", func(t *testing.T) {
		wrapped := Wrap(ErrNotFound, "tenant key not found")
		assert.Equal(t, "tenant key not found: not found", wrapped.Error())
		assert.ErrorIs(t, wrapped, ErrNotFound)
	})

	t.Run("Success_Nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, "ignored"))
		assert.NoError(t, Wrapf(nil, "ignored %d", 1))
	})

	t.Run("Success_Formatted", func(t *testing.T) {
		wrapped := Wrapf(ErrConflict, "version %d of %s", 3, "tenant-a")
		assert.Equal(t, "version 3 of tenant-a: conflict", wrapped.Error())
		assert.True(t, Is(wrapped, ErrConflict))
	})
}

func TestAs(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrUnavailable, kmsError{Provider: "awskms"})

	var target kmsError
	require.True(t, As(err, &target))
	assert.Equal(t, "awskms", target.Provider)
	assert.False(t, As(ErrNotFound, &target))
}

func TestKindAndCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
		code string
	}{
		{"not found", Wrap(ErrNotFound, "tenant key not found"), ErrNotFound, "not_found"},
		{"conflict", Wrap(ErrConflict, "audit sequence conflict"), ErrConflict, "conflict"},
		{"invalid input", Wrap(ErrInvalidInput, "invalid envelope"), ErrInvalidInput, "invalid_input"},
		{"unauthorized", ErrUnauthorized, ErrUnauthorized, "unauthorized"},
		{"forbidden", ErrForbidden, ErrForbidden, "forbidden"},
		{"unavailable", Wrap(ErrUnavailable, "kms unavailable"), ErrUnavailable, "unavailable"},
		{"locked", Wrap(ErrLocked, "audit ledger flagged"), ErrLocked, "locked"},
		{"locked wins over not found", Join(Wrap(ErrNotFound, "entry"), ErrLocked), ErrLocked, "locked"},
		{"plain", errors.New("connection reset"), nil, "internal_error"},
		{"nil", nil, nil, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, Kind(tt.err))
			assert.Equal(t, tt.code, Code(tt.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(Wrap(ErrUnavailable, "kms unavailable")))
	assert.False(t, Retryable(Wrap(ErrLocked, "kms key disabled")))
	assert.False(t, Retryable(nil))
}

func TestJoin(t *testing.T) {
	assert.NoError(t, Join(nil, nil))

	err := Join(ErrNotFound, nil, ErrConflict)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, ErrConflict)
}
