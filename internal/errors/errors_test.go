package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	t.Run("wraps while preserving the chain", func(t *testing.T) {
		err := Wrap(ErrNotFound, "locker lookup failed")
		assert.True(t, Is(err, ErrNotFound))
		assert.Equal(t, "locker lookup failed: not found", err.Error())
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, "nothing"))
	})

	t.Run("double wrap keeps the sentinel", func(t *testing.T) {
		err := Wrap(Wrap(ErrInvalidInput, "bad card"), "add failed")
		assert.True(t, Is(err, ErrInvalidInput))
	})
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrNotFound, ErrConflict, ErrInvalidInput,
		ErrUnauthorized, ErrForbidden, ErrLocked, ErrTooManyRequests,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.False(t, Is(a, b))
		}
	}
}
