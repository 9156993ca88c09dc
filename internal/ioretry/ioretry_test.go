package ioretry_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/flowlock/flowlock/internal/ioretry"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	assert.True(t, ioretry.IsTransient(os.ErrNotExist))
	assert.True(t, ioretry.IsTransient(os.ErrPermission))
	assert.True(t, ioretry.IsTransient(errors.New("too many open files")))
	assert.False(t, ioretry.IsTransient(nil))
	assert.False(t, ioretry.IsTransient(errors.New("goal too short")))
}

func TestDo_SucceedsWithoutRetry(t *testing.T) {
	t.Parallel()

	calls := 0
	err := ioretry.Do(context.Background(), func() error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	calls := 0
	err := ioretry.Do(context.Background(), func() error {
		calls++
		if calls < 2 {
			return os.ErrNotExist
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_StopsAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := ioretry.Do(context.Background(), func() error {
		calls++
		return os.ErrNotExist
	})
	assert.Error(t, err)
	assert.Equal(t, ioretry.MaxAttempts+1, calls)
}

func TestDo_NonTransientNotRetried(t *testing.T) {
	t.Parallel()

	calls := 0
	sentinel := errors.New("validation failed")
	err := ioretry.Do(context.Background(), func() error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := ioretry.Do(ctx, func() error {
		calls++
		cancel()
		return os.ErrNotExist
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
