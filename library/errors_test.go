package library

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "OutOfStock", Kind(fmt.Errorf("book 1: %w", ErrOutOfStock)))
	assert.Equal(t, "AlreadyReturned", Kind(fmt.Errorf("loan 2: %w", ErrAlreadyReturned)))
	assert.Equal(t, "Internal", Kind(errors.New("boom")))
}

func TestStoreErr(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := storeErr("take copy", cause)

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.True(t, Retryable(err))
	assert.Equal(t, "StoreUnavailable", Kind(err))

	cancelled := storeErr("take copy", context.Canceled)
	assert.False(t, Retryable(cancelled))
	assert.ErrorIs(t, cancelled, context.Canceled)
	assert.Equal(t, "Canceled", Kind(cancelled))

	expired := storeErr("take copy", context.DeadlineExceeded)
	assert.False(t, Retryable(expired))
	assert.ErrorIs(t, expired, context.DeadlineExceeded)
	assert.Equal(t, "Canceled", Kind(expired))
}

func TestExpiredDeadlineIsNotRetryable(t *testing.T) {
	db := tempDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()

	_, err := db.GetBook(ctx, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, Retryable(err))
	assert.Equal(t, "Canceled", Kind(err))
}
