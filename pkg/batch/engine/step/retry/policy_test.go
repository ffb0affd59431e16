package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	config "github.com/tigerroll/customer-import/pkg/batch/core/config"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
)

func TestPolicy_DisabledByDefault(t *testing.T) {
	p := NewPolicy(config.ItemRetryConfig{InitialInterval: 1000})
	err := exception.NewBatchError("writer", "deadlock", errors.New("deadlock"), false, true)

	assert.False(t, p.ShouldRetry(err))
	assert.Equal(t, 0, p.GetMaxAttempts())
}

func TestPolicy_ShouldRetry(t *testing.T) {
	p := NewPolicy(config.ItemRetryConfig{
		MaxAttempts:         3,
		InitialInterval:     250,
		RetryableExceptions: []string{exception.StorageErrorType},
	})

	assert.True(t, p.ShouldRetry(exception.NewBatchError("writer", "flagged", nil, false, true)))
	assert.True(t, p.ShouldRetry(exception.NewStorageError("writer", "42", errors.New("lock wait timeout"))))
	assert.False(t, p.ShouldRetry(exception.NewTransformError("processor", "bad dob", nil)))
	assert.False(t, p.ShouldRetry(context.Canceled))
	assert.False(t, p.ShouldRetry(nil))
	assert.Equal(t, 250*time.Millisecond, p.GetBackoffInterval(2))
}

func TestWait(t *testing.T) {
	assert.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
}
