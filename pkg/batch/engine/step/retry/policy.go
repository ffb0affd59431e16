// Package retry decides whether a failed item operation is attempted again.
package retry

import (
	"context"
	"errors"
	"time"

	config "github.com/tigerroll/customer-import/pkg/batch/core/config"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
)

// Policy defines item retry logic.
type Policy interface {
	// ShouldRetry reports whether err may be retried.
	ShouldRetry(err error) bool
	// GetBackoffInterval returns the wait before the given attempt (starting from 1).
	GetBackoffInterval(attempt int) time.Duration
	// GetMaxAttempts returns the maximum number of retries. 0 disables retry.
	GetMaxAttempts() int
}

// NewPolicy creates the default Policy from cfg.
func NewPolicy(cfg config.ItemRetryConfig) Policy {
	return &defaultPolicy{
		maxAttempts:         cfg.MaxAttempts,
		initialInterval:     time.Duration(cfg.InitialInterval) * time.Millisecond,
		retryableExceptions: cfg.RetryableExceptions,
	}
}

// defaultPolicy retries errors flagged retryable and errors whose type name is configured,
// waiting a fixed interval between attempts.
type defaultPolicy struct {
	maxAttempts         int
	initialInterval     time.Duration
	retryableExceptions []string
}

func (p *defaultPolicy) GetMaxAttempts() int {
	return p.maxAttempts
}

func (p *defaultPolicy) ShouldRetry(err error) bool {
	if err == nil || p.maxAttempts <= 0 {
		return false
	}
	// Cancellation is never retried.
	if errors.Is(err, context.Canceled) {
		return false
	}

	var be *exception.BatchError
	if errors.As(err, &be) && be.IsRetryable() {
		return true
	}
	for _, typeName := range p.retryableExceptions {
		if exception.IsErrorOfType(err, typeName) {
			return true
		}
	}
	return false
}

func (p *defaultPolicy) GetBackoffInterval(attempt int) time.Duration {
	return p.initialInterval
}

// Wait blocks for d or until ctx is done, whichever comes first.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ Policy = (*defaultPolicy)(nil)
