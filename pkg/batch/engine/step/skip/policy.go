// Package skip decides whether a failed item is dropped instead of failing the step.
package skip

import (
	"errors"
	"sync"

	config "github.com/tigerroll/customer-import/pkg/batch/core/config"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
)

// Policy defines item skip logic. Implementations are shared by all chunk workers of a step
// and must be safe for concurrent use.
type Policy interface {
	// ShouldSkip reports whether err is skippable, ignoring the limit.
	ShouldSkip(err error) bool
	// TrySkip consumes one skip for err. It returns false when err is not skippable
	// or the skip limit has been reached.
	TrySkip(err error) bool
	// GetSkipCount returns the number of items skipped so far.
	GetSkipCount() int
	// GetSkipLimit returns the skip limit. 0 disables skipping.
	GetSkipLimit() int
}

// NewPolicy creates the default Policy from cfg.
func NewPolicy(cfg config.ItemSkipConfig) Policy {
	return &defaultPolicy{
		skipLimit:           cfg.SkipLimit,
		skippableExceptions: cfg.SkippableExceptions,
	}
}

type defaultPolicy struct {
	skipLimit           int
	skippableExceptions []string

	mu        sync.Mutex
	skipCount int
}

// ShouldSkip matches err against the configured exception names. Errors carrying the
// skippable flag are skippable only when no names are configured.
func (p *defaultPolicy) ShouldSkip(err error) bool {
	if err == nil || p.skipLimit <= 0 {
		return false
	}
	if len(p.skippableExceptions) == 0 {
		var be *exception.BatchError
		return errors.As(err, &be) && be.IsSkippable()
	}
	for _, typeName := range p.skippableExceptions {
		if exception.IsErrorOfType(err, typeName) {
			return true
		}
	}
	return false
}

func (p *defaultPolicy) TrySkip(err error) bool {
	if !p.ShouldSkip(err) {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.skipCount >= p.skipLimit {
		return false
	}
	p.skipCount++
	return true
}

func (p *defaultPolicy) GetSkipCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.skipCount
}

func (p *defaultPolicy) GetSkipLimit() int {
	return p.skipLimit
}

var _ Policy = (*defaultPolicy)(nil)
