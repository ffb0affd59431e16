// Package reader provides generic item readers.
package reader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tigerroll/customer-import/pkg/batch/core/application/port"
	"github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

// DefaultLinesToSkip skips a single header line.
const DefaultLinesToSkip = 1

const maxLineSize = 1024 * 1024

// FieldSetMapper maps a tokenized line to an item.
type FieldSetMapper[T any] interface {
	MapFieldSet(fs FieldSet) (T, error)
}

// FieldSetMapperFunc adapts a function to FieldSetMapper.
type FieldSetMapperFunc[T any] func(fs FieldSet) (T, error)

// MapFieldSet implements FieldSetMapper.
func (f FieldSetMapperFunc[T]) MapFieldSet(fs FieldSet) (T, error) { return f(fs) }

// FlatFileItemReader reads one item per non-blank line of a Resource. The first LinesToSkip
// lines are discarded. It is not restartable mid-stream: Open always starts over.
//
// A FlatFileItemReader must be used by a single goroutine.
type FlatFileItemReader[T any] struct {
	name        string
	resource    Resource
	linesToSkip int
	tokenizer   LineTokenizer
	mapper      FieldSetMapper[T]

	rc         io.ReadCloser
	scanner    *bufio.Scanner
	lineNumber int
	readCount  int
	ec         model.ExecutionContext
}

// NewFlatFileItemReader creates a FlatFileItemReader. name prefixes its ExecutionContext keys.
func NewFlatFileItemReader[T any](name string, resource Resource, linesToSkip int, tokenizer LineTokenizer, mapper FieldSetMapper[T]) *FlatFileItemReader[T] {
	if linesToSkip < 0 {
		linesToSkip = 0
	}
	return &FlatFileItemReader[T]{
		name:        name,
		resource:    resource,
		linesToSkip: linesToSkip,
		tokenizer:   tokenizer,
		mapper:      mapper,
		ec:          model.NewExecutionContext(),
	}
}

// ReadCountKey is the ExecutionContext key holding the number of items read.
func (r *FlatFileItemReader[T]) ReadCountKey() string {
	return r.name + ".read.count"
}

// Open opens the resource and discards the header lines.
func (r *FlatFileItemReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	if r.rc != nil {
		if err := r.Close(ctx); err != nil {
			return err
		}
	}

	rc, err := r.resource.Open(ctx)
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("FlatFileItemReader '%s': failed to open %s", r.name, r.resource.Description()), err, false, false)
	}
	r.rc = rc
	r.scanner = bufio.NewScanner(rc)
	r.scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	r.lineNumber = 0
	r.readCount = 0
	r.ec = model.NewExecutionContext()
	r.ec.Put(r.ReadCountKey(), 0)

	for r.lineNumber < r.linesToSkip {
		if _, ok := r.nextLine(); !ok {
			break
		}
	}
	if err := r.scanner.Err(); err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("FlatFileItemReader '%s': failed to read header of %s", r.name, r.resource.Description()), err, false, false)
	}

	logger.Infof("FlatFileItemReader '%s': opened %s (skipped %d lines).", r.name, r.resource.Description(), r.lineNumber)
	return nil
}

func (r *FlatFileItemReader[T]) nextLine() (string, bool) {
	if !r.scanner.Scan() {
		return "", false
	}
	r.lineNumber++
	line := strings.TrimSuffix(r.scanner.Text(), "\r")
	if r.lineNumber == 1 {
		line = strings.TrimPrefix(line, "\ufeff")
	}
	return line, true
}

// Read returns the next item, or port.ErrNoMoreItems at end of input.
// Lines that cannot be tokenized or mapped are reported as ParseError.
func (r *FlatFileItemReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if r.scanner == nil {
		return zero, exception.NewBatchErrorf("reader", "FlatFileItemReader '%s': reader not opened", r.name)
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	for {
		line, ok := r.nextLine()
		if !ok {
			if err := r.scanner.Err(); err != nil {
				return zero, exception.NewBatchError("reader", fmt.Sprintf("FlatFileItemReader '%s': failed to read %s", r.name, r.resource.Description()), err, false, false)
			}
			return zero, port.ErrNoMoreItems
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		fs, err := r.tokenizer.Tokenize(line)
		if err != nil {
			return zero, exception.NewParseError("reader", r.lineNumber, line, err)
		}
		item, err := r.mapper.MapFieldSet(fs)
		if err != nil {
			return zero, exception.NewParseError("reader", r.lineNumber, line, err)
		}

		r.readCount++
		r.ec.Put(r.ReadCountKey(), r.readCount)
		return item, nil
	}
}

// Close closes the underlying resource.
func (r *FlatFileItemReader[T]) Close(ctx context.Context) error {
	if r.rc == nil {
		return nil
	}
	err := r.rc.Close()
	r.rc = nil
	r.scanner = nil
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("FlatFileItemReader '%s': failed to close %s", r.name, r.resource.Description()), err, false, false)
	}
	logger.Debugf("FlatFileItemReader '%s': closed after %d items.", r.name, r.readCount)
	return nil
}

// GetExecutionContext returns the reader's state.
func (r *FlatFileItemReader[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	return r.ec.Copy(), nil
}

// SetExecutionContext is not supported; reading always restarts from the top.
func (r *FlatFileItemReader[T]) SetExecutionContext(ctx context.Context, ec model.ExecutionContext) error {
	return port.ErrExecutionContextNotSupported
}

var _ port.ItemReader[any] = (*FlatFileItemReader[any])(nil)
