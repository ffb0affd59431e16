// Package exception provides the error types shared by the batch framework.
// Errors carry the module they originated from and hints for retry and skip policies,
// and can be classified by a registered type name so that policies can be configured in YAML.
package exception

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// errorRegistry maps configurable error type names to sentinel errors compared with errors.Is.
var errorRegistry = make(map[string]error)

var registryMutex sync.RWMutex

// RegisterErrorType registers a sentinel error under a name that can be referenced from
// retryable_exceptions and skippable_exceptions. It panics on an empty name or nil prototype.
func RegisterErrorType(name string, prototype error) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if name == "" {
		panic("Error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("Cannot register nil prototype for name: %s", name))
	}
	errorRegistry[name] = prototype
}

// IsErrorTypeRegistered reports whether name has been registered.
func IsErrorTypeRegistered(name string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, ok := errorRegistry[name]
	return ok
}

// BatchError is the error type raised by readers, processors, writers and the framework itself.
type BatchError struct {
	// Module indicates where the error occurred (e.g., "reader", "processor", "writer", "config").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped cause.
	OriginalErr error
	isRetryable bool
	isSkippable bool
	// StackTrace is captured at construction for debugging.
	StackTrace string
}

// NewBatchError creates a new BatchError.
func NewBatchError(module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  captureStack(),
	}
}

// NewBatchErrorf creates a BatchError from a format string.
// Trailing arguments are inspected from the end in the order [originalErr error],
// [isRetryable bool], [isSkippable bool]; the rest feed fmt.Sprintf.
//
//	NewBatchErrorf("writer", "DB error on %s", "customers", false, sql.ErrNoRows)
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var originalErr error
	isRetryable := false
	isSkippable := false
	args := a

	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			originalErr = err
			args = args[:len(args)-1]
		}
	}
	if len(args) > 0 {
		if b, ok := args[len(args)-1].(bool); ok {
			isRetryable = b
			args = args[:len(args)-1]
		}
	}
	if len(args) > 0 {
		if b, ok := args[len(args)-1].(bool); ok {
			isSkippable = b
			args = args[:len(args)-1]
		}
	}

	return &BatchError{
		Module:      module,
		Message:     fmt.Sprintf(format, args...),
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  captureStack(),
	}
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Is / errors.As.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable returns whether this error is retryable.
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable returns whether this error is skippable.
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// IsBatchError reports whether err is, or wraps, a *BatchError.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}

// IsErrorOfType reports whether err matches errorTypeName. It checks, in order,
// the registered sentinel (errors.Is), a substring of any message in the chain,
// and the dynamic type name of any error in the chain (e.g., "*net.OpError").
func IsErrorOfType(err error, errorTypeName string) bool {
	if err == nil {
		return false
	}

	registryMutex.RLock()
	target, ok := errorRegistry[errorTypeName]
	registryMutex.RUnlock()
	if ok && errors.Is(err, target) {
		return true
	}

	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		if strings.Contains(cur.Error(), errorTypeName) {
			return true
		}
		if t := reflect.TypeOf(cur); t != nil {
			if t.String() == errorTypeName || (t.Kind() == reflect.Ptr && t.Elem().String() == errorTypeName) {
				return true
			}
		}
	}
	return false
}

// ExtractErrorMessage returns the Message of a BatchError, or err.Error() otherwise.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}

// OptimisticLockingFailureException is the registered name of ErrOptimisticLockingFailure.
const OptimisticLockingFailureException = "OptimisticLockingFailureException"

// ErrOptimisticLockingFailure indicates a version mismatch on a metadata update.
var ErrOptimisticLockingFailure = errors.New(OptimisticLockingFailureException)

// NewOptimisticLockingFailureException creates a fatal BatchError for a version mismatch.
func NewOptimisticLockingFailureException(module, message string, originalErr error) *BatchError {
	errToWrap := ErrOptimisticLockingFailure
	if originalErr != nil {
		errToWrap = errors.Join(ErrOptimisticLockingFailure, originalErr)
	}
	return NewBatchError(module, message, errToWrap, false, false)
}

// IsOptimisticLockingFailure reports whether err indicates an optimistic locking failure.
func IsOptimisticLockingFailure(err error) bool {
	return err != nil && errors.Is(err, ErrOptimisticLockingFailure)
}

func init() {
	RegisterErrorType(OptimisticLockingFailureException, ErrOptimisticLockingFailure)
	RegisterErrorType(ParseErrorType, ErrParse)
	RegisterErrorType(TransformErrorType, ErrTransform)
	RegisterErrorType(StorageErrorType, ErrStorage)

	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("context.Canceled", context.Canceled)
	RegisterErrorType("sql.ErrNoRows", sql.ErrNoRows)
	RegisterErrorType("sql.ErrConnDone", sql.ErrConnDone)
}
