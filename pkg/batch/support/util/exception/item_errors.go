package exception

import (
	"errors"
	"fmt"
)

// Registered names of the item-level error categories.
const (
	ParseErrorType     = "ParseError"
	TransformErrorType = "TransformError"
	StorageErrorType   = "StorageError"
)

var (
	// ErrParse marks an input line that could not be tokenized or mapped.
	ErrParse = errors.New(ParseErrorType)
	// ErrTransform marks a record rejected by a processor.
	ErrTransform = errors.New(TransformErrorType)
	// ErrStorage marks a failed write to the backing store.
	ErrStorage = errors.New(StorageErrorType)
)

// NewParseError reports a line that could not be parsed. lineNumber is 1-based and counts skipped lines.
func NewParseError(module string, lineNumber int, line string, cause error) *BatchError {
	return NewBatchError(module, fmt.Sprintf("parsing error at line %d: %q", lineNumber, line), join(ErrParse, cause), true, false)
}

// NewTransformError reports a record that failed business validation.
func NewTransformError(module, message string, cause error) *BatchError {
	return NewBatchError(module, message, join(ErrTransform, cause), true, false)
}

// NewStorageError reports a failed save of the record identified by id.
func NewStorageError(module, id string, cause error) *BatchError {
	return NewBatchError(module, fmt.Sprintf("failed to save record (ID: %q)", id), join(ErrStorage, cause), false, false)
}

// IsParseError reports whether err is a ParseError.
func IsParseError(err error) bool { return errors.Is(err, ErrParse) }

// IsTransformError reports whether err is a TransformError.
func IsTransformError(err error) bool { return errors.Is(err, ErrTransform) }

// IsStorageError reports whether err is a StorageError.
func IsStorageError(err error) bool { return errors.Is(err, ErrStorage) }

func join(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return errors.Join(sentinel, cause)
}
