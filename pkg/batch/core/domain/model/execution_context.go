package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ExecutionContext is a key-value store for state shared by a job or step execution.
// It is persisted as a JSON column.
type ExecutionContext map[string]interface{}

// NewExecutionContext creates a new empty ExecutionContext.
func NewExecutionContext() ExecutionContext {
	return make(ExecutionContext)
}

// Value implements driver.Valuer.
func (ec ExecutionContext) Value() (driver.Value, error) {
	if ec == nil {
		return "{}", nil
	}
	data, err := json.Marshal(ec)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (ec *ExecutionContext) Scan(value interface{}) error {
	b, err := scanBytes(value, "ExecutionContext")
	if err != nil {
		return err
	}
	if len(b) == 0 {
		*ec = make(ExecutionContext)
		return nil
	}
	if err := json.Unmarshal(b, ec); err != nil {
		return fmt.Errorf("failed to unmarshal ExecutionContext JSON: %w", err)
	}
	return nil
}

// Put sets key to value.
func (ec ExecutionContext) Put(key string, value interface{}) {
	ec[key] = value
}

// Get retrieves the value stored under key.
func (ec ExecutionContext) Get(key string) (interface{}, bool) {
	val, ok := ec[key]
	return val, ok
}

// GetString retrieves the value stored under key as a string.
func (ec ExecutionContext) GetString(key string) (string, bool) {
	str, ok := ec[key].(string)
	return str, ok
}

// GetInt retrieves the value stored under key as an int.
// Numbers decoded from JSON arrive as float64 and are converted.
func (ec ExecutionContext) GetInt(key string) (int, bool) {
	return toInt(ec[key])
}

// Copy returns a shallow copy.
func (ec ExecutionContext) Copy() ExecutionContext {
	out := make(ExecutionContext, len(ec))
	for k, v := range ec {
		out[k] = v
	}
	return out
}

// Remove deletes key.
func (ec ExecutionContext) Remove(key string) {
	delete(ec, key)
}

// FailureList holds the failure messages of an execution. It is persisted as a JSON array.
type FailureList []string

// Value implements driver.Valuer.
func (fl FailureList) Value() (driver.Value, error) {
	if fl == nil {
		return "[]", nil
	}
	data, err := json.Marshal(fl)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (fl *FailureList) Scan(value interface{}) error {
	b, err := scanBytes(value, "FailureList")
	if err != nil {
		return err
	}
	if len(b) == 0 {
		*fl = make(FailureList, 0)
		return nil
	}
	if err := json.Unmarshal(b, fl); err != nil {
		return fmt.Errorf("failed to unmarshal FailureList JSON: %w", err)
	}
	return nil
}

func scanBytes(value interface{}, typeName string) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported Scan type for %s: %T", typeName, value)
	}
}

func toInt(val interface{}) (int, bool) {
	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case int32:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		i, err := v.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}
