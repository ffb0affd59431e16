package model

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// maskedValue replaces the value of sensitive parameters in String output.
const maskedValue = "********"

var (
	sensitiveMu sync.RWMutex
	// sensitiveKeyFragments marks parameter keys whose values are never printed.
	sensitiveKeyFragments = []string{"password", "secret", "token", "credential"}
)

// RegisterSensitiveKeys adds key fragments whose values String masks.
func RegisterSensitiveKeys(fragments ...string) {
	sensitiveMu.Lock()
	defer sensitiveMu.Unlock()
	for _, f := range fragments {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			sensitiveKeyFragments = append(sensitiveKeyFragments, f)
		}
	}
}

// JobParameters holds the parameters a job was launched with.
// Identical parameters identify the same JobInstance.
type JobParameters struct {
	Params map[string]interface{} `json:"params"`
}

// NewJobParameters creates empty JobParameters.
func NewJobParameters() JobParameters {
	return JobParameters{Params: make(map[string]interface{})}
}

// Value implements driver.Valuer.
func (jp JobParameters) Value() (driver.Value, error) {
	if jp.Params == nil {
		return "{}", nil
	}
	data, err := json.Marshal(jp.Params)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (jp *JobParameters) Scan(value interface{}) error {
	b, err := scanBytes(value, "JobParameters")
	if err != nil {
		return err
	}
	jp.Params = make(map[string]interface{})
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, &jp.Params); err != nil {
		return fmt.Errorf("failed to unmarshal JobParameters JSON: %w", err)
	}
	return nil
}

// Put sets key to value.
func (jp *JobParameters) Put(key string, value interface{}) {
	if jp.Params == nil {
		jp.Params = make(map[string]interface{})
	}
	jp.Params[key] = value
}

// Get retrieves the value of key.
func (jp JobParameters) Get(key string) (interface{}, bool) {
	val, ok := jp.Params[key]
	return val, ok
}

// GetString retrieves the value of key as a string.
func (jp JobParameters) GetString(key string) (string, bool) {
	str, ok := jp.Params[key].(string)
	return str, ok
}

// GetInt retrieves the value of key as an int.
func (jp JobParameters) GetInt(key string) (int, bool) {
	return toInt(jp.Params[key])
}

// Copy returns a shallow copy.
func (jp JobParameters) Copy() JobParameters {
	out := NewJobParameters()
	for k, v := range jp.Params {
		out.Params[k] = v
	}
	return out
}

// Equal compares two parameter sets after normalizing them through JSON,
// so an int and the float64 read back from storage compare equal.
func (jp JobParameters) Equal(other JobParameters) bool {
	a, errA := normalize(jp.Params)
	b, errB := normalize(other.Params)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(jp.Params, other.Params)
	}
	return reflect.DeepEqual(a, b)
}

// Hash returns a SHA-256 hex digest of the canonical JSON form.
// Keys are sorted by encoding/json, so insertion order does not matter.
func (jp JobParameters) Hash() (string, error) {
	params := jp.Params
	if params == nil {
		params = map[string]interface{}{}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JobParameters for hashing: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// String renders the parameters with sensitive values masked.
func (jp JobParameters) String() string {
	keys := make([]string, 0, len(jp.Params))
	for k := range jp.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := jp.Params[k]
		if isSensitiveKey(k) {
			v = maskedValue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	sensitiveMu.RLock()
	defer sensitiveMu.RUnlock()
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

func normalize(params map[string]interface{}) (map[string]interface{}, error) {
	if params == nil {
		return map[string]interface{}{}, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{})
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
