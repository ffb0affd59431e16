package incrementer

import (
	"fmt"
	"strconv"
	"time"

	port "github.com/tigerroll/customer-import/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

// TimestampIncrementer stores the current Unix milliseconds under the configured key.
type TimestampIncrementer struct {
	name string
	now  func() time.Time
}

// NewTimestampIncrementer creates a TimestampIncrementer for the parameter key name.
func NewTimestampIncrementer(name string) *TimestampIncrementer {
	if name == "" {
		name = "timestamp"
	}
	return &TimestampIncrementer{name: name, now: time.Now}
}

// GetNext returns a copy of params with the timestamp key set.
func (i *TimestampIncrementer) GetNext(params model.JobParameters) model.JobParameters {
	nextParams := params.Copy()
	timestamp := i.now().UnixMilli()
	nextParams.Put(i.name, strconv.FormatInt(timestamp, 10))
	logger.Debugf("JobParametersIncrementer: Setting '%s' to %d.", i.name, timestamp)
	return nextParams
}

func (i *TimestampIncrementer) String() string {
	return fmt.Sprintf("TimestampIncrementer[name=%s]", i.name)
}

var _ port.JobParametersIncrementer = (*TimestampIncrementer)(nil)

// New returns the incrementer registered under kind ("run_id", "timestamp" or "none").
// An empty kind selects run_id.
func New(kind, key string) (port.JobParametersIncrementer, error) {
	switch kind {
	case "", "run_id":
		return NewRunIDIncrementer(key), nil
	case "timestamp":
		return NewTimestampIncrementer(key), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown job parameters incrementer '%s'", kind)
	}
}
