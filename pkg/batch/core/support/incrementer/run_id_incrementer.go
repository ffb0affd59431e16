package incrementer

import (
	"fmt"

	port "github.com/tigerroll/customer-import/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

// DefaultRunIDKey is the parameter key used by RunIDIncrementer when none is configured.
const DefaultRunIDKey = "run.id"

// RunIDIncrementer sets the configured key to 1 when absent, or increments it.
type RunIDIncrementer struct {
	name string
}

// NewRunIDIncrementer creates a RunIDIncrementer for the parameter key name.
func NewRunIDIncrementer(name string) *RunIDIncrementer {
	if name == "" {
		name = DefaultRunIDKey
	}
	return &RunIDIncrementer{name: name}
}

// GetNext returns a copy of params with the run id added or incremented.
func (i *RunIDIncrementer) GetNext(params model.JobParameters) model.JobParameters {
	nextParams := params.Copy()

	currentRunID, ok := params.GetInt(i.name)
	if !ok {
		nextParams.Put(i.name, 1)
		logger.Debugf("JobParametersIncrementer: '%s' not found, setting to 1.", i.name)
		return nextParams
	}
	nextRunID := currentRunID + 1
	nextParams.Put(i.name, nextRunID)
	logger.Debugf("JobParametersIncrementer: Incrementing '%s' from %d to %d.", i.name, currentRunID, nextRunID)
	return nextParams
}

func (i *RunIDIncrementer) String() string {
	return fmt.Sprintf("RunIDIncrementer[name=%s]", i.name)
}

var _ port.JobParametersIncrementer = (*RunIDIncrementer)(nil)
