// Package processor checks and optionally normalizes customers between the CSV reader and the writer.
package processor

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	appconfig "github.com/tigerroll/customer-import/internal/config"
	"github.com/tigerroll/customer-import/internal/domain/entity"
	"github.com/tigerroll/customer-import/pkg/batch/core/application/port"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

const moduleName = "CustomerProcessor"

// DOBLayouts are the date layouts accepted for dob when validation is enabled.
var DOBLayouts = []string{"2006-01-02", "01/02/2006", "2006/01/02", "01-02-2006"}

// CustomerProcessor passes customers through unchanged unless normalization is enabled, in which
// case it trims every field, lower-cases email and upper-cases gender.
// It keeps no state between items.
type CustomerProcessor struct {
	normalize          bool
	filterBlankRecords bool
	validate           bool
}

// NewCustomerProcessor creates a CustomerProcessor from the processor settings.
func NewCustomerProcessor(cfg appconfig.ProcessorConfig) *CustomerProcessor {
	return &CustomerProcessor{
		normalize:          cfg.Normalize,
		filterBlankRecords: cfg.FilterBlankRecords,
		validate:           cfg.Validate,
	}
}

// Process returns a copy of item, normalized when configured. item itself is left untouched.
func (p *CustomerProcessor) Process(ctx context.Context, item *entity.Customer) (*entity.Customer, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if item == nil {
		return nil, nil
	}

	out := *item
	if p.normalize {
		normalize(&out)
	}

	if p.filterBlankRecords && out.IsBlank() {
		logger.Debugf("%s: filtered blank record.", moduleName)
		return nil, nil
	}

	if p.validate {
		if err := validateCustomer(&out); err != nil {
			return nil, err
		}
	}
	return &out, nil
}

func normalize(c *entity.Customer) {
	c.ID = strings.TrimSpace(c.ID)
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Gender = strings.ToUpper(strings.TrimSpace(c.Gender))
	c.ContactNo = strings.TrimSpace(c.ContactNo)
	c.Country = strings.TrimSpace(c.Country)
	c.DOB = strings.TrimSpace(c.DOB)
}

func validateCustomer(c *entity.Customer) error {
	if c.Email != "" {
		addr, err := mail.ParseAddress(c.Email)
		if err != nil || addr.Address != c.Email {
			return exception.NewTransformError(moduleName, fmt.Sprintf("malformed email %q for customer %q", c.Email, c.ID), err)
		}
	}
	if c.DOB != "" && !parsesAsDate(c.DOB) {
		return exception.NewTransformError(moduleName, fmt.Sprintf("unparseable dob %q for customer %q", c.DOB, c.ID), nil)
	}
	return nil
}

func parsesAsDate(s string) bool {
	for _, layout := range DOBLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

var _ port.ItemProcessor[*entity.Customer, *entity.Customer] = (*CustomerProcessor)(nil)
