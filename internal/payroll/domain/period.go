package domain

import (
	"fmt"
	"time"

	"github.com/malipo/malipo-backend/pkg/errors"
)

// Period identifies the month a payroll run covers.
type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// Validate checks the period is a real month within the supported range.
func (p Period) Validate() error {
	details := map[string]string{}
	if p.Month < 1 || p.Month > 12 {
		details["month"] = "must be between 1 and 12"
	}
	if p.Year < 2000 || p.Year > 2100 {
		details["year"] = "must be between 2000 and 2100"
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

// Start returns the first day of the period (UTC midnight). Statutory
// rates are selected against this date.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last day of the period (UTC midnight).
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

// String renders the period as "YYYY-MM" for logs and error messages.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}
