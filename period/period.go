// Package period models the calendar month that a pipeline run processes.
package period

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/taxipipe/constants"
)

// Period is a calendar month.
type Period struct {
	Year  int
	Month time.Month
}

// New validates year and month.
func New(year int, month int) (Period, error) {
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("invalid month %v", month)
	}
	if year < 2009 || year > 9999 { // trip records start in 2009.
		return Period{}, fmt.Errorf("invalid year %v", year)
	}
	return Period{Year: year, Month: time.Month(month)}, nil
}

// FromLogicalDate returns the calendar month before the one containing d.
// A run with logical date 2025-03-01 processes 2025-02.
func FromLogicalDate(d time.Time) Period {
	firstOfMonth := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	prev := firstOfMonth.AddDate(0, -1, 0)
	return Period{Year: prev.Year(), Month: prev.Month()}
}

// Parse accepts YYYY-MM.
func Parse(s string) (Period, error) {
	t, err := time.Parse(constants.TimeFormatPeriod, s)
	if err != nil {
		return Period{}, errors.Wrapf(err, "unable to parse period %q, expected YYYY-MM", s)
	}
	return New(t.Year(), int(t.Month()))
}

// String renders YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Start returns midnight UTC on the first day of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last day of the period.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}
