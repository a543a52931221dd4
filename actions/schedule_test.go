package actions

import (
	"testing"
	"time"

	"github.com/relloyd/taxipipe/logger"
)

func TestNewSchedulerMonthly(t *testing.T) {
	log := logger.NewLogger("taxipipe", "error", true)
	for _, spec := range []string{"@monthly", ""} {
		c, err := newScheduler(log, spec, func(time.Time) {})
		if err != nil {
			t.Fatal(err)
		}
		entries := c.Entries()
		if len(entries) != 1 {
			t.Fatalf("expected one entry; got %v", len(entries))
		}
		next := entries[0].Schedule.Next(time.Date(2025, 2, 15, 10, 30, 0, 0, time.UTC))
		if !next.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
			t.Fatalf("spec %q: expected the next run on 2025-03-01; got %v", spec, next)
		}
	}
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	if _, err := newScheduler(logger.NewLogger("taxipipe", "error", true), "every month", func(time.Time) {}); err == nil {
		t.Fatal("expected an invalid spec to be rejected")
	}
}
