package constants

import (
	"fmt"
	"testing"
	"time"
)

func TestTimeFormat(t *testing.T) {
	d := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if got := d.Format(TimeFormatLogicalDate); got != "2025-03-01" {
		t.Fatalf("unexpected logical date format %q", got)
	}
	if got := d.Format(TimeFormatPeriod); got != "2025-03" {
		t.Fatalf("unexpected period format %q", got)
	}
}

func TestFileNameTemplate(t *testing.T) {
	got := fmt.Sprintf(DefaultFileNameTemplate, FeedGreen, 2025, 1)
	expected := "green_tripdata_2025-01.parquet"
	if got != expected {
		t.Fatalf("expected %q; got %q", expected, got)
	}
}
