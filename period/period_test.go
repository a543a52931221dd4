package period

import (
	"testing"
	"time"
)

func TestFromLogicalDate(t *testing.T) {
	cases := []struct {
		logicalDate string
		expected    string
	}{
		{"2025-03-01", "2025-02"}, // month rollover on the first day.
		{"2025-03-31", "2025-02"},
		{"2025-01-15", "2024-12"}, // year rollover.
		{"2024-03-01", "2024-02"}, // leap year.
		{"2025-12-31", "2025-11"},
	}
	for _, c := range cases {
		d, err := time.Parse("2006-01-02", c.logicalDate)
		if err != nil {
			t.Fatal(err)
		}
		got := FromLogicalDate(d).String()
		if got != c.expected {
			t.Fatalf("logical date %v: expected period %v; got %v", c.logicalDate, c.expected, got)
		}
	}
}

func TestParse(t *testing.T) {
	p, err := Parse("2025-01")
	if err != nil {
		t.Fatal(err)
	}
	if p.Year != 2025 || p.Month != time.January {
		t.Fatalf("unexpected period %+v", p)
	}
	if p.End().Format("2006-01-02") != "2025-01-31" {
		t.Fatalf("unexpected period end %v", p.End())
	}
	for _, bad := range []string{"2025-13", "2025", "abc", "1999-01"} {
		if _, err := Parse(bad); err == nil {
			t.Fatalf("expected error parsing %q", bad)
		}
	}
}
