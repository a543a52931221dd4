package feed

import (
	"regexp"
	"testing"

	"github.com/relloyd/taxipipe/constants"
	"github.com/relloyd/taxipipe/period"
)

func mustPeriod(t *testing.T, y, m int) period.Period {
	p, err := period.New(y, m)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDescriptorUrlsAndKeys(t *testing.T) {
	p := mustPeriod(t, 2025, 1)
	base := "https://example.com/trip-data/"
	g := New(Green, p)
	y := New(Yellow, p)
	if got := g.SourceURL(base); got != "https://example.com/trip-data/green_tripdata_2025-01.parquet" {
		t.Fatalf("unexpected green URL %q", got)
	}
	if got := y.SourceURL(base); got != "https://example.com/trip-data/yellow_tripdata_2025-01.parquet" {
		t.Fatalf("unexpected yellow URL %q", got)
	}
	if got := g.StorageKey(constants.KeyLayoutPartitioned); got != "green/2025/01/green_tripdata_2025-01.parquet" {
		t.Fatalf("unexpected partitioned key %q", got)
	}
	if got := g.StorageKey(constants.KeyLayoutFlat); got != "green_tripdata_2025-01.parquet" {
		t.Fatalf("unexpected flat key %q", got)
	}
}

func TestStorageKeysAreDeterministicAndDistinct(t *testing.T) {
	seen := make(map[string]string)
	for y := 2023; y <= 2025; y++ {
		for m := 1; m <= 12; m++ {
			p := mustPeriod(t, y, m)
			for _, n := range All {
				d := New(n, p)
				for _, layout := range []string{constants.KeyLayoutPartitioned, constants.KeyLayoutFlat} {
					k1 := d.StorageKey(layout)
					k2 := New(n, p).StorageKey(layout)
					if k1 != k2 {
						t.Fatalf("non-deterministic key for %v: %q vs %q", d, k1, k2)
					}
					id := layout + ":" + k1
					if other, ok := seen[id]; ok {
						t.Fatalf("key %q for %v collides with %v", k1, d, other)
					}
					seen[id] = d.String()
				}
			}
		}
	}
}

func TestPattern(t *testing.T) {
	d := New(Green, mustPeriod(t, 2025, 1))
	re := regexp.MustCompile("^" + d.Pattern() + "$")
	if !re.MatchString("green/2025/01/green_tripdata_2025-01.parquet") {
		t.Fatal("expected pattern to match the partitioned key")
	}
	if re.MatchString("green/2025/01/green_tripdata_2025-01Xparquet") {
		t.Fatal("expected the dot in the file name to be literal")
	}
	if re.MatchString("green/2025/02/green_tripdata_2025-02.parquet") {
		t.Fatal("expected pattern not to match another period")
	}
}

func TestParseName(t *testing.T) {
	if n, err := ParseName(" Yellow "); err != nil || n != Yellow {
		t.Fatalf("expected yellow; got %v, %v", n, err)
	}
	if _, err := ParseName("fhv"); err == nil {
		t.Fatal("expected error for unknown feed")
	}
}
