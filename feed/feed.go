// Package feed describes the trip-record feeds and derives the deterministic
// download URL, object key and load pattern for a feed in a given period.
package feed

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/relloyd/taxipipe/constants"
	"github.com/relloyd/taxipipe/period"
)

// Name is one of the known trip-record categories.
type Name string

const (
	Green  Name = constants.FeedGreen
	Yellow Name = constants.FeedYellow
)

// All lists the feeds in the order the pipeline processes them.
var All = []Name{Green, Yellow}

// ParseName validates s against the known feeds.
func ParseName(s string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	for _, f := range All {
		if n == f {
			return n, nil
		}
	}
	return "", fmt.Errorf("unknown feed %q (expected one of %v)", s, All)
}

// Descriptor is a feed for one period.
type Descriptor struct {
	Name   Name
	Period period.Period
}

// New returns the descriptor for feed n in period p.
func New(n Name, p period.Period) Descriptor {
	return Descriptor{Name: n, Period: p}
}

// ForPeriod returns one descriptor per feed in names for p.
func ForPeriod(names []Name, p period.Period) []Descriptor {
	retval := make([]Descriptor, 0, len(names))
	for _, n := range names {
		retval = append(retval, New(n, p))
	}
	return retval
}

// FileName is the published file name, e.g. green_tripdata_2025-01.parquet.
func (d Descriptor) FileName() string {
	return fmt.Sprintf(constants.DefaultFileNameTemplate, d.Name, d.Period.Year, int(d.Period.Month))
}

// SourceURL joins baseURL and the file name.
func (d Descriptor) SourceURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/" + d.FileName()
}

// Prefix is the key prefix that holds the feed's file for the period (empty in flat layout).
func (d Descriptor) Prefix(layout string) string {
	if layout == constants.KeyLayoutFlat {
		return ""
	}
	return path.Join(string(d.Name), fmt.Sprintf("%04d", d.Period.Year), fmt.Sprintf("%02d", int(d.Period.Month)))
}

// StorageKey is the object key relative to the bucket prefix.
// The partitioned layout is <feed>/<YYYY>/<MM>/<file name>; the flat layout is the bare file name.
func (d Descriptor) StorageKey(layout string) string {
	return path.Join(d.Prefix(layout), d.FileName())
}

// Pattern returns an anchored regular expression matching staged paths of the feed's file for the period.
// It is used both to filter S3 listings and as the COPY INTO PATTERN.
func (d Descriptor) Pattern() string {
	return ".*" + regexp.QuoteMeta(d.FileName())
}

// String is used in logs.
func (d Descriptor) String() string {
	return fmt.Sprintf("%v/%v", d.Name, d.Period)
}
