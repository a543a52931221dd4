package shared

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xo/dburl"
)

// ConnectionDetails is intended to hold credentials for a logical database connection.
type ConnectionDetails struct {
	Type        string            `json:"type" errorTxt:"database type" mandatory:"yes" yaml:"type"`
	LogicalName string            `json:"logicalName" errorTxt:"database logical name" mandatory:"yes" yaml:"logicalName"`
	Data        map[string]string `json:"data" yaml:"data"`
}

// String redacts passwords and pretty-prints the contents of ConnectionDetails.
func (c ConnectionDetails) String() string {
	x := make([]string, 0, len(c.Data)+1)
	x = append(x, fmt.Sprintf("  type = %v", c.Type))
	if v, ok := c.Data[DefaultDsnConnectionKeyNames.Dsn]; ok { // if there's a DSN...
		x = append(x, fmt.Sprintf("  dsn = %v", RedactDsn(v)))
	} else {
		keys := make([]string, 0, len(c.Data))
		for k := range c.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := c.Data[k]
			if k == "password" {
				v = "xxxxx"
			}
			x = append(x, fmt.Sprintf("  %v = %v", k, v))
		}
	}
	return strings.Join(x, "\n")
}

// RedactDsn returns dsn with any password removed.
// DSNs that cannot be parsed are fully masked.
func RedactDsn(dsn string) string {
	u, err := dburl.Parse(dsn)
	if err != nil {
		return "xxxxx"
	}
	return u.Redacted()
}
