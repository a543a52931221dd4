package rdbms

import (
	"fmt"
	"regexp"
	"strings"
)

// reIdentifier accepts unquoted Snowflake identifiers only.
var reIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]{0,254}$`)

// ValidateIdentifier returns an error if s cannot be safely interpolated into SQL as an identifier.
func ValidateIdentifier(kind string, s string) error {
	if !reIdentifier.MatchString(s) {
		return fmt.Errorf("invalid %v identifier %q", kind, s)
	}
	return nil
}

// EscapeLiteral escapes s for use inside a single-quoted SQL string literal.
func EscapeLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `''`)
}

type SchemaTable struct {
	SchemaTable string `errorTxt:"[<schema>.]<object>" mandatory:"yes"`
}

func NewSchemaTable(schema string, table string) SchemaTable {
	if schema == "" {
		return SchemaTable{table}
	}
	return SchemaTable{schema + "." + table}
}

// ParseSchemaTable returns a validated SchemaTable built from [<database>.][<schema>.]<table>.
func ParseSchemaTable(s string) (SchemaTable, error) {
	st := SchemaTable{SchemaTable: s}
	return st, st.Validate()
}

// Validate checks that every dot-separated part is a plain identifier.
func (st SchemaTable) Validate() error {
	parts := strings.Split(st.SchemaTable, ".")
	if len(parts) > 3 {
		return fmt.Errorf("invalid table name %q: too many parts", st.SchemaTable)
	}
	for _, p := range parts {
		if err := ValidateIdentifier("table", p); err != nil {
			return fmt.Errorf("invalid table name %q: %w", st.SchemaTable, err)
		}
	}
	return nil
}

func (st SchemaTable) GetTable() string {
	sep := "."
	i := strings.LastIndex(st.SchemaTable, sep)
	if i < 0 { // if we have just a table...
		return st.SchemaTable
	} // else we have schema.table...
	return st.SchemaTable[i+len(sep):] // return table
}

func (st SchemaTable) GetSchema() string {
	sep := "."
	i := strings.LastIndex(st.SchemaTable, sep)
	if i < 0 { // if we have just a table...
		return ""
	} // else we have schema.table...
	return st.SchemaTable[:i] // return schema
}

func (st SchemaTable) String() string {
	return st.SchemaTable
}
