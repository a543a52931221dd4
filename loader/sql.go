package loader

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/relloyd/taxipipe/rdbms"
)

var reStagePath = regexp.MustCompile(`^[A-Za-z0-9_=/-]*$`)

// CopyIntoSql returns the bulk copy of staged Parquet files below stage/prefix whose path matches pattern.
// When loadTimestampColumn is set the column is populated with the scan start time of the load.
func CopyIntoSql(table rdbms.SchemaTable, stage string, prefix string, pattern string, loadTimestampColumn string) (string, error) {
	if err := table.Validate(); err != nil {
		return "", err
	}
	if err := rdbms.ValidateIdentifier("stage", stage); err != nil {
		return "", err
	}
	if !reStagePath.MatchString(prefix) {
		return "", fmt.Errorf("invalid stage path %q", prefix)
	}
	location := "@" + stage
	if p := strings.Trim(prefix, "/"); p != "" {
		location += "/" + p + "/"
	}
	sql := fmt.Sprintf("COPY INTO %v FROM %v FILE_FORMAT = (TYPE = 'PARQUET') MATCH_BY_COLUMN_NAME = 'CASE_INSENSITIVE' PATTERN = '%v'",
		table, location, rdbms.EscapeLiteral(pattern))
	if loadTimestampColumn != "" {
		if err := rdbms.ValidateIdentifier("column", loadTimestampColumn); err != nil {
			return "", err
		}
		sql += fmt.Sprintf(" INCLUDE_METADATA = (%v = METADATA$START_SCAN_TIME)", loadTimestampColumn)
	}
	return sql, nil
}

// UseSql returns the USE DATABASE and USE SCHEMA statements that pin the session.
func UseSql(database string, schema string) ([]string, error) {
	if err := rdbms.ValidateIdentifier("database", database); err != nil {
		return nil, err
	}
	if err := rdbms.ValidateIdentifier("schema", schema); err != nil {
		return nil, err
	}
	return []string{
		fmt.Sprintf("USE DATABASE %v", database),
		fmt.Sprintf("USE SCHEMA %v", schema),
	}, nil
}

func manifestSelectSql(manifest rdbms.SchemaTable) string {
	return fmt.Sprintf("select file_name, checksum from %v where table_name = ?", manifest)
}

func manifestInsertSql(manifest rdbms.SchemaTable) string {
	return fmt.Sprintf("insert into %v (table_name, file_name, checksum, rows_loaded, run_id, loaded_at) values (?, ?, ?, ?, ?, ?)", manifest)
}
