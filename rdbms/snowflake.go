package rdbms

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/relloyd/taxipipe/constants"
	"github.com/relloyd/taxipipe/logger"
	"github.com/relloyd/taxipipe/rdbms/shared"
	sf "github.com/snowflakedb/gosnowflake"
)

type SnowflakeConnectionDetails struct {
	Account   string `errorTxt:"Snowflake account" mandatory:"yes"`
	DBName    string `errorTxt:"Snowflake db name" mandatory:"yes"`
	Schema    string `errorTxt:"Snowflake schema" mandatory:"yes"`
	User      string `errorTxt:"Snowflake username" mandatory:"yes"`
	Password  string `errorTxt:"Snowflake password" mandatory:"yes"`
	Warehouse string `errorTxt:"Snowflake warehouse"`
	RoleName  string `errorTxt:"Snowflake role name"`
}

func (d SnowflakeConnectionDetails) String() string {
	return fmt.Sprintf("%v:%v@%v/%v?schema=%v&warehouse=%v&role=%v",
		d.User,
		"xxxxxxx",
		d.Account,
		d.DBName,
		d.Schema,
		d.Warehouse,
		d.RoleName,
	)
}

var reSnowflakePrefix = regexp.MustCompile("^snowflake://")

// newSnowflakeConnection opens the Snowflake database connection specified in d.
func newSnowflakeConnection(ctx context.Context, log logger.Logger, d *shared.DsnConnectionDetails) (shared.Connector, error) {
	dsn := strings.TrimPrefix(d.Dsn, "snowflake://")
	conn := &shared.HpConnection{DbType: constants.ConnectionTypeSnowflake}
	var err error
	conn.DbSql, err = sql.Open("snowflake", dsn)
	if err != nil {
		return nil, err
	}
	if err = conn.DbSql.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error connecting to Snowflake %v: %w", d, err)
	}
	log.Info("Successful database connection to Snowflake.")
	return conn, nil
}

// TimestampLtzArgs returns t preceded by the marker that makes gosnowflake bind it as TIMESTAMP_LTZ.
// A bare time.Time binds as TIMESTAMP_NTZ, which Snowflake reads in the session time zone.
func TimestampLtzArgs(t time.Time) []interface{} {
	return []interface{}{sf.DataTypeTimestampLtz, t}
}

// SnowflakeDDLExec executes each statement in order using conn, stopping at the first error.
func SnowflakeDDLExec(ctx context.Context, log logger.Logger, conn shared.Execer, statements []string) error {
	for _, stmt := range statements {
		log.Debug("executing DDL: ", stmt)
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run statement: '%v', error: %w", stmt, err)
		}
	}
	return nil
}

// SnowflakeGetDSN constructs a DSN based on SnowflakeConnectionDetails.
// The prefix 'snowflake://' is added to the DSN.
func SnowflakeGetDSN(c *SnowflakeConnectionDetails) (string, error) {
	cfg := &sf.Config{
		Account:   c.Account,
		Database:  c.DBName,
		Schema:    c.Schema,
		User:      c.User,
		Password:  c.Password,
		Warehouse: c.Warehouse,
		Role:      c.RoleName,
	}
	dsn, err := sf.DSN(cfg)
	if err != nil {
		return "", err
	}
	if !reSnowflakePrefix.MatchString(dsn) { // if the prefix is missing...
		dsn = fmt.Sprintf("snowflake://%v", dsn)
	}
	return dsn, nil
}

// SnowflakeParseDSN converts a Snowflake DSN into native connection details.
// The prefix 'snowflake://' is removed from the DSN if it exists.
func SnowflakeParseDSN(d string) (*SnowflakeConnectionDetails, error) {
	if !reSnowflakePrefix.MatchString(d) {
		return nil, errors.New("unsupported Snowflake DSN format")
	}
	cfg, err := sf.ParseDSN(strings.TrimPrefix(d, "snowflake://"))
	if err != nil {
		return nil, err
	}
	retval := &SnowflakeConnectionDetails{
		User:      cfg.User,
		Password:  cfg.Password,
		Schema:    cfg.Schema,
		DBName:    cfg.Database,
		Account:   cfg.Account,
		RoleName:  cfg.Role,
		Warehouse: cfg.Warehouse,
	}
	if cfg.Region != "" && !strings.Contains(retval.Account, ".") { // if region exists in the parsed config...
		// Add it to our account settings.
		retval.Account = fmt.Sprintf("%v.%v", retval.Account, cfg.Region)
	}
	return retval, nil
}

// RedactSnowflakeDSN returns the DSN with its password hidden, for logging.
func RedactSnowflakeDSN(d string) string {
	c, err := SnowflakeParseDSN(d)
	if err != nil {
		return shared.RedactDsn(d)
	}
	return c.String()
}
