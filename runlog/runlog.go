// Package runlog writes the per-run audit rows to the processing log table.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/taxipipe/constants"
	"github.com/relloyd/taxipipe/helper"
	"github.com/relloyd/taxipipe/logger"
	"github.com/relloyd/taxipipe/pipeerr"
	"github.com/relloyd/taxipipe/rdbms"
	"github.com/relloyd/taxipipe/rdbms/shared"
)

type Config struct {
	Log                 logger.Logger    `errorTxt:"logger" mandatory:"yes"`
	Db                  shared.Connector `errorTxt:"warehouse connection" mandatory:"yes"`
	LogTable            string           // defaults to constants.DefaultRunLogTable.
	BusinessDateColumn  string           // defaults to constants.DefaultBusinessDateColumn.
	LoadTimestampColumn string           // defaults to constants.DefaultLoadTimestampColumn.
	NewRowsWindow       time.Duration    // rows loaded within this window count as new.
	StatementTimeout    time.Duration
	Now                 func() time.Time // clock; defaults to time.Now.
}

// Record is one row of the processing log.
type Record struct {
	RunID              string     `json:"runId"`
	TableName          string     `json:"tableName"`
	TotalRows          int64      `json:"totalRows"`
	NewRows            int64      `json:"newRows"`
	LatestBusinessDate *time.Time `json:"latestBusinessDate,omitempty"`
	LoggedAt           time.Time  `json:"loggedAt"`
	Existing           bool       `json:"existing"` // true when the row was written by an earlier attempt.
}

type RunLogger struct {
	cfg      Config
	logTable rdbms.SchemaTable
}

// New validates cfg and returns a RunLogger with defaults applied.
func New(cfg Config) (*RunLogger, error) {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return nil, err
	}
	if cfg.LogTable == "" {
		cfg.LogTable = constants.DefaultRunLogTable
	}
	if cfg.BusinessDateColumn == "" {
		cfg.BusinessDateColumn = constants.DefaultBusinessDateColumn
	}
	if cfg.LoadTimestampColumn == "" {
		cfg.LoadTimestampColumn = constants.DefaultLoadTimestampColumn
	}
	if cfg.NewRowsWindow <= 0 {
		cfg.NewRowsWindow = time.Duration(constants.DefaultNewRowsWindowHours) * time.Hour
	}
	if cfg.StatementTimeout <= 0 {
		cfg.StatementTimeout = time.Duration(constants.DefaultStatementTimeoutSecs) * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logTable, err := rdbms.ParseSchemaTable(cfg.LogTable)
	if err != nil {
		return nil, err
	}
	for _, c := range []string{cfg.BusinessDateColumn, cfg.LoadTimestampColumn} {
		if err := rdbms.ValidateIdentifier("column", c); err != nil {
			return nil, err
		}
	}
	return &RunLogger{cfg: cfg, logTable: logTable}, nil
}

// LogRun records row counts for tableName against runID.
// A second call for the same (runID, tableName) returns the stored record without inserting.
func (l *RunLogger) LogRun(ctx context.Context, runID string, tableName string) (retval Record, err error) {
	log := l.cfg.Log.WithField("runId", runID).WithField("table", tableName)
	fail := func(e error) (Record, error) {
		return Record{}, &pipeerr.LogError{RunID: runID, Table: tableName, Err: e}
	}
	target, err := rdbms.ParseSchemaTable(tableName)
	if err != nil {
		return fail(err)
	}
	ctx, cancel := context.WithTimeout(ctx, l.cfg.StatementTimeout)
	defer cancel()
	tx, err := l.cfg.Db.BeginTx(ctx)
	if err != nil {
		return fail(errors.Wrap(err, "unable to start transaction"))
	}
	rollbackRequired := true
	defer func() {
		if rollbackRequired {
			if e := tx.Rollback(); e != nil {
				log.Error("rollback failed: ", e)
			}
		}
	}()
	// Return the existing row if an earlier attempt already committed one.
	existing, found, err := l.find(ctx, tx, runID, tableName)
	if err != nil {
		return fail(err)
	}
	if found {
		log.Info("run already logged at ", existing.LoggedAt.Format(constants.TimeFormatYearSeconds))
		return existing, nil
	}
	// Aggregate.
	now := l.cfg.Now().UTC()
	retval = Record{RunID: runID, TableName: tableName, LoggedAt: now}
	var latest sql.NullTime
	err = rdbms.QueryOne(ctx, tx, aggregateSql(target, l.cfg.LoadTimestampColumn, l.cfg.BusinessDateColumn),
		rdbms.TimestampLtzArgs(now.Add(-l.cfg.NewRowsWindow)),
		&retval.TotalRows, &retval.NewRows, &latest)
	if err != nil {
		return fail(errors.Wrap(err, "unable to aggregate row counts"))
	}
	if latest.Valid {
		t := latest.Time
		retval.LatestBusinessDate = &t
	}
	// Insert.
	var latestArg interface{}
	if retval.LatestBusinessDate != nil {
		latestArg = *retval.LatestBusinessDate
	}
	q := insertSql(l.logTable)
	log.Debug("executing query: ", q)
	args := append([]interface{}{runID, tableName, retval.TotalRows, retval.NewRows, latestArg}, rdbms.TimestampLtzArgs(now)...)
	if _, err = tx.ExecContext(ctx, q, args...); err != nil {
		return fail(errors.Wrap(err, "unable to insert run log"))
	}
	if err = tx.Commit(); err != nil {
		return fail(errors.Wrap(err, "commit failed"))
	}
	rollbackRequired = false
	log.Info("logged ", retval.TotalRows, " total rows and ", retval.NewRows, " new rows")
	return retval, nil
}

func (l *RunLogger) find(ctx context.Context, tx shared.Querier, runID string, tableName string) (Record, bool, error) {
	retval := Record{Existing: true}
	var latest sql.NullTime
	err := rdbms.QueryOne(ctx, tx, selectSql(l.logTable), []interface{}{runID, tableName},
		&retval.RunID, &retval.TableName, &retval.TotalRows, &retval.NewRows, &latest, &retval.LoggedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, errors.Wrap(err, "unable to read run log")
	}
	if latest.Valid {
		t := latest.Time
		retval.LatestBusinessDate = &t
	}
	return retval, true, nil
}

func selectSql(logTable rdbms.SchemaTable) string {
	return fmt.Sprintf("select pipeline_run_id, table_processed, total_rows_processed, new_rows_processed, latest_processed_pickup_date, processed_datetime from %v where pipeline_run_id = ? and table_processed = ?", logTable)
}

func aggregateSql(target rdbms.SchemaTable, loadTimestampColumn string, businessDateColumn string) string {
	return fmt.Sprintf("select count(*), coalesce(sum(case when %v >= ? then 1 else 0 end), 0), max(%v) from %v", loadTimestampColumn, businessDateColumn, target)
}

func insertSql(logTable rdbms.SchemaTable) string {
	return fmt.Sprintf("insert into %v (pipeline_run_id, table_processed, total_rows_processed, new_rows_processed, latest_processed_pickup_date, processed_datetime) values (?, ?, ?, ?, ?, ?)", logTable)
}
