package rdbms

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/relloyd/taxipipe/logger"
	"github.com/relloyd/taxipipe/rdbms/shared"
)

// SqlQuery runs sqltext and streams the header and each row to i.
func SqlQuery(ctx context.Context, log logger.Logger, db shared.Querier, sqltext string, i shared.SqlResultHandler, args ...interface{}) error {
	rows, err := db.QueryContext(ctx, sqltext, args...)
	if err != nil {
		return fmt.Errorf("error during database query using SQL: '%v': %w", sqltext, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("error fetching columns: %w", err)
	}
	log.Debug("query columns = ", cols)
	// Scan the values dynamically.
	lenCols := len(cols)
	scanPtrs := make([]interface{}, lenCols)
	scanVals := make([]interface{}, lenCols)
	for idx := 0; idx < lenCols; idx++ { // for each column...
		scanPtrs[idx] = &scanVals[idx] // save the value.
	}
	// Build and send the header.
	header := make([]interface{}, lenCols)
	for idx := range cols {
		header[idx] = cols[idx]
	}
	if err = i.HandleHeader(header); err != nil {
		return err
	}
	// Send the rows via callback interface.
	for rows.Next() {
		if err := ctx.Err(); err != nil { // quit if asked to.
			return err
		}
		if err := rows.Scan(scanPtrs...); err != nil {
			return fmt.Errorf("error scanning row: %w", err)
		}
		row := make([]interface{}, lenCols)
		copy(row, scanVals)
		if err = i.HandleRow(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// QueryOne scans the first row returned by sqltext into dest.
// It returns sql.ErrNoRows if the query produced no rows.
func QueryOne(ctx context.Context, db shared.Querier, sqltext string, args []interface{}, dest ...interface{}) error {
	rows, err := db.QueryContext(ctx, sqltext, args...)
	if err != nil {
		return fmt.Errorf("error during database query using SQL: '%v': %w", sqltext, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	if err := rows.Scan(dest...); err != nil {
		return fmt.Errorf("error scanning row: %w", err)
	}
	return rows.Err()
}

// RowCollector is a SqlResultHandler that keeps the header and rows in memory.
type RowCollector struct {
	Header []string
	Rows   [][]interface{}
}

func (r *RowCollector) HandleHeader(i []interface{}) error {
	r.Header = make([]string, len(i))
	for idx, v := range i {
		r.Header[idx] = fmt.Sprint(v)
	}
	return nil
}

func (r *RowCollector) HandleRow(i []interface{}) error {
	r.Rows = append(r.Rows, i)
	return nil
}
