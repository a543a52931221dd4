package rdbms

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/relloyd/taxipipe/constants"
	"github.com/relloyd/taxipipe/logger"
	"github.com/relloyd/taxipipe/rdbms/shared"
)

func TestSqlQueryAndQueryOne(t *testing.T) {
	log := logger.NewLogger("taxipipe", "error", true)
	ctx := context.Background()
	db := shared.NewMockConnectionWithMockTx(log, constants.ConnectionTypeSnowflake)
	db.AddQueryResult(shared.MockQueryResult{
		Match:   "from metadata.load_manifest",
		Columns: []string{"FILE_NAME", "CHECKSUM"},
		Rows:    [][]interface{}{{"a.parquet", "e1"}, {"b.parquet", "e2"}},
	})
	db.AddQueryResult(shared.MockQueryResult{Match: "count(*)", Columns: []string{"C"}, Rows: [][]interface{}{{100}}})
	// Test 1 - SqlQuery streams header and rows.
	c := &RowCollector{}
	if err := SqlQuery(ctx, log, db, "select file_name, checksum from metadata.load_manifest where table_name = ?", c, "t"); err != nil {
		t.Fatal(err)
	}
	if len(c.Header) != 2 || len(c.Rows) != 2 || c.Rows[1][0] != "b.parquet" {
		t.Fatalf("unexpected collected rows %v %v", c.Header, c.Rows)
	}
	_, args := db.StatementsContaining("load_manifest")
	if len(args) != 1 || args[0][0] != "t" {
		t.Fatalf("expected bound args to be passed through; got %v", args)
	}
	// Test 2 - QueryOne scans the first row.
	var n int64
	if err := QueryOne(ctx, db, "select count(*) from stg_taxi", nil, &n); err != nil || n != 100 {
		t.Fatalf("expected 100; got %v, %v", n, err)
	}
	// Test 3 - QueryOne with no rows returns sql.ErrNoRows.
	if err := QueryOne(ctx, db, "select 1 from dual", nil, &n); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows; got %v", err)
	}
}

func TestOpenDbConnectionMock(t *testing.T) {
	log := logger.NewLogger("taxipipe", "error", true)
	c := NewSnowflakeConnectionDetails("warehouse", "snowflake://u:p@acc/db/schema")
	c.Type = constants.ConnectionTypeMockSnowflake
	db, err := OpenDbConnection(context.Background(), log, c)
	if err != nil {
		t.Fatal(err)
	}
	if db.GetType() != constants.ConnectionTypeSnowflake {
		t.Fatalf("unexpected type %q", db.GetType())
	}
	c.Type = "oracle"
	if _, err := OpenDbConnection(context.Background(), log, c); err == nil {
		t.Fatal("expected error for unsupported database type")
	}
}
