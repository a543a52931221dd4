package transform

import (
	"context"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/relloyd/taxipipe/constants"
	"github.com/relloyd/taxipipe/dag"
	"github.com/relloyd/taxipipe/logger"
	"github.com/relloyd/taxipipe/period"
	"github.com/relloyd/taxipipe/pipeerr"
	"github.com/relloyd/taxipipe/rdbms/shared"
)

func testRun() dag.RunContext {
	d := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	return dag.RunContext{RunID: "run-x", LogicalDate: d, Period: period.FromLogicalDate(d)}
}

// writeScript creates an executable that records its arguments and exits with code.
func writeScript(t *testing.T, code string) (script string, argsFile string) {
	dir, err := ioutil.TempDir("", "dbt")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	argsFile = filepath.Join(dir, "args")
	script = filepath.Join(dir, "dbt")
	body := "#!/bin/sh\necho \"$@\" > " + argsFile + "\necho model output\nexit " + code + "\n"
	if err := ioutil.WriteFile(script, []byte(body), 0755); err != nil {
		t.Fatal(err)
	}
	return script, argsFile
}

func TestDbtRunner(t *testing.T) {
	log := logger.NewLogger("taxipipe", "error", true)
	script, argsFile := writeScript(t, "0")
	r, err := NewRunner(log, Config{Type: constants.TransformTypeDbt, Dbt: DbtConfig{
		Executable: script, ProjectDir: "/proj", ProfilesDir: "/prof", Target: "prod",
	}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Run(context.Background(), testRun()); err != nil {
		t.Fatal(err)
	}
	b, _ := ioutil.ReadFile(argsFile)
	expected := `build --project-dir /proj --profiles-dir /prof --target prod --vars {"logical_date":"2025-03-01","period":"2025-02","run_id":"run-x"}`
	if strings.TrimSpace(string(b)) != expected {
		t.Fatalf("expected args %q; got %q", expected, b)
	}
}

func TestDbtRunnerFailure(t *testing.T) {
	log := logger.NewLogger("taxipipe", "error", true)
	script, _ := writeScript(t, "2")
	r, _ := NewDbtRunner(log, DbtConfig{Executable: script})
	err := r.Run(context.Background(), testRun())
	var terr *pipeerr.TransformError
	if !errors.As(err, &terr) || terr.Runner != constants.TransformTypeDbt {
		t.Fatalf("expected TransformError; got %v", err)
	}
}

func TestSqlRunner(t *testing.T) {
	log := logger.NewLogger("taxipipe", "error", true)
	db := shared.NewMockConnectionWithMockTx(log, constants.ConnectionTypeSnowflake)
	r, err := NewRunner(log, Config{Type: constants.TransformTypeSql, Statements: []string{
		"create or replace view rpt_monthly as select * from fct_trips",
		"delete from fct_trips_audit where run_id = '${run_id}' and period = '${period}'",
	}}, db)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Run(context.Background(), testRun()); err != nil {
		t.Fatal(err)
	}
	stmts := db.Statements()
	if len(stmts) != 2 || stmts[1] != "delete from fct_trips_audit where run_id = 'run-x' and period = '2025-02'" {
		t.Fatalf("unexpected statements %v", stmts)
	}
	if db.Commits() != 1 {
		t.Fatalf("expected commit; got %v", db.Commits())
	}
	// A failing statement rolls back and reports a TransformError.
	db.AddExecError("create or replace view", errors.New("denied"))
	err = r.Run(context.Background(), testRun())
	var terr *pipeerr.TransformError
	if !errors.As(err, &terr) || db.Rollbacks() != 1 {
		t.Fatalf("expected TransformError with rollback; got %v", err)
	}
}

func TestNewRunnerNoneAndUnknown(t *testing.T) {
	log := logger.NewLogger("taxipipe", "error", true)
	r, err := NewRunner(log, Config{Type: constants.TransformTypeNone}, nil)
	if err != nil || r.Run(context.Background(), testRun()) != nil {
		t.Fatalf("expected no-op runner; got %v", err)
	}
	if _, err := NewRunner(log, Config{Type: "spark"}, nil); err == nil {
		t.Fatal("expected error for unknown type")
	}
	if _, err := NewRunner(log, Config{Type: constants.TransformTypeSql}, nil); err == nil {
		t.Fatal("expected error for sql runner without connection")
	}
}
