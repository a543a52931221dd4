package actions

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestRunCreateSetupPrintsDDL(t *testing.T) {
	e := newTestEnv(t)
	e.cfg.Warehouse.AwsKeyID = "AKIAEXAMPLE"
	e.cfg.Warehouse.AwsSecretKey = "supersecret"
	var out bytes.Buffer
	if err := RunCreateSetup(context.Background(), &CreateSetupConfig{Config: e.cfg, Connector: e.connector(), Out: &out}); err != nil {
		t.Fatal(err)
	}
	ddl := out.String()
	for _, want := range []string{
		"create database if not exists dbt_db_nyctaxi;",
		"create schema if not exists dbt_db_nyctaxi.L1_LANDING;",
		"create or replace stage snow_stage_nyctaxi\n  url = 's3://landing/raw/'",
		"aws_key_id = 'AKIAEXAMPLE'",
		"file_format = (type = parquet)",
		"create table if not exists green_taxi (",
		"lpep_pickup_datetime timestamp_ntz",
		"create table if not exists yellow_taxi (",
		"load_timestamp timestamp_ltz\n);",
		"create table if not exists metadata.load_manifest (",
		"create table if not exists metadata.processing_log (",
		"latest_processed_pickup_date date",
	} {
		if !strings.Contains(ddl, want) {
			t.Fatalf("expected DDL to contain %q:\n%v", want, ddl)
		}
	}
	if strings.Contains(ddl, "supersecret") {
		t.Fatal("printed DDL must not contain the AWS secret")
	}
	if n := strings.Count(ddl, "create schema if not exists metadata;"); n != 1 {
		t.Fatalf("expected the metadata schema once; got %v", n)
	}
	if len(e.db.Statements()) != 0 {
		t.Fatal("printing must not touch the warehouse")
	}
}

func TestRunCreateSetupExecutesDDL(t *testing.T) {
	e := newTestEnv(t)
	e.cfg.Warehouse.StorageIntegration = "s3_int"
	if err := RunCreateSetup(context.Background(), &CreateSetupConfig{Config: e.cfg, Connector: e.connector(), ExecuteDDL: true, Out: &bytes.Buffer{}}); err != nil {
		t.Fatal(err)
	}
	stmts := e.db.Statements()
	if len(stmts) != 10 {
		t.Fatalf("expected 10 statements; got %v: %v", len(stmts), stmts)
	}
	if stmts[2] != "use database dbt_db_nyctaxi" || stmts[3] != "use schema L1_LANDING" {
		t.Fatalf("expected the session to be pinned before creating objects; got %v", stmts[:4])
	}
	if !strings.Contains(stmts[4], "storage_integration = s3_int") || strings.Contains(stmts[4], "credentials") {
		t.Fatalf("expected the stage to use the storage integration; got %v", stmts[4])
	}
	if e.db.Commits() != 1 || !e.db.IsClosed() {
		t.Fatal("expected one commit and a closed connection")
	}
}

func TestSetupDDLRequiresStageCredentials(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	e := newTestEnv(t)
	if _, err := SetupDDL(e.cfg, true); err == nil || !strings.Contains(err.Error(), "stage credentials") {
		t.Fatalf("expected missing credentials to be reported; got %v", err)
	}
	t.Setenv("AWS_ACCESS_KEY_ID", "envkey")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "envsecret")
	stmts, err := SetupDDL(e.cfg, false)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stmts[4], "aws_key_id = 'envkey'") || !strings.Contains(stmts[4], "aws_secret_key = 'envsecret'") {
		t.Fatalf("expected credentials from the environment; got %v", stmts[4])
	}
}

func TestSetupDDLRejectsBadIdentifiers(t *testing.T) {
	e := newTestEnv(t)
	e.cfg.Warehouse.StorageIntegration = "s3_int"
	e.cfg.Load.Tables = map[string]string{"green": "green taxi"}
	if _, err := SetupDDL(e.cfg, true); err == nil {
		t.Fatal("expected an invalid landing table name to be rejected")
	}
	e.cfg.Load.Tables = nil
	e.cfg.Warehouse.StorageIntegration = "int'; drop"
	if _, err := SetupDDL(e.cfg, true); err == nil {
		t.Fatal("expected an invalid storage integration to be rejected")
	}
}
