package actions

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/taxipipe/config"
	"github.com/relloyd/taxipipe/constants"
	"github.com/relloyd/taxipipe/feed"
	"github.com/relloyd/taxipipe/helper"
	"github.com/relloyd/taxipipe/rdbms"
)

// Columns of the published trip record files; the landing tables match them by name.
var landingColumns = map[feed.Name][]string{
	feed.Green: {
		"VendorID number",
		"lpep_pickup_datetime timestamp_ntz",
		"lpep_dropoff_datetime timestamp_ntz",
		"store_and_fwd_flag varchar",
		"RatecodeID number",
		"PULocationID number",
		"DOLocationID number",
		"passenger_count number",
		"trip_distance float",
		"fare_amount float",
		"extra float",
		"mta_tax float",
		"tip_amount float",
		"tolls_amount float",
		"ehail_fee float",
		"improvement_surcharge float",
		"total_amount float",
		"payment_type number",
		"trip_type number",
		"congestion_surcharge float",
		"cbd_congestion_fee float",
	},
	feed.Yellow: {
		"VendorID number",
		"tpep_pickup_datetime timestamp_ntz",
		"tpep_dropoff_datetime timestamp_ntz",
		"passenger_count number",
		"trip_distance float",
		"RatecodeID number",
		"store_and_fwd_flag varchar",
		"PULocationID number",
		"DOLocationID number",
		"payment_type number",
		"fare_amount float",
		"extra float",
		"mta_tax float",
		"tip_amount float",
		"tolls_amount float",
		"improvement_surcharge float",
		"total_amount float",
		"congestion_surcharge float",
		"Airport_fee float",
		"cbd_congestion_fee float",
	},
}

type CreateSetupConfig struct {
	Config     config.Config
	Connector  Connector
	ExecuteDDL bool      // otherwise the DDL is printed to Out with secrets hidden.
	Out        io.Writer // defaults to os.Stdout.
}

// RunCreateSetup prints or executes the warehouse objects used by the pipeline:
// database, schemas, external stage, landing tables, load manifest and processing log.
func RunCreateSetup(ctx context.Context, cfg *CreateSetupConfig) error {
	log := (&RunConfig{Config: cfg.Config}).logger()
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	stmts, err := SetupDDL(cfg.Config, !cfg.ExecuteDDL)
	if err != nil {
		return err
	}
	printLogFn := getPrintLogFunc(log, cfg.Out, !cfg.ExecuteDDL)
	if !cfg.ExecuteDDL {
		for _, s := range stmts {
			printLogFn(s + ";")
		}
		return nil
	}
	c, err := (&RunConfig{Config: cfg.Config, Connector: cfg.Connector}).connector().build(ctx, log, cfg.Config, requireWarehouse)
	if err != nil {
		return err
	}
	defer c.Close()
	// USE statements only last for the session so run everything on one connection.
	tx, err := c.Db.BeginTx(ctx)
	if err != nil {
		return errors.Wrap(err, "unable to start transaction")
	}
	if err := rdbms.SnowflakeDDLExec(ctx, log, tx, stmts); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	printLogFn(fmt.Sprintf("Executed %v setup statements.", len(stmts)))
	return nil
}

// SetupDDL returns the setup statements without terminators.
func SetupDDL(cfg config.Config, hideSecrets bool) ([]string, error) {
	w := cfg.Warehouse
	for kind, v := range map[string]string{"database": w.Database, "schema": w.Schema, "stage": w.Stage} {
		if err := rdbms.ValidateIdentifier(kind, v); err != nil {
			return nil, err
		}
	}
	if err := config.ValidateSections(cfg.Store); err != nil {
		return nil, err
	}
	stmts := []string{
		fmt.Sprintf("create database if not exists %v", w.Database),
		fmt.Sprintf("create schema if not exists %v.%v", w.Database, w.Schema),
		fmt.Sprintf("use database %v", w.Database),
		fmt.Sprintf("use schema %v", w.Schema),
	}
	stage, err := stageDDL(cfg, hideSecrets)
	if err != nil {
		return nil, err
	}
	stmts = append(stmts, stage)
	for _, f := range cfg.Feeds() {
		table := cfg.Load.Tables[string(f)]
		if table == "" {
			table = fmt.Sprintf(constants.DefaultLandingTableTemplate, f)
		}
		st, err := rdbms.ParseSchemaTable(table)
		if err != nil {
			return nil, err
		}
		cols := append(append([]string{}, landingColumns[f]...), fmt.Sprintf("%v timestamp_ltz", cfg.Load.LoadTimestampColumn))
		stmts = append(stmts, fmt.Sprintf("create table if not exists %v (\n  %v\n)", st, strings.Join(cols, ",\n  ")))
	}
	manifest, err := rdbms.ParseSchemaTable(cfg.Load.ManifestTable)
	if err != nil {
		return nil, err
	}
	logTable, err := rdbms.ParseSchemaTable(cfg.RunLog.Table)
	if err != nil {
		return nil, err
	}
	schemas := make(map[string]bool)
	for _, st := range []rdbms.SchemaTable{manifest, logTable} {
		if s := st.GetSchema(); s != "" && !schemas[s] {
			schemas[s] = true
			stmts = append(stmts, fmt.Sprintf("create schema if not exists %v", s))
		}
	}
	stmts = append(stmts,
		fmt.Sprintf(`create table if not exists %v (
  table_name varchar not null,
  file_name varchar not null,
  checksum varchar not null,
  rows_loaded number,
  run_id varchar,
  loaded_at timestamp_ltz
)`, manifest),
		fmt.Sprintf(`create table if not exists %v (
  pipeline_run_id varchar not null,
  table_processed varchar not null,
  total_rows_processed number,
  new_rows_processed number,
  latest_processed_pickup_date date,
  processed_datetime timestamp_ltz
)`, logTable),
	)
	return stmts, nil
}

// stageDDL points the stage at the landing bucket using a storage integration when configured,
// else AWS keys from the config or the standard AWS environment variables.
func stageDDL(cfg config.Config, hideSecrets bool) (string, error) {
	w := cfg.Warehouse
	b, err := cfg.Store.S3Bucket()
	if err != nil {
		return "", err
	}
	var auth string
	if w.StorageIntegration != "" {
		if err := rdbms.ValidateIdentifier("storage integration", w.StorageIntegration); err != nil {
			return "", err
		}
		auth = fmt.Sprintf("storage_integration = %v", w.StorageIntegration)
	} else {
		key := w.AwsKeyID
		if key == "" {
			key, _ = helper.GetEnvVar("AWS_ACCESS_KEY_ID", false)
		}
		secret := w.AwsSecretKey
		if secret == "" {
			secret, _ = helper.GetEnvVar("AWS_SECRET_ACCESS_KEY", false)
		}
		if key == "" || secret == "" {
			return "", errors.New("stage credentials missing: set warehouse.storage_integration or warehouse.aws_key_id and warehouse.aws_secret_key (or AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY)")
		}
		if hideSecrets {
			secret = "xxxxx"
		}
		auth = fmt.Sprintf("credentials = (\n    aws_key_id = '%v'\n    aws_secret_key = '%v'\n  )",
			rdbms.EscapeLiteral(key), rdbms.EscapeLiteral(secret))
	}
	return fmt.Sprintf(`create or replace stage %v
  url = '%v'
  %v
  file_format = (type = parquet)
  comment = '%v landing bucket'`, w.Stage, rdbms.EscapeLiteral(b.URL()), auth, constants.ServiceName), nil
}
