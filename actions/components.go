package actions

import (
	"context"

	"github.com/pkg/errors"
	"github.com/relloyd/taxipipe/aws/s3"
	"github.com/relloyd/taxipipe/config"
	"github.com/relloyd/taxipipe/constants"
	"github.com/relloyd/taxipipe/fetcher"
	"github.com/relloyd/taxipipe/loader"
	"github.com/relloyd/taxipipe/logger"
	"github.com/relloyd/taxipipe/pipeline"
	"github.com/relloyd/taxipipe/rdbms"
	"github.com/relloyd/taxipipe/rdbms/shared"
	"github.com/relloyd/taxipipe/runlog"
	"github.com/relloyd/taxipipe/transform"
)

// Connector opens the external systems used by the actions.
type Connector struct {
	NewStore func(b s3.AwsS3Bucket) (s3.Client, error)
	OpenDb   func(ctx context.Context, log logger.Logger, c shared.ConnectionDetails) (shared.Connector, error)
}

// DefaultConnector uses AWS S3 and the configured warehouse.
var DefaultConnector = Connector{
	NewStore: s3.NewClient,
	OpenDb:   rdbms.OpenDbConnection,
}

type requirement uint8

const (
	requireStore requirement = 1 << iota
	requireWarehouse
)

// Components holds the pipeline collaborators built from the configuration.
type Components struct {
	Config    config.Config
	Log       logger.Logger
	Store     s3.Client
	Db        shared.Connector
	Fetcher   *fetcher.Fetcher
	Loader    *loader.Loader
	RunLogger *runlog.RunLogger
	Transform transform.Runner
}

// Close releases the warehouse connection.
func (c *Components) Close() {
	if c.Db != nil {
		c.Db.Close()
	}
}

// build opens only what req asks for; components that need a missing dependency are left nil.
func (x Connector) build(ctx context.Context, log logger.Logger, cfg config.Config, req requirement) (c *Components, err error) {
	c = &Components{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			c.Close()
			c = nil
		}
	}()
	if req&requireStore != 0 {
		if err = config.ValidateSections(cfg.Store); err != nil {
			return
		}
		var b s3.AwsS3Bucket
		if b, err = cfg.Store.S3Bucket(); err != nil {
			return
		}
		if c.Store, err = x.NewStore(b); err != nil {
			err = errors.Wrapf(err, "unable to create client for bucket %v", b)
			return
		}
		c.Fetcher, err = fetcher.New(fetcher.Config{
			Log:          log.WithField("component", "fetcher"),
			Store:        c.Store,
			BaseURL:      cfg.Source.BaseURL,
			Timeout:      cfg.Source.HTTPTimeout.Duration(),
			KeyLayout:    cfg.Store.KeyLayout,
			SkipExisting: cfg.Source.SkipExisting,
			Feeds:        cfg.Feeds(),
		})
		if err != nil {
			return
		}
	}
	if req&requireWarehouse != 0 {
		if c.Db, err = x.openWarehouse(ctx, log, cfg.Warehouse); err != nil {
			return
		}
		c.RunLogger, err = runlog.New(runlog.Config{
			Log:                 log.WithField("component", "runlog"),
			Db:                  c.Db,
			LogTable:            cfg.RunLog.Table,
			BusinessDateColumn:  cfg.RunLog.BusinessDateColumn,
			LoadTimestampColumn: cfg.RunLog.LoadTimestampColumn,
			NewRowsWindow:       cfg.RunLog.NewRowsWindow.Duration(),
			StatementTimeout:    cfg.Warehouse.StatementTimeout.Duration(),
		})
		if err != nil {
			return
		}
	}
	if c.Store != nil && c.Db != nil {
		c.Loader, err = loader.New(loader.Config{
			Log:                 log.WithField("component", "loader"),
			Db:                  c.Db,
			Store:               c.Store,
			Database:            cfg.Warehouse.Database,
			Schema:              cfg.Warehouse.Schema,
			Stage:               cfg.Warehouse.Stage,
			ManifestTable:       cfg.Load.ManifestTable,
			Tables:              cfg.Load.Tables,
			KeyLayout:           cfg.Store.KeyLayout,
			OnNoFiles:           cfg.Load.OnNoFiles,
			LoadTimestampColumn: cfg.Load.LoadTimestampColumn,
			StatementTimeout:    cfg.Warehouse.StatementTimeout.Duration(),
		})
		if err != nil {
			return
		}
	}
	if req == requireStore|requireWarehouse {
		c.Transform, err = transform.NewRunner(log.WithField("component", "transform"), transform.Config{
			Type: cfg.Transform.Type,
			Dbt: transform.DbtConfig{
				Executable:  cfg.Transform.Dbt.Executable,
				Command:     cfg.Transform.Dbt.Command,
				ProjectDir:  cfg.Transform.Dbt.ProjectDir,
				ProfilesDir: cfg.Transform.Dbt.ProfilesDir,
				Target:      cfg.Transform.Dbt.Target,
				ExtraArgs:   cfg.Transform.Dbt.ExtraArgs,
			},
			Statements: cfg.Transform.Statements,
		}, c.Db)
	}
	return
}

func (x Connector) openWarehouse(ctx context.Context, log logger.Logger, w config.WarehouseConfig) (shared.Connector, error) {
	var cd shared.ConnectionDetails
	switch w.Type {
	case constants.ConnectionTypeMockSnowflake:
		cd = shared.ConnectionDetails{Type: w.Type, LogicalName: "warehouse"}
	default:
		if err := config.ValidateSections(w); err != nil {
			return nil, err
		}
		cd = rdbms.NewSnowflakeConnectionDetails("warehouse", w.DSN)
	}
	db, err := x.OpenDb(ctx, log, cd)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open warehouse connection")
	}
	return db, nil
}

// Pipeline returns the full run graph backed by c; registry may be nil.
func (c *Components) Pipeline(registry *pipeline.SafeMapRunInfo) (*pipeline.Pipeline, error) {
	if c.Transform == nil {
		return nil, errors.New("pipeline requires the object store and the warehouse")
	}
	o := c.Config.Orchestrator
	return pipeline.New(pipeline.Config{
		Log:          c.Log,
		Fetcher:      c.Fetcher,
		Loader:       c.Loader,
		Transformer:  c.Transform,
		RunLogger:    c.RunLogger,
		Feeds:        c.Config.Feeds(),
		LogTables:    c.Config.RunLog.Targets,
		FetchTimeout: o.FetchTimeout.Duration(),
		StepTimeout:  o.StepTimeout.Duration(),
		Retries:      o.Retries,
		RetryDelay:   o.RetryDelay.Duration(),
		Concurrency:  o.Concurrency,
		Registry:     registry,
	})
}
