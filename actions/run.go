package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/relloyd/taxipipe/config"
	"github.com/relloyd/taxipipe/constants"
	"github.com/relloyd/taxipipe/dag"
	"github.com/relloyd/taxipipe/fetcher"
	"github.com/relloyd/taxipipe/loader"
	"github.com/relloyd/taxipipe/logger"
	"github.com/relloyd/taxipipe/period"
	"github.com/relloyd/taxipipe/pipeline"
	"github.com/relloyd/taxipipe/runlog"
	"github.com/rs/xid"
)

// RunConfig is shared by the commands that process one period.
type RunConfig struct {
	Config      config.Config
	Connector   Connector
	Log         logger.Logger // defaults to a logger built from Config.Log.
	LogicalDate string        // YYYY-MM-DD; the run processes the month before it. Defaults to today.
	Period      string        // YYYY-MM; overrides LogicalDate for fetch and load.
	RunID       string        // defaults to a new id.
	From        string        // pipeline stage to resume from.
}

func (r *RunConfig) logger() logger.Logger {
	if r.Log == nil {
		r.Log = logger.NewLogger(constants.ServiceName, r.Config.Log.Level, r.Config.Log.StackDump)
	}
	return r.Log
}

func (r *RunConfig) connector() Connector {
	c := r.Connector
	if c.NewStore == nil {
		c.NewStore = DefaultConnector.NewStore
	}
	if c.OpenDb == nil {
		c.OpenDb = DefaultConnector.OpenDb
	}
	return c
}

// runContext resolves the logical date, period and run id.
func (r *RunConfig) runContext(now time.Time) (dag.RunContext, error) {
	run := dag.RunContext{RunID: r.RunID}
	if run.RunID == "" {
		run.RunID = xid.New().String()
	}
	run.LogicalDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if r.LogicalDate != "" {
		d, err := time.Parse(constants.TimeFormatLogicalDate, r.LogicalDate)
		if err != nil {
			return run, fmt.Errorf("unable to parse logical date %q, expected YYYY-MM-DD", r.LogicalDate)
		}
		run.LogicalDate = d
	}
	run.Period = period.FromLogicalDate(run.LogicalDate)
	if r.Period != "" {
		p, err := period.Parse(r.Period)
		if err != nil {
			return run, err
		}
		run.Period = p
	}
	return run, nil
}

// RunPipeline executes the full graph for one logical date.
func RunPipeline(ctx context.Context, cfg *RunConfig, registry *pipeline.SafeMapRunInfo) (pipeline.RunInfo, error) {
	log := cfg.logger()
	run, err := cfg.runContext(time.Now())
	if err != nil {
		return pipeline.RunInfo{}, err
	}
	c, err := cfg.connector().build(ctx, log, cfg.Config, requireStore|requireWarehouse)
	if err != nil {
		return pipeline.RunInfo{}, err
	}
	defer c.Close()
	p, err := c.Pipeline(registry)
	if err != nil {
		return pipeline.RunInfo{}, err
	}
	return p.Run(ctx, run, cfg.From)
}

// RunFetch downloads every configured feed for the period into the landing bucket.
func RunFetch(ctx context.Context, cfg *RunConfig) ([]fetcher.LandedObject, error) {
	log := cfg.logger()
	run, err := cfg.runContext(time.Now())
	if err != nil {
		return nil, err
	}
	c, err := cfg.connector().build(ctx, log, cfg.Config, requireStore)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	log.Info("fetching period ", run.Period)
	return c.Fetcher.FetchAndLand(ctx, run.Period)
}

// RunLoad copies each configured feed for the period from the stage into its landing table.
// All feeds are attempted; the first error is returned after the others complete.
func RunLoad(ctx context.Context, cfg *RunConfig) ([]loader.LoadResult, error) {
	log := cfg.logger()
	run, err := cfg.runContext(time.Now())
	if err != nil {
		return nil, err
	}
	c, err := cfg.connector().build(ctx, log, cfg.Config, requireStore|requireWarehouse)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	var retval []loader.LoadResult
	var firstErr error
	for _, f := range cfg.Config.Feeds() {
		res, err := c.Loader.LoadLanding(ctx, run.RunID, f, run.Period)
		if err != nil {
			log.Error(err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		retval = append(retval, res)
	}
	return retval, firstErr
}

// RunLogRun writes the processing log rows for the configured target tables.
func RunLogRun(ctx context.Context, cfg *RunConfig) ([]runlog.Record, error) {
	log := cfg.logger()
	if cfg.RunID == "" {
		return nil, fmt.Errorf("a run id is required to write the processing log")
	}
	c, err := cfg.connector().build(ctx, log, cfg.Config, requireWarehouse)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	retval := make([]runlog.Record, 0, len(cfg.Config.RunLog.Targets))
	for _, table := range cfg.Config.RunLog.Targets {
		r, err := c.RunLogger.LogRun(ctx, cfg.RunID, table)
		if err != nil {
			return retval, err
		}
		retval = append(retval, r)
	}
	return retval, nil
}
