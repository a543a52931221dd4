package actions

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/taxipipe/config"
	"github.com/relloyd/taxipipe/constants"
	"github.com/relloyd/taxipipe/logger"
	"github.com/robfig/cron/v3"
)

type ScheduleConfig struct {
	Config    config.Config
	Connector Connector
}

// RunSchedule launches a pipeline run each time Config.Schedule.Spec fires, using the fire
// time as the logical date, until ctx is done or the process is interrupted.
// A run still in progress causes the next firing to be skipped, here and under serve --schedule.
func RunSchedule(ctx context.Context, cfg *ScheduleConfig) error {
	rc := &RunConfig{Config: cfg.Config, Connector: cfg.Connector}
	log := rc.logger()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c, err := newScheduler(log, cfg.Config.Schedule.Spec, func(logicalDate time.Time) {
		run := *rc
		run.LogicalDate = logicalDate.Format(constants.TimeFormatLogicalDate)
		if _, err := RunPipeline(ctx, &run, nil); err != nil {
			log.Error("scheduled run for ", run.LogicalDate, " failed: ", err)
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	log.Info("scheduler started with spec ", cfg.Config.Schedule.Spec, "; next run at ", c.Entries()[0].Next.Format(time.RFC3339))
	chanOS := make(chan os.Signal, 1)
	signal.Notify(chanOS, os.Interrupt)
	defer signal.Stop(chanOS)
	select {
	case <-ctx.Done():
	case <-chanOS:
	}
	log.Info("Shutting down scheduler...")
	cancel()
	<-c.Stop().Done()
	return nil
}

// newScheduler returns a stopped cron in UTC that calls fn with the fire time.
func newScheduler(log logger.Logger, spec string, fn func(logicalDate time.Time)) (*cron.Cron, error) {
	if spec == "" {
		spec = constants.DefaultSchedule
	}
	cl := cronLogger{log: log.WithField("component", "scheduler")}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(spec, func() { fn(time.Now().UTC()) }); err != nil {
		return nil, errors.Wrapf(err, "invalid schedule %q", spec)
	}
	return c, nil
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(append([]interface{}{msg, " "}, keysAndValues...)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(append([]interface{}{msg, ": ", err, " "}, keysAndValues...)...)
}
