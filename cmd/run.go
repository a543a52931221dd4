package cmd

import (
	"context"

	"github.com/relloyd/taxipipe/actions"
	"github.com/relloyd/taxipipe/constants"
	"github.com/spf13/cobra"
)

var runCfg = actions.RunConfig{}

var runCmd = &cobra.Command{
	Use:   constants.ActionFuncsCommandRun,
	Short: "Run the whole pipeline for one month",
	Long: `Run fetch, load, transform and log for the month before the logical date.
The two feeds are fetched and loaded concurrently. Use --from to resume a failed run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd.Context())
	},
}

var fetchCmd = &cobra.Command{
	Use:   constants.ActionFuncsCommandFetch,
	Short: "Download the month's trip record files into the landing bucket",
	Long:  `Download the month's trip record files into the landing bucket, replacing existing objects`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFetch(cmd.Context())
	},
}

var loadCmd = &cobra.Command{
	Use:   constants.ActionFuncsCommandLoad,
	Short: "Copy the month's staged files into the landing tables",
	Long: `Copy the month's staged files into the landing tables.
Files already recorded in the load manifest with the same checksum are not loaded again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLoad(cmd.Context())
	},
}

var logRunCmd = &cobra.Command{
	Use:   constants.ActionFuncsCommandLogRun,
	Short: "Write the processing log rows for a run",
	Long:  `Write the processing log rows for a run; repeating this for the same run id is a no-op`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLogRun(cmd.Context())
	},
}

func withConfig(rc *actions.RunConfig) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rc.Config = cfg
	return nil
}

func runPipeline(ctx context.Context) error {
	if err := withConfig(&runCfg); err != nil {
		return err
	}
	info, err := actions.RunPipeline(ctx, &runCfg, nil)
	if err != nil {
		return err
	}
	return printOutput(info, runOutput)
}

func runFetch(ctx context.Context) error {
	if err := withConfig(&runCfg); err != nil {
		return err
	}
	landed, err := actions.RunFetch(ctx, &runCfg)
	if err != nil {
		return err
	}
	return printOutput(landed, runOutput)
}

func runLoad(ctx context.Context) error {
	if err := withConfig(&runCfg); err != nil {
		return err
	}
	loads, err := actions.RunLoad(ctx, &runCfg)
	if err != nil {
		return err
	}
	return printOutput(loads, runOutput)
}

func runLogRun(ctx context.Context) error {
	if err := withConfig(&runCfg); err != nil {
		return err
	}
	recs, err := actions.RunLogRun(ctx, &runCfg)
	if err != nil {
		return err
	}
	return printOutput(recs, runOutput)
}

var runOutput string

func init() {
	rootCmd.AddCommand(runCmd, fetchCmd, loadCmd, logRunCmd)
	for _, c := range []*cobra.Command{runCmd, fetchCmd, loadCmd, logRunCmd} {
		c.Flags().SortFlags = false
		switches.addFlag(c, &runCfg.LogicalDate, "logical-date", "", false, "")
		switches.addFlag(c, &runOutput, "output", "", false, " to print the result")
	}
	for _, c := range []*cobra.Command{fetchCmd, loadCmd} {
		switches.addFlag(c, &runCfg.Period, "period", "", false, "")
	}
	switches.addFlag(runCmd, &runCfg.From, "from", "", false, "")
	switches.addFlag(loadCmd, &runCfg.RunID, "run-id", "", false, " (default a new id)")
	switches.addFlag(logRunCmd, &runCfg.RunID, "run-id", "", true, "")
}
