package cmd

import (
	"context"

	"github.com/relloyd/taxipipe/actions"
	"github.com/relloyd/taxipipe/constants"
	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   constants.ActionFuncsCommandSchedule,
	Short: "Launch a pipeline run each time schedule.spec fires",
	Long: `Launch a pipeline run each time schedule.spec fires (default @monthly, in UTC).
The fire time is used as the run's logical date. Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSchedule(cmd.Context())
	},
}

func runSchedule(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return actions.RunSchedule(ctx, &actions.ScheduleConfig{Config: cfg})
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}
