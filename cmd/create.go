package cmd

import (
	"context"

	"github.com/relloyd/taxipipe/actions"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create warehouse objects used by the pipeline",
	Long:  `Create warehouse objects used by the pipeline`,
}

var createSetupCfg = actions.CreateSetupConfig{}

var createSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Print or execute the DDL for the stage, landing tables, manifest and processing log",
	Long: `Print or execute the DDL for the database, schema, external stage, landing tables,
load manifest and processing log. Secrets are hidden when the DDL is printed.
Use --execute-ddl to apply it to the warehouse instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCreateSetup(cmd.Context())
	},
}

func runCreateSetup(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	createSetupCfg.Config = cfg
	createSetupCfg.Out = stdout
	return actions.RunCreateSetup(ctx, &createSetupCfg)
}

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.AddCommand(createSetupCmd)
	switches.addFlag(createSetupCmd, &createSetupCfg.ExecuteDDL, "execute-ddl", "false", false, "")
}
