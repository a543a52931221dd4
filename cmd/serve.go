package cmd

import (
	"github.com/relloyd/taxipipe/actions"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a web service to launch pipeline runs and report their status",
	Long: `Start a web service to launch pipeline runs and report their status.
POST {"logicalDate": "2025-03-01", "from": "load"} to /launch; GET /runs and /runs/{runId} to
watch progress and /runs/{runId}/stop to cancel a run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var serveConfig = actions.WebServerConfig{
	Listen: actions.ListenConfig{Scheme: "http"},
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	serveConfig.Config = cfg
	if serveConfig.Listen.Addr == "" {
		serveConfig.Listen.Addr = cfg.Server.Addr
	}
	if serveConfig.Listen.Port == 0 {
		serveConfig.Listen.Port = cfg.Server.Port
	}
	return actions.RunWebServer(&serveConfig)
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().SortFlags = false
	switches.addFlag(serveCmd, &serveConfig.Listen.Addr, "address", "", false, "")
	switches.addFlag(serveCmd, &serveConfig.Listen.Port, "port", "0", false, "")
	switches.addFlag(serveCmd, &serveConfig.Schedule, "schedule", "false", false, "")
}
