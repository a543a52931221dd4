package cmd

import (
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the pipeline configuration",
	Long:  `Inspect the pipeline configuration`,
}

var configPrintFormat string

var configPrintCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the effective configuration with secrets redacted",
	Long: `Print the effective configuration, i.e. defaults overlaid by the config file
and TP_ environment variables, with secrets redacted`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return cfg.Print(stdout, configPrintFormat)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configPrintCmd)
	switches.addFlag(configPrintCmd, &configPrintFormat, "output", "yaml", false, "")
}
