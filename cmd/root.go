package cmd

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/relloyd/taxipipe/config"
	"github.com/relloyd/taxipipe/constants"
	"github.com/relloyd/taxipipe/helper"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// Default values may be set at compile time.
	version          = "0.1.0"
	buildDate        = "2025-01-01T00:00+0000"
	configFile       string
	logLevel         string
	stackDumpOnPanic bool
)

var rootCmd = &cobra.Command{
	Use:   "taxipipe",
	Short: "Monthly NYC taxi trip record pipeline",
	Long: `taxipipe lands the monthly NYC TLC trip record files in S3, bulk-loads them into
Snowflake landing tables, runs the dbt (or SQL) transform and writes an audit row per
run to the processing log. Each step is idempotent so a failed run can be resumed from
any stage. Start an HTTP server to launch runs and watch their progress.`,
	SilenceUsage: true,
}

func init() {
	cobra.EnableCommandSorting = false
	addPersistentFlags(rootCmd.PersistentFlags())
}

func addPersistentFlags(f *pflag.FlagSet) {
	f.StringVarP(&configFile, "config", "c", "", "Pipeline config `<file>` (default ~/"+config.MainDir+"/"+config.MainFileFullName+")")
	f.StringVarP(&logLevel, "log-level", "l", "", "Log level: \"error | warn | info | debug\" (default from log.level)")
	f.BoolVar(&stackDumpOnPanic, "print-stack", false, "Print a stack dump if there is a panic")
	_ = f.MarkHidden("print-stack")
}

// loadConfig reads the pipeline config and applies TP_ environment overrides and CLI flags.
// The default file is optional; a file named with --config must exist.
func loadConfig() (config.Config, error) {
	path := configFile
	mustExist := path != ""
	if path == "" {
		path = helper.ReadValueFromEnvWithDefault(constants.EnvVarPrefix+"_CONFIG", "")
		mustExist = path != ""
	}
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return config.Config{}, err
		}
	}
	cfg, err := config.Load(path, mustExist, helper.LookupPrefixedEnv(constants.EnvVarPrefix+"_"))
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if stackDumpOnPanic {
		cfg.Log.StackDump = true
	}
	return cfg, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if twelveFactorMode { // if we are running based on environment variables...
		if lambdaMode { // if we should handle lambda execution...
			lambda.Start(func(ctx context.Context) error { return execute12FactorMode(ctx, twelveFactorActions) })
		} else {
			if err := execute12FactorMode(context.Background(), twelveFactorActions); err != nil {
				// execute12FactorMode prints the error.
				os.Exit(1)
			}
		}
	} else { // else we're using CLI args and flags via Cobra...
		if err := rootCmd.ExecuteContext(context.Background()); err != nil {
			// Execute() prints the error.
			os.Exit(1)
		}
	}
}
