package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	c "github.com/relloyd/taxipipe/constants"
	"github.com/relloyd/taxipipe/helper"
	"github.com/relloyd/taxipipe/logger"
)

// init will be called first due to the lexical order in which these functions are executed.
// This ensures the value of twelveFactorMode is set such that other init() functions that configure
// Cobra can do the job of processing all environment variables that would contain equivalent of the CLI flag
// structures used by the actions.
func init() {
	setupTwelveFactorMode()
}

// setupTwelveFactorMode will enable or disable 12 factor mode based on environment variable.
func setupTwelveFactorMode() {
	mode := os.Getenv(envVarTwelveFactorMode)
	if mode != "" { // if variable for 12factor mode is set and we should read env vars to determine actions...
		twelveFactorMode = true
		lambdaMode = strings.ToLower(mode) == "lambda"
	} else { // else 12factor mode should be off...
		twelveFactorMode = false // explicitly turn off this mode since tests may have turned it on while others require it off.
		lambdaMode = false
	}
}

const (
	envVarTwelveFactorMode = c.EnvVarPrefix + "_" + "12FACTOR_MODE"
	envVarCommand          = c.EnvVarPrefix + "_" + "COMMAND"
)

var (
	twelveFactorMode bool // true if os env var envVarTwelveFactorMode is set
	lambdaMode       bool // true if envVarTwelveFactorMode is "lambda"
)

type twelveFactorAction struct {
	runnerFunc func(ctx context.Context) error
}

// twelveFactorActions maps TP_COMMAND values to the runners used by the equivalent cobra commands.
// Flag values are read from TP_<FLAG> variables, e.g. TP_LOGICAL_DATE and TP_FROM.
var twelveFactorActions = map[string]twelveFactorAction{
	c.ActionFuncsCommandRun:      {runnerFunc: runPipeline},
	c.ActionFuncsCommandFetch:    {runnerFunc: runFetch},
	c.ActionFuncsCommandLoad:     {runnerFunc: runLoad},
	c.ActionFuncsCommandLogRun:   {runnerFunc: runLogRun},
	c.ActionFuncsCommandSchedule: {runnerFunc: runSchedule},
	"create-setup":               {runnerFunc: runCreateSetup},
	"serve":                      {runnerFunc: func(ctx context.Context) error { return runServe() }},
}

func execute12FactorMode(ctx context.Context, acts map[string]twelveFactorAction) (err error) {
	level := helper.ReadValueFromEnvWithDefault(c.EnvVarPrefix+"_LOG_LEVEL", "warn")
	log := logger.NewLogger(c.ServiceName, level, stackDumpOnPanic)
	log.Info("running in 12 Factor mode...")
	command := strings.ToLower(strings.TrimSpace(os.Getenv(envVarCommand)))
	log.Debug(envVarCommand, "=", command)
	a, ok := acts[command]
	if !ok {
		err = fmt.Errorf("invalid command %q set in %v", command, envVarCommand)
		log.Error(err.Error())
		return
	}
	if err = a.runnerFunc(ctx); err != nil {
		log.Error("Error: ", err)
	}
	return err
}
