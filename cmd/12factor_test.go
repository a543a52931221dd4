package cmd

import (
	"context"
	"errors"
	"testing"

	c "github.com/relloyd/taxipipe/constants"
)

var results = map[string]int{}

func getMock12FactorExecutor(action string, err error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		results[action]++
		return err
	}
}

var mockTwelveFactorActions = map[string]twelveFactorAction{
	c.ActionFuncsCommandRun:  {runnerFunc: getMock12FactorExecutor(c.ActionFuncsCommandRun, nil)},
	c.ActionFuncsCommandLoad: {runnerFunc: getMock12FactorExecutor(c.ActionFuncsCommandLoad, errors.New("load failed"))},
}

func TestSetupTwelveFactorMode(t *testing.T) {
	defer func() {
		twelveFactorMode = false
		lambdaMode = false
	}()
	if twelveFactorMode {
		t.Fatal("expected twelveFactorMode to be false; got true")
	}
	t.Setenv(envVarTwelveFactorMode, "1")
	setupTwelveFactorMode()
	if !twelveFactorMode || lambdaMode {
		t.Fatalf("expected twelveFactorMode only; got twelveFactorMode=%v lambdaMode=%v", twelveFactorMode, lambdaMode)
	}
	t.Setenv(envVarTwelveFactorMode, "Lambda")
	setupTwelveFactorMode()
	if !twelveFactorMode || !lambdaMode {
		t.Fatalf("expected lambda mode; got twelveFactorMode=%v lambdaMode=%v", twelveFactorMode, lambdaMode)
	}
	t.Setenv(envVarTwelveFactorMode, "")
	setupTwelveFactorMode()
	if twelveFactorMode || lambdaMode {
		t.Fatal("expected 12 factor mode to be switched off")
	}
}

func TestExecute12FactorMode(t *testing.T) {
	t.Setenv("TP_LOG_LEVEL", "error")

	// Test 1 - action runner function is called.
	t.Setenv(envVarCommand, "RUN")
	if err := execute12FactorMode(context.Background(), mockTwelveFactorActions); err != nil {
		t.Fatalf("test 1 failed: expected nil error got error: %v", err)
	}
	if results[c.ActionFuncsCommandRun] != 1 {
		t.Fatalf("test 1 failed, expected the run action to be called once; got %v", results[c.ActionFuncsCommandRun])
	}

	// Test 2 - invalid command.
	t.Setenv(envVarCommand, "invalidCommand")
	if err := execute12FactorMode(context.Background(), mockTwelveFactorActions); err == nil {
		t.Fatal("test 2 failed, expected: error; got: nil")
	}

	// Test 3 - runner errors are returned.
	t.Setenv(envVarCommand, c.ActionFuncsCommandLoad)
	if err := execute12FactorMode(context.Background(), mockTwelveFactorActions); err == nil || err.Error() != "load failed" {
		t.Fatalf("test 3 failed, expected the runner error; got: %v", err)
	}
}

func TestTwelveFactorActions(t *testing.T) {
	// Every cobra command that processes a period must be reachable via TP_COMMAND.
	for _, cmd := range []string{
		runCmd.Name(), fetchCmd.Name(), loadCmd.Name(), logRunCmd.Name(), scheduleCmd.Name(),
		serveCmd.Name(), createCmd.Name() + "-" + createSetupCmd.Name(),
	} {
		if _, ok := twelveFactorActions[cmd]; !ok {
			t.Fatalf("twelveFactorActions does not handle Cobra command %v", cmd)
		}
	}
}
