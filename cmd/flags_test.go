package cmd

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestGetCliFlag(t *testing.T) {
	defer func() { twelveFactorMode = false }()
	flagName := "mock"
	mockEnvVar := flagNameToEnvVar(flagName)
	if mockEnvVar != "TP_MOCK" {
		t.Fatalf("unexpected env var name %v", mockEnvVar)
	}
	expected := "envTest"
	d := "myDefault"
	// Test 1 - test default value applied to mock CLI flag.
	got := switches.getCliFlag(flagName, d)
	if got.val != d {
		t.Fatalf("test 1 failed: expected default value %v to be applied to mock CLI flag; got %v", d, got.val)
	}
	// Test 2 - fetch flag value from environment when it is not set - expect default value to be applied.
	twelveFactorMode = true
	got = switches.getCliFlag(flagName, d)
	if got.val != d {
		t.Fatalf("test 2 failed: expected default value (%v) to be applied to mock CLI flag fetched via environment variable (%v)", d, mockEnvVar)
	}
	// Test 3 - fetch flag value from environment after setting it explicitly (requires twelveFactorMode).
	t.Setenv(mockEnvVar, expected)
	got = switches.getCliFlag(flagName, d)
	if got.val != expected {
		t.Fatalf("test 3 failed: expected %v; got %v", expected, got.val)
	}
}

func TestFlagNameToEnvVar(t *testing.T) {
	if got := flagNameToEnvVar("logical-date"); got != "TP_LOGICAL_DATE" {
		t.Fatalf("expected TP_LOGICAL_DATE; got %v", got)
	}
}

func TestAddFlagTwelveFactorMode(t *testing.T) {
	defer func() { twelveFactorMode = false }()
	twelveFactorMode = true
	t.Setenv("TP_LOGICAL_DATE", "2025-03-01")
	t.Setenv("TP_EXECUTE_DDL", "yes")
	t.Setenv("TP_PORT", "9090")
	c := &cobra.Command{Use: "test"}
	var s string
	var b bool
	var i int
	switches.addFlag(c, &s, "logical-date", "", true, "")
	switches.addFlag(c, &b, "execute-ddl", "false", false, "")
	switches.addFlag(c, &i, "port", "0", false, "")
	if s != "2025-03-01" || !b || i != 9090 {
		t.Fatalf("expected values from the environment; got %q %v %v", s, b, i)
	}
	if c.Flags().Lookup("logical-date") != nil {
		t.Fatal("flags should not be registered in 12 factor mode")
	}
}

func TestAddFlagCli(t *testing.T) {
	c := &cobra.Command{Use: "test"}
	var s string
	switches.addFlag(c, &s, "period", "2025-02", false, "")
	f := c.Flags().Lookup("period")
	if f == nil || f.Shorthand != "p" || f.DefValue != "2025-02" {
		t.Fatalf("unexpected flag %+v", f)
	}
	if err := c.Flags().Parse([]string{"-p", "2024-12"}); err != nil {
		t.Fatal(err)
	}
	if s != "2024-12" {
		t.Fatalf("expected 2024-12; got %v", s)
	}
}
