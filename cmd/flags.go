package cmd

import (
	"fmt"
	"os"
	"reflect"
	"strconv"

	"github.com/relloyd/taxipipe/helper"
	"github.com/spf13/cobra"
)

type cliFlag struct {
	name      string // name of flag
	val       string // default value
	shortHand string // single character name for the flag
	desc      string // description of the flag; the long text
}

type cliFlags map[string]cliFlag

var switches = cliFlags{
	"mock": cliFlag{name: "mock", shortHand: "m", desc: "mock switch for testing"},
	"logical-date": cliFlag{name: "logical-date", shortHand: "d",
		desc: "The run's logical date (YYYY-MM-DD). The run processes the calendar month before it,\n" +
			"so 2025-03-01 processes 2025-02 (default today)"},
	"period": cliFlag{name: "period", shortHand: "p",
		desc: "The month to process (YYYY-MM); takes priority over the logical date"},
	"from": cliFlag{name: "from", shortHand: "f",
		desc: "Resume the run from this stage: fetch | load | transform | log.\n" +
			"Earlier stages are skipped; fetch and load are safe to repeat"},
	"run-id": cliFlag{name: "run-id", shortHand: "r",
		desc: "The pipeline run id recorded in the load manifest and the processing log"},
	"execute-ddl": cliFlag{name: "execute-ddl", shortHand: "e",
		desc: "Execute the generated DDL against the warehouse (otherwise it's printed only)"},
	"output": cliFlag{name: "output", shortHand: "o",
		desc: "Specify \"yaml\" or \"json\" output format"},
	"address": cliFlag{name: "address", shortHand: "a",
		desc: "Address to listen on (default from server.addr)"},
	"port": cliFlag{name: "port", shortHand: "P",
		desc: "Port to listen on (default from server.port)"},
	"schedule": cliFlag{name: "schedule", shortHand: "s",
		desc: "Also launch runs on the configured schedule (schedule.spec)"},
}

// addFlag add a flag to cobra.Command c, based on the type of targetVar (which must be a pointer).
// The name of the flag is looked up in map, cliFlags.
// When running in twelveFactorMode, the targetVar is populated using the value of environment variable for the supplied
// name, or if not set then the supplied default value is used.
// The flag is marked as required in Cobra based on the value of required.
// Supply a value for desc2 to append to the existing description found in map cliFlags.
func (f *cliFlags) addFlag(c *cobra.Command, targetVar interface{}, name string, defaultValue string, required bool, desc2 string) {
	v := reflect.ValueOf(targetVar)
	if v.Kind() != reflect.Ptr {
		fmt.Println("error adding flag: targetVar must be a pointer")
		os.Exit(1)
	}
	sw := f.getCliFlag(name, defaultValue)
	desc := sw.desc + desc2
	switch p := targetVar.(type) {
	case *string:
		if twelveFactorMode {
			*p = sw.val
		} else {
			c.Flags().StringVarP(p, sw.name, sw.shortHand, sw.val, desc)
		}
	case *bool:
		defaultBool := false
		if b, err := strconv.ParseBool(sw.val); err == nil {
			defaultBool = b
		} else if twelveFactorMode && sw.val != "" { // any other value set in the environment means true.
			defaultBool = true
		}
		if twelveFactorMode {
			*p = defaultBool
		} else {
			c.Flags().BoolVarP(p, sw.name, sw.shortHand, defaultBool, desc)
		}
	case *int:
		defaultInt, err := strconv.Atoi(sw.val)
		if err != nil {
			fmt.Printf("the value for flag %q must be an integer: %v\n", sw.name, err)
			os.Exit(1)
		}
		if twelveFactorMode {
			*p = defaultInt
		} else {
			c.Flags().IntVarP(p, sw.name, sw.shortHand, defaultInt, desc)
		}
	default:
		panic("Error: unhandled CLI flag target value type")
	}
	if required && !twelveFactorMode {
		_ = c.MarkFlagRequired(sw.name)
	}
}

// getCliFlag fetches the value of name from the environment, when running in twelveFactorMode.
// If a value cannot be found then use the supplied defaultValue in its place.
func (f *cliFlags) getCliFlag(name string, defaultValue string) cliFlag {
	s, ok := (*f)[name]
	if !ok {
		panic(fmt.Sprintf("unregistered CLI flag, %q", name))
	}
	s.val = defaultValue
	if twelveFactorMode {
		s.val = helper.ReadValueFromEnvWithDefault(flagNameToEnvVar(name), defaultValue)
	}
	return s
}

// flagNameToEnvVar will form a sanitised environment variable name using helper.GetEnvVarName.
func flagNameToEnvVar(name string) string {
	return helper.GetEnvVarName(name)
}
