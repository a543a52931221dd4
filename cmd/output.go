package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ghodss/yaml"
)

var stdout io.Writer = os.Stdout

// printOutput writes i to stdout as yaml or json. Nothing is printed when format is empty.
func printOutput(i interface{}, format string) error {
	var b []byte
	var err error
	switch strings.ToLower(format) {
	case "":
		return nil
	case "yaml":
		b, err = yaml.Marshal(i)
	case "json":
		b, err = json.MarshalIndent(i, "", "  ")
		b = append(b, '\n')
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
	if err != nil {
		return err
	}
	_, err = stdout.Write(b)
	return err
}
