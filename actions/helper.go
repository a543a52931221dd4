package actions

import (
	"fmt"
	"io"

	"github.com/relloyd/taxipipe/logger"
)

func getPrintLogFunc(log logger.Logger, out io.Writer, useOut bool) func(msg string) {
	return func(msg string) {
		if useOut {
			_, _ = fmt.Fprintln(out, msg)
		} else {
			log.Info(msg)
		}
	}
}
