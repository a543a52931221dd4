// Package transform runs the SQL modelling stage that turns landing tables into the
// dimensional model.
package transform

import (
	"context"
	"fmt"

	"github.com/relloyd/taxipipe/constants"
	"github.com/relloyd/taxipipe/dag"
	"github.com/relloyd/taxipipe/logger"
	"github.com/relloyd/taxipipe/rdbms/shared"
)

// Runner executes the transform stage for one run.
type Runner interface {
	Name() string
	Run(ctx context.Context, run dag.RunContext) error
}

type Config struct {
	Type       string    // constants.TransformTypeDbt, TransformTypeSql or TransformTypeNone.
	Dbt        DbtConfig // used by the dbt runner.
	Statements []string  // used by the sql runner.
}

// NewRunner returns the Runner selected by cfg.Type.
func NewRunner(log logger.Logger, cfg Config, db shared.Connector) (Runner, error) {
	switch cfg.Type {
	case constants.TransformTypeDbt, "":
		return NewDbtRunner(log, cfg.Dbt)
	case constants.TransformTypeSql:
		if db == nil {
			return nil, fmt.Errorf("transform type %q requires a warehouse connection", cfg.Type)
		}
		return NewSqlRunner(log, db, cfg.Statements)
	case constants.TransformTypeNone:
		return noneRunner{log: log}, nil
	default:
		return nil, fmt.Errorf("unsupported transform type %q", cfg.Type)
	}
}

type noneRunner struct {
	log logger.Logger
}

func (noneRunner) Name() string { return constants.TransformTypeNone }

func (r noneRunner) Run(ctx context.Context, run dag.RunContext) error {
	r.log.Info("transform stage disabled for run ", run.RunID)
	return nil
}
