package transform

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/taxipipe/constants"
	"github.com/relloyd/taxipipe/dag"
	"github.com/relloyd/taxipipe/logger"
	"github.com/relloyd/taxipipe/pipeerr"
	"github.com/relloyd/taxipipe/rdbms/shared"
)

// SqlRunner executes an ordered list of statements in one transaction.
// The literals ${run_id}, ${logical_date} and ${period} are replaced before execution.
type SqlRunner struct {
	log        logger.Logger
	db         shared.Connector
	statements []string
}

func NewSqlRunner(log logger.Logger, db shared.Connector, statements []string) (*SqlRunner, error) {
	if len(statements) == 0 {
		return nil, errors.New("sql transform requires at least one statement")
	}
	return &SqlRunner{log: log, db: db, statements: statements}, nil
}

func (r *SqlRunner) Name() string { return constants.TransformTypeSql }

func (r *SqlRunner) Run(ctx context.Context, run dag.RunContext) (err error) {
	fail := func(e error) error {
		return &pipeerr.TransformError{Runner: r.Name(), Err: e}
	}
	replacer := strings.NewReplacer(
		"${run_id}", run.RunID,
		"${logical_date}", run.LogicalDate.Format(constants.TimeFormatLogicalDate),
		"${period}", run.Period.String(),
	)
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fail(err)
	}
	rollbackRequired := true
	defer func() {
		if rollbackRequired {
			_ = tx.Rollback()
		}
	}()
	for idx, stmt := range r.statements {
		stmt = replacer.Replace(stmt)
		r.log.Debug("executing transform statement ", idx+1, ": ", stmt)
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fail(errors.Wrapf(err, "statement %v", idx+1))
		}
	}
	if err = tx.Commit(); err != nil {
		return fail(err)
	}
	rollbackRequired = false
	r.log.Info("executed ", len(r.statements), " transform statement(s)")
	return nil
}
