package shared

import (
	"context"
)

// Connector abstracts all access to Go SQL functionality.
type Connector interface {
	Execer
	Querier
	Begin() (Transacter, error)
	BeginTx(ctx context.Context) (Transacter, error)
	Close()
	// Taxipipe functionality:
	GetType() string
}

type Transacter interface {
	Execer
	Querier
	Commit() error
	Rollback() error
}

// Execer is satisfied by both connections and transactions so statement builders can run against either.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error)
}

type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error)
}

type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// Rows is the subset of *sql.Rows used by this module.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
	Close() error
}

type SqlResultHandler interface {
	HandleHeader(i []interface{}) error
	HandleRow(i []interface{}) error
}
