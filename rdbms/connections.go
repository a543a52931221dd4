package rdbms

import (
	"context"
	"fmt"

	"github.com/relloyd/taxipipe/constants"
	"github.com/relloyd/taxipipe/logger"
	"github.com/relloyd/taxipipe/rdbms/shared"
)

// OpenDbConnection opens a database connection using the supplied ConnectionDetails struct in c.
func OpenDbConnection(ctx context.Context, log logger.Logger, c shared.ConnectionDetails) (db shared.Connector, err error) {
	log.Debug("opening connection type ", c.Type, " with logicalName ", c.LogicalName) // don't log password details in c.Data!
	switch c.Type {
	case constants.ConnectionTypeSnowflake:
		db, err = newSnowflakeConnection(ctx, log, shared.GetDsnConnectionDetails(&c))
	case constants.ConnectionTypeMockSnowflake:
		db = shared.NewMockConnectionWithMockTx(log, constants.ConnectionTypeSnowflake)
	default:
		err = fmt.Errorf("unsupported database type, %q", c.Type)
	}
	return
}

// NewSnowflakeConnectionDetails wraps dsn in generic ConnectionDetails.
func NewSnowflakeConnectionDetails(logicalName string, dsn string) shared.ConnectionDetails {
	return shared.ConnectionDetails{
		Type:        constants.ConnectionTypeSnowflake,
		LogicalName: logicalName,
		Data:        shared.DsnConnectionDetails{Dsn: dsn}.GetMap(nil),
	}
}
