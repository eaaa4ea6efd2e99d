package dbclient

import (
	"context"
	"fmt"
	"time"

	"nyql/internal/domain"
)

// Options tunes the connection pool and per-statement timeout.
type Options struct {
	PoolSize     int
	Pooled       bool
	QueryTimeout time.Duration
}

// Connector abstracts interaction with the target database.
type Connector interface {
	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Run executes one statement. Reads return *domain.Rows, writes return
	// domain.Affected.
	Run(ctx context.Context, st domain.Statement) (domain.Result, error)

	// RunBatch executes statements in order inside one transaction. Any
	// failure rolls the whole batch back.
	RunBatch(ctx context.Context, sts []domain.Statement) (*domain.Batch, error)

	// OpenConnections reports connections currently held by the pool.
	OpenConnections() int

	// Close releases every connection.
	Close() error
}

// NewConnector creates a Connector for the given dialect and endpoint.
func NewConnector(dialect domain.Dialect, ep domain.Endpoint, opts Options) (Connector, error) {
	switch dialect {
	case domain.DialectSQLite:
		return newSQLiteConnector(ep, opts)
	case domain.DialectMySQL:
		dsn, err := buildMySQLDSN(ep)
		if err != nil {
			return nil, fmt.Errorf("mysql dsn: %w", err)
		}
		return newSQLConnector("mysql", dsn, opts)
	case domain.DialectPostgres:
		dsn, err := buildPostgresDSN(ep)
		if err != nil {
			return nil, fmt.Errorf("postgres dsn: %w", err)
		}
		return newSQLConnector("postgres", dsn, opts)
	default:
		return nil, fmt.Errorf("no database driver available for dialect %s", dialect)
	}
}
