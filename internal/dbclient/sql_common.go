package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"nyql/internal/domain"
)

// sqlConnector is the shared implementation for MySQL, Postgres, and SQLite.
type sqlConnector struct {
	driverName string
	db         *sql.DB
	timeout    time.Duration
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// newSQLConnector creates a generic SQL connector. Without pooling no idle
// connection is retained between statements.
func newSQLConnector(driverName, dsn string, opts Options) (*sqlConnector, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	if opts.Pooled {
		db.SetMaxOpenConns(opts.PoolSize)
		db.SetMaxIdleConns(opts.PoolSize)
	} else {
		db.SetMaxIdleConns(0)
	}
	db.SetConnMaxLifetime(10 * time.Minute)

	return &sqlConnector{driverName: driverName, db: db, timeout: opts.QueryTimeout}, nil
}

func (c *sqlConnector) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.db.PingContext(ctx)
}

// isReadQuery detects if a query is a read (SELECT, WITH, SHOW, DESCRIBE, EXPLAIN, PRAGMA, VALUES).
func isReadQuery(query string) bool {
	q := strings.ToUpper(stripLeadingComments(query))
	for _, prefix := range []string{"SELECT", "WITH", "SHOW", "DESCRIBE", "EXPLAIN", "PRAGMA", "VALUES"} {
		if strings.HasPrefix(q, prefix) {
			return true
		}
	}
	return false
}

// stripLeadingComments drops whitespace and leading "--" / "/* */" comments.
func stripLeadingComments(query string) string {
	q := strings.TrimSpace(query)
	for {
		switch {
		case strings.HasPrefix(q, "--"):
			nl := strings.IndexByte(q, '\n')
			if nl < 0 {
				return ""
			}
			q = strings.TrimSpace(q[nl+1:])
		case strings.HasPrefix(q, "/*"):
			end := strings.Index(q, "*/")
			if end < 0 {
				return ""
			}
			q = strings.TrimSpace(q[end+2:])
		default:
			return q
		}
	}
}

func (c *sqlConnector) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *sqlConnector) Run(ctx context.Context, st domain.Statement) (domain.Result, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	return runStatement(ctx, c.db, st)
}

func (c *sqlConnector) RunBatch(ctx context.Context, sts []domain.Statement) (*domain.Batch, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	batch := &domain.Batch{Results: make([]domain.Result, 0, len(sts))}
	for i, st := range sts {
		res, err := runStatement(ctx, tx, st)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i+1, err)
		}
		batch.Results = append(batch.Results, res)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return batch, nil
}

func runStatement(ctx context.Context, q queryer, st domain.Statement) (domain.Result, error) {
	if !isReadQuery(st.SQL) {
		result, err := q.ExecContext(ctx, st.SQL, st.Args...)
		if err != nil {
			return nil, fmt.Errorf("exec: %w", err)
		}
		affected, _ := result.RowsAffected()
		return domain.Affected(affected), nil
	}

	rows, err := q.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// scanRows reads every row of the cursor into column-keyed maps.
func scanRows(rows *sql.Rows) (*domain.Rows, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	out := &domain.Rows{Columns: cols, Data: []domain.Row{}}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for j := range values {
			ptrs[j] = &values[j]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(domain.Row, len(cols))
		for j, v := range values {
			row[cols[j]] = formatValue(v)
		}
		out.Data = append(out.Data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	return out, nil
}

// formatValue converts a database value to a printable one.
func formatValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return val
	}
}

func (c *sqlConnector) OpenConnections() int {
	return c.db.Stats().OpenConnections
}

func (c *sqlConnector) Close() error {
	return c.db.Close()
}
