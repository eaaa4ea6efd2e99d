package dbclient

import (
	"strings"

	"nyql/internal/domain"

	_ "modernc.org/sqlite"
)

// newSQLiteConnector opens a SQLite file (or :memory:) with a busy timeout so
// pooled connections wait for the writer instead of failing.
func newSQLiteConnector(ep domain.Endpoint, opts Options) (*sqlConnector, error) {
	path := strings.TrimPrefix(ep.URL, "jdbc:")
	path = strings.TrimPrefix(path, "sqlite:")

	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		opts.Pooled, opts.PoolSize = true, 1
		return newSQLConnector("sqlite", path, opts)
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	return newSQLConnector("sqlite", dsn, opts)
}
