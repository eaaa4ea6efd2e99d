package domain

import (
	"strconv"
	"strings"
)

// Dialect represents the SQL variant a script renders for.
type Dialect string

const (
	DialectMySQL     Dialect = "mysql"
	DialectPostgres  Dialect = "postgres"
	DialectSQLite    Dialect = "sqlite"
	DialectOracle    Dialect = "oracle"
	DialectH2        Dialect = "h2"
	DialectSQLServer Dialect = "sqlserver"
)

// Dialects lists every recognised dialect tag.
var Dialects = []Dialect{
	DialectMySQL, DialectPostgres, DialectSQLite,
	DialectOracle, DialectH2, DialectSQLServer,
}

// ParseDialect normalises a dialect tag. "postgresql" and "mssql" are accepted
// as aliases.
func ParseDialect(s string) (Dialect, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mysql":
		return DialectMySQL, true
	case "postgres", "postgresql", "pg":
		return DialectPostgres, true
	case "sqlite", "sqlite3":
		return DialectSQLite, true
	case "oracle":
		return DialectOracle, true
	case "h2":
		return DialectH2, true
	case "sqlserver", "mssql":
		return DialectSQLServer, true
	}
	return "", false
}

// Placeholder returns the bind marker for the n-th (1-based) argument.
func (d Dialect) Placeholder(n int) string {
	switch d {
	case DialectPostgres:
		return "$" + strconv.Itoa(n)
	case DialectOracle:
		return ":" + strconv.Itoa(n)
	case DialectSQLServer:
		return "@p" + strconv.Itoa(n)
	default:
		return "?"
	}
}

// Endpoint holds the connection URL and credentials of the target database.
type Endpoint struct {
	URL      string `json:"url"`
	User     string `json:"user"`
	Password string `json:"-"`
}

// ExecutorSpec describes one engine worker pool.
type ExecutorSpec struct {
	MaxConcurrency int `json:"maxConcurrency"`
}
