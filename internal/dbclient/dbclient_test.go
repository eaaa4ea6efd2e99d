package dbclient

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nyql/internal/domain"
)

func TestBuildMySQLDSN_FromJDBCURL(t *testing.T) {
	dsn, err := buildMySQLDSN(domain.Endpoint{URL: "jdbc:mysql://localhost/sakila", User: "root", Password: "root"})
	require.NoError(t, err)

	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "root", cfg.User)
	assert.Equal(t, "root", cfg.Passwd)
	assert.Equal(t, "tcp", cfg.Net)
	assert.Equal(t, "localhost:3306", cfg.Addr)
	assert.Equal(t, "sakila", cfg.DBName)
	assert.True(t, cfg.ParseTime)
}

func TestBuildMySQLDSN_NativeDSNKeepsCredentials(t *testing.T) {
	dsn, err := buildMySQLDSN(domain.Endpoint{URL: "app:pw@tcp(db:3307)/shop", User: "ignored"})
	require.NoError(t, err)

	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "app", cfg.User)
	assert.Equal(t, "pw", cfg.Passwd)
	assert.Equal(t, "db:3307", cfg.Addr)
}

func TestBuildPostgresDSN(t *testing.T) {
	dsn, err := buildPostgresDSN(domain.Endpoint{URL: "jdbc:postgresql://pg:6543/films", User: "u", Password: "p w"})
	require.NoError(t, err)
	assert.Equal(t, "host=pg port=6543 user=u password='p w' dbname=films sslmode=disable", dsn)

	dsn, err = buildPostgresDSN(domain.Endpoint{URL: "postgres://pg/films?sslmode=require&connect_timeout=3", User: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "host=pg port=5432 user=u password=p dbname=films sslmode=require connect_timeout=3", dsn)

	dsn, err = buildPostgresDSN(domain.Endpoint{URL: "host=pg dbname=films", User: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "host=pg dbname=films user=u password=p", dsn)
}

func TestNewConnector_UnsupportedDialect(t *testing.T) {
	_, err := NewConnector(domain.DialectOracle, domain.Endpoint{URL: "x"}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database driver")
}

func TestIsReadQuery(t *testing.T) {
	assert.True(t, isReadQuery("  select 1"))
	assert.True(t, isReadQuery("-- top customers\nWITH x AS (SELECT 1) SELECT * FROM x"))
	assert.True(t, isReadQuery("/* hint */ SELECT 1"))
	assert.False(t, isReadQuery("INSERT INTO t VALUES (1)"))
	assert.False(t, isReadQuery("-- only a comment"))
}

func openSQLite(t *testing.T) Connector {
	t.Helper()
	conn, err := NewConnector(domain.DialectSQLite,
		domain.Endpoint{URL: "jdbc:sqlite:" + filepath.Join(t.TempDir(), "test.db")},
		Options{Pooled: true, PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSQLConnector_RunReadAndWrite(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)
	require.NoError(t, conn.Ping(ctx))

	_, err := conn.Run(ctx, domain.Statement{SQL: "CREATE TABLE film (film_id INTEGER PRIMARY KEY, title TEXT, rate REAL)"})
	require.NoError(t, err)

	res, err := conn.Run(ctx, domain.Statement{
		SQL:  "INSERT INTO film (film_id, title, rate) VALUES (?, ?, ?), (?, ?, ?)",
		Args: []any{int64(1), "ACADEMY DINOSAUR", 0.99, int64(2), nil, 4.99},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.Affected(2), res)

	res, err = conn.Run(ctx, domain.Statement{SQL: "SELECT film_id, title FROM film ORDER BY film_id"})
	require.NoError(t, err)
	rows, ok := res.(*domain.Rows)
	require.True(t, ok)
	assert.Equal(t, []string{"film_id", "title"}, rows.Columns)
	require.Len(t, rows.Data, 2)
	assert.Equal(t, int64(1), rows.Data[0]["film_id"])
	assert.Equal(t, "ACADEMY DINOSAUR", rows.Data[0]["title"])
	assert.Nil(t, rows.Data[1]["title"])
}

func TestSQLConnector_RunBatchRollsBack(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)

	_, err := conn.Run(ctx, domain.Statement{SQL: "CREATE TABLE t (id INTEGER PRIMARY KEY)"})
	require.NoError(t, err)

	_, err = conn.RunBatch(ctx, []domain.Statement{
		{SQL: "INSERT INTO t (id) VALUES (?)", Args: []any{int64(1)}},
		{SQL: "INSERT INTO t (id) VALUES (?)", Args: []any{int64(1)}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statement 2")

	res, err := conn.Run(ctx, domain.Statement{SQL: "SELECT COUNT(*) AS n FROM t"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.(*domain.Rows).Data[0]["n"])

	batch, err := conn.RunBatch(ctx, []domain.Statement{
		{SQL: "INSERT INTO t (id) VALUES (?)", Args: []any{int64(1)}},
		{SQL: "SELECT id FROM t"},
	})
	require.NoError(t, err)
	require.Len(t, batch.Results, 2)
	assert.Equal(t, domain.Affected(1), batch.Results[0])
	assert.Equal(t, domain.ResultRows, batch.Results[1].Kind())
}

func TestSQLConnector_CloseReleasesConnections(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)
	require.NoError(t, conn.Ping(ctx))
	assert.GreaterOrEqual(t, conn.OpenConnections(), 1)

	require.NoError(t, conn.Close())
	assert.Equal(t, 0, conn.OpenConnections())
}
