package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nyql/internal/domain"
	"nyql/internal/secret"
	"nyql/internal/testfixture"
)

func TestParse_Flags(t *testing.T) {
	var out bytes.Buffer
	opts, exit, err := Parse([]string{
		"--dialect", "mysql",
		"--url", "jdbc:mysql://localhost/sakila",
		"-u", "root", "--password", "root",
		"--pool", "10", "--cache",
		"-r", "./tests/scripts/inserts", "-r", "./tests/scripts/joins",
		"--executor", "1",
		"-p", "filmId=250", "-p", "teamIDs=[1410,1411]",
		"parse", "select",
	}, &out)
	require.NoError(t, err)
	require.False(t, exit)

	assert.Equal(t, CommandParse, opts.Command)
	assert.Equal(t, "select", opts.Script)
	assert.Equal(t, "mysql", opts.Dialect)
	assert.Equal(t, "root", opts.User)
	assert.Equal(t, 10, opts.Pool)
	assert.Equal(t, OptionalBool{Given: true, Value: true}, opts.Cache)
	assert.Equal(t, []string{"./tests/scripts/inserts", "./tests/scripts/joins"}, opts.Roots)
	assert.Equal(t, []int{1}, opts.Executors)
	assert.Equal(t, []string{"filmId=250", "teamIDs=[1410,1411]"}, opts.ParamArgs)
	assert.Equal(t, "info", opts.LogLevel)
	assert.Equal(t, "text", opts.LogFormat)
}

func TestParse_NoCacheAndPasswordFromEnv(t *testing.T) {
	t.Setenv(EnvPassword, "from-env")
	opts, _, err := Parse([]string{"--no-cache", "run", "top_customers"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, CommandRun, opts.Command)
	assert.Equal(t, OptionalBool{Given: true, Value: false}, opts.Cache)
	assert.Equal(t, "from-env", opts.Password)
}

func TestParse_UsageErrors(t *testing.T) {
	for _, args := range [][]string{
		{},
		{"run"},
		{"explain", "x"},
		{"--log-level", "loud", "run", "x"},
		{"--pool", "many", "run", "x"},
		{"history"},
	} {
		_, _, err := Parse(args, &bytes.Buffer{})
		var exitErr *ExitError
		require.True(t, errors.As(err, &exitErr), "%v", args)
		assert.Equal(t, 2, exitErr.Code, "%v", args)
	}
}

func TestParse_Help(t *testing.T) {
	var out bytes.Buffer
	opts, exit, err := Parse([]string{"--help"}, &out)
	assert.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, opts)
	assert.Contains(t, out.String(), "parse")
}

func TestParse_ShortHelpExitsCleanly(t *testing.T) {
	_, exit, err := Parse([]string{"-h"}, &bytes.Buffer{})
	assert.NoError(t, err)
	assert.True(t, exit)
}

func TestMain_NoCommandIsUsageError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Main(context.Background(), nil, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stdout.String(), "usage:")
	assert.Equal(t, "nyql: error: command not specified, try --help\n", stderr.String())
}

func TestOptions_Logger(t *testing.T) {
	var buf bytes.Buffer
	logger := (&Options{LogLevel: "warn", LogFormat: LogJSON}).Logger(&buf)
	logger.Info("Engine ready.")
	logger.Warn("Database not reachable, retrying.", "attempt", 1)

	out := buf.String()
	assert.NotContains(t, out, "Engine ready.")
	assert.Contains(t, out, `"msg":"Database not reachable, retrying."`)
	assert.Contains(t, out, `"attempt":1`)

	buf.Reset()
	logger = (&Options{LogLevel: "debug", LogFormat: LogText}).Logger(&buf)
	logger.Debug("Arguments parsed.", "command", CommandRun)
	assert.Contains(t, buf.String(), `msg="Arguments parsed." command=run`)
}

func TestOptions_Params(t *testing.T) {
	file := filepath.Join(t.TempDir(), "params.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"filmId": 1, "amap": {"abc": "x"}}`), 0o644))

	o := &Options{
		ParamsFile: file,
		ParamArgs: []string{
			"filmId=250",
			"teamIDs=[1410, 1234]",
			"name=MARY",
			"quoted=\"42\"",
			"amap.cids.cid=100",
			"rate=0.99",
			"flag=true",
			"none=null",
		},
	}
	params, err := o.Params()
	require.NoError(t, err)

	want := domain.NewParams().
		Put("filmId", domain.Int(250)).
		Put("teamIDs", domain.Ints(1410, 1234)).
		Put("name", domain.String("MARY")).
		Put("quoted", domain.String("42")).
		Put("amap", domain.Map(domain.Params{
			"abc":  domain.String("x"),
			"cids": domain.Map(domain.Params{"cid": domain.Int(100)}),
		})).
		Put("rate", domain.Float(0.99)).
		Put("flag", domain.Bool(true)).
		Put("none", domain.Null())
	assert.True(t, domain.Map(want).Equal(domain.Map(params)), "got %s", params)

	_, err = (&Options{ParamArgs: []string{"novalue"}}).Params()
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 2, exitErr.Code)
}

func TestOptions_ConfigFlagsOverrideDocument(t *testing.T) {
	fx := testfixture.NewSakila(t)
	doc := filepath.Join(fx.Dir, "nyql.toml")
	require.NoError(t, os.WriteFile(doc, []byte(`
dialect = "mysql"
cache = true
scriptRoots = ["scripts/inserts"]

[jdbc]
url = "jdbc:mysql://localhost/sakila"
user = "root"
password = "secret"
`), 0o644))

	cfg, err := (&Options{
		ConfigPath: doc,
		Dialect:    "sqlite",
		URL:        fx.URL(),
		Pool:       3,
		Cache:      OptionalBool{Given: true, Value: false},
		Roots:      []string{fx.Joins},
		Executors:  []int{2},
	}).Config(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.DialectSQLite, cfg.Dialect())
	assert.Equal(t, domain.Endpoint{URL: fx.URL(), User: "root", Password: "secret"}, cfg.Endpoint())
	n, pooled := cfg.PoolSize()
	assert.True(t, pooled)
	assert.Equal(t, 3, n)
	assert.False(t, cfg.CachingEnabled())
	assert.Equal(t, []string{fx.Inserts, fx.Joins}, cfg.ScriptRoots())
	assert.Equal(t, []domain.ExecutorSpec{{MaxConcurrency: 2}}, cfg.Executors())
}

func TestErrorLine(t *testing.T) {
	err := domain.Errorf(domain.KindScriptNotFound, "execute", "script %q not found", "does/not/exist")
	assert.Equal(t, `error: ScriptNotFound: script "does/not/exist" not found`, ErrorLine(err))

	joined := domain.NewError(domain.KindInvalidConfiguration, "build",
		errors.Join(errors.New("dialect is required"), errors.New("missing endpoint")))
	line := ErrorLine(joined)
	assert.NotContains(t, line, "\n")
	assert.Equal(t, "error: InvalidConfiguration: dialect is required; missing endpoint", line)

	assert.Equal(t, "error: boom", ErrorLine(errors.New("boom")))
}

func sakilaArgs(fx *testfixture.Sakila, extra ...string) []string {
	args := []string{"--dialect", "sqlite", "--url", fx.URL(), "--pool", "2",
		"--root", fx.Inserts, "--root", fx.Joins, "--log-level", "error"}
	return append(args, extra...)
}

func TestMain_EndToEnd(t *testing.T) {
	fx := testfixture.NewSakila(t)
	ctx := context.Background()
	history := filepath.Join(fx.Dir, "history.db")

	var stdout, stderr bytes.Buffer
	code := Main(ctx, sakilaArgs(fx, "--history", history, "run", "setup"), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	stdout.Reset()
	code = Main(ctx, sakilaArgs(fx, "--history", history,
		"-p", "minRentals=1", "-p", "customerId=2", "-p", "filmId=250",
		"run", "top_customers"), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "customer_id\tfirst_name\tlast_name\trentals")
	assert.Contains(t, stdout.String(), "MARY")
	assert.Contains(t, stdout.String(), "(3 row(s))")

	stdout.Reset()
	code = Main(ctx, sakilaArgs(fx,
		"-p", "teamIDs=[1410,1411]", "-p", "moduleIDs=[97389,97390,97391]", "-p", "filmId=250",
		"parse", "select"), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "IN (?, ?, ?)")
	assert.Contains(t, stdout.String(), "97391")

	stderr.Reset()
	code = Main(ctx, sakilaArgs(fx, "--history", history, "run", "does/not/exist"), &stdout, &stderr)
	assert.Equal(t, 1, code)
	lines := strings.Split(strings.TrimSpace(stderr.String()), "\n")
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], "error: ScriptNotFound: "), stderr.String())

	stdout.Reset()
	code = Main(ctx, []string{"--history", history, "history", "--limit", "2"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	out := stdout.String()
	assert.Contains(t, out, "does/not/exist")
	assert.Contains(t, out, "ScriptNotFound")
	assert.Contains(t, out, "top_customers")
	assert.NotContains(t, out, "setup", "limit keeps the two most recent runs")
}

func TestMain_ConfigurationErrorExitsOne(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Main(context.Background(), []string{"--dialect", "db2", "run", "x"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.True(t, strings.HasPrefix(stderr.String(), "error: InvalidConfiguration: "), stderr.String())
}

func TestMain_UnreachableDatabase(t *testing.T) {
	fx := testfixture.NewSakila(t)
	var stdout, stderr bytes.Buffer
	code := Main(context.Background(), []string{
		"--dialect", "sqlite", "--url", "jdbc:sqlite:" + filepath.Join(fx.Dir, "no", "such", "dir.db"),
		"--root", fx.Inserts, "--log-level", "error", "run", "setup",
	}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "error: EngineInitialisation: ")
}

func TestOptions_PasswordFromSecret(t *testing.T) {
	fx := testfixture.NewSakila(t)
	t.Setenv("NYQL_SECRET_SAKILA", "from-secret")
	base := Options{Dialect: "sqlite", URL: fx.URL(), Roots: fx.Roots(), Secret: "sakila", secrets: secret.EnvStore{}}

	cfg, err := base.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-secret", cfg.Endpoint().Password)

	explicit := base
	explicit.Password = "given"
	cfg, err = explicit.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "given", cfg.Endpoint().Password)

	missing := base
	missing.Secret = "nope"
	_, err = missing.Config(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}
