package cli

import (
	"fmt"
	"io"
	"strconv"

	"gopkg.in/alecthomas/kingpin.v2"

	"nyql/internal/secret"
)

// Commands.
const (
	CommandRun     = "run"
	CommandParse   = "parse"
	CommandHistory = "history"
)

// EnvPassword supplies --password when the flag is absent.
const EnvPassword = "NYQL_PASSWORD"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Options is everything the command line asked for.
type Options struct {
	Command string
	Script  string

	ConfigPath string
	Dialect    string
	URL        string
	User       string
	Password   string
	Pool       int
	Cache      OptionalBool
	Roots      []string
	Executors  []int

	ParamArgs  []string
	ParamsFile string

	// Secret names the password in the secret store, used when Password
	// is empty.
	Secret  string
	secrets secret.SecretStore

	HistoryPath  string
	HistoryLimit int

	LogLevel  string
	LogFormat string
}

// OptionalBool is a boolean flag that remembers whether it was given.
type OptionalBool struct {
	Given bool
	Value bool
}

func (b *OptionalBool) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	b.Given, b.Value = true, v
	return nil
}

func (b *OptionalBool) String() string { return strconv.FormatBool(b.Value) }

// IsBoolFlag lets kingpin accept --cache and --no-cache without a value.
func (b *OptionalBool) IsBoolFlag() bool { return true }

// Parse processes command-line arguments. It returns the options, a boolean
// indicating if the program should exit cleanly (help was shown), or an
// ExitError with code 2 for usage errors.
func Parse(args []string, output io.Writer) (*Options, bool, error) {
	exited, helped := false, false
	app := kingpin.New("nyql", "Render and run parameterised SQL scripts against a configured database.")
	app.UsageWriter(output)
	app.ErrorWriter(output)
	app.Terminate(func(int) { exited = true })
	app.HelpFlag.Short('h')
	app.HelpFlag.PreAction(func(*kingpin.ParseContext) error {
		helped = true
		return nil
	})

	o := &Options{}
	app.Flag("config", "Configuration document (.json, .toml, .yaml).").Short('c').StringVar(&o.ConfigPath)
	app.Flag("dialect", "SQL dialect: mysql, postgres, sqlite, oracle, h2, sqlserver.").Short('d').StringVar(&o.Dialect)
	app.Flag("url", "Connection URL, e.g. jdbc:mysql://localhost/sakila.").StringVar(&o.URL)
	app.Flag("user", "Database user.").Short('u').StringVar(&o.User)
	app.Flag("password", "Database password.").Envar(EnvPassword).StringVar(&o.Password)
	app.Flag("pool", "Connection pool size. Absent means no pooling.").IntVar(&o.Pool)
	app.Flag("cache", "Cache compiled scripts and watch the roots for changes.").SetValue(&o.Cache)
	app.Flag("root", "Script root directory. Repeat for several, searched in order.").Short('r').StringsVar(&o.Roots)
	app.Flag("executor", "Add an executor with this maximum concurrency. Repeatable.").IntsVar(&o.Executors)
	app.Flag("param", "Script parameter key=value. Values are JSON when valid, else strings; dotted keys nest.").Short('p').StringsVar(&o.ParamArgs)
	app.Flag("params", "JSON file with a parameter object.").ExistingFileVar(&o.ParamsFile)
	app.Flag("secret", "Read the password from NYQL_SECRET_<NAME> or the keychain when --password is absent.").PlaceHolder("NAME").StringVar(&o.Secret)
	app.Flag("history", "SQLite file recording every run.").StringVar(&o.HistoryPath)
	app.Flag("log-level", "Log level: debug, info, warn, error.").Default("info").EnumVar(&o.LogLevel, logLevels...)
	app.Flag("log-format", "Log format: text or json.").Default(LogText).EnumVar(&o.LogFormat, LogText, LogJSON)

	runCmd := app.Command(CommandRun, "Execute a script against the database.")
	runCmd.Arg("script", "Script name relative to a root, without extension.").Required().StringVar(&o.Script)

	parseCmd := app.Command(CommandParse, "Render a script without touching the database.")
	parseCmd.Arg("script", "Script name relative to a root, without extension.").Required().StringVar(&o.Script)

	historyCmd := app.Command(CommandHistory, "List recent runs from --history.")
	historyCmd.Flag("limit", "Maximum number of runs to list.").Default("20").IntVar(&o.HistoryLimit)

	cmd, err := app.Parse(args)
	if exited {
		// kingpin also prints usage and terminates when no command is given.
		if helped || cmd == "help" {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: "nyql: error: command not specified, try --help"}
	}
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("nyql: error: %v, try --help", err)}
	}
	o.Command = cmd

	if o.Command == CommandHistory && o.HistoryPath == "" {
		return nil, false, &ExitError{Code: 2, Message: "nyql: error: history requires --history FILE"}
	}
	return o, false, nil
}
