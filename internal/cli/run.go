package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"nyql/internal/config"
	"nyql/internal/ctxlog"
	"nyql/internal/domain"
	"nyql/internal/harness"
	"nyql/internal/secret"
	"nyql/internal/storage"
)

// Main runs the command line and returns the process exit code.
func Main(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return Report(Run(ctx, args, stdout, stderr), stderr)
}

// Run parses args and performs the requested command, writing results to
// stdout and logs to stderr.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, shouldExit, err := Parse(args, stdout)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	logger := opts.Logger(stderr)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Arguments parsed.", "command", opts.Command, "script", opts.Script)

	if opts.Command == CommandHistory {
		return showHistory(opts, stdout)
	}

	cfg, err := opts.Config(ctx)
	if err != nil {
		return err
	}
	params, err := opts.Params()
	if err != nil {
		return err
	}
	mode, err := harness.ParseMode(opts.Command)
	if err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}

	var hopts []harness.Option
	if opts.HistoryPath != "" {
		db, err := storage.Open(opts.HistoryPath)
		if err != nil {
			return fmt.Errorf("open run history: %w", err)
		}
		defer db.Close()
		hopts = append(hopts, harness.WithRecorder(storage.NewRunStore(db)))
	}

	res, err := harness.New(hopts...).Run(ctx, cfg, harness.Invocation{
		Script: opts.Script,
		Params: params,
		Mode:   mode,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, res.String())
	if res.Kind() == domain.ResultRows {
		fmt.Fprintf(stdout, "(%s)\n", harness.Summary(res))
	}
	return nil
}

// Config builds the engine configuration: the document first, then flags.
func (o *Options) Config(ctx context.Context) (*config.Config, error) {
	b := config.NewBuilder()
	if o.ConfigPath != "" {
		doc, err := config.LoadDocument(o.ConfigPath)
		if err != nil {
			return nil, err
		}
		b.SetupFrom(doc)
	}
	if o.Dialect != "" {
		b.Dialect(o.Dialect)
	}
	if o.URL != "" {
		b.URL(o.URL)
	}
	if o.User != "" {
		b.User(o.User)
	}
	if o.Password != "" {
		b.Password(o.Password)
	} else if o.Secret != "" {
		pw, err := o.secretStore().Get(ctx, o.Secret)
		if err != nil {
			return nil, domain.NewError(domain.KindInvalidConfiguration, "build", err)
		}
		if len(pw) == 0 {
			return nil, domain.Errorf(domain.KindInvalidConfiguration, "build", "secret %q not found", o.Secret)
		}
		b.Password(string(pw))
	}
	if o.Pool != 0 {
		b.Pool(o.Pool)
	}
	if o.Cache.Given {
		b.Caching(o.Cache.Value)
	}
	b.ScriptRoots(o.Roots...)
	for _, n := range o.Executors {
		b.AddExecutor(domain.ExecutorSpec{MaxConcurrency: n})
	}
	return b.Build()
}

func (o *Options) secretStore() secret.SecretStore {
	if o.secrets != nil {
		return o.secrets
	}
	return secret.Default()
}

// Params builds the parameter tree: the --params file first, then each
// --param in order.
func (o *Options) Params() (domain.Params, error) {
	params := domain.NewParams()
	if o.ParamsFile != "" {
		data, err := os.ReadFile(o.ParamsFile)
		if err != nil {
			return nil, domain.NewError(domain.KindParameterError, "params", err)
		}
		var raw map[string]any
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, domain.NewError(domain.KindParameterError, "params", fmt.Errorf("%s: %w", o.ParamsFile, err))
		}
		if params, err = domain.ParamsFromMap(raw); err != nil {
			return nil, err
		}
	}

	for _, kv := range o.ParamArgs {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, &ExitError{Code: 2, Message: fmt.Sprintf("nyql: error: invalid --param %q: expected key=value", kv)}
		}
		v, err := paramValue(raw)
		if err != nil {
			return nil, err
		}
		putPath(params, strings.Split(key, "."), v)
	}
	return params, nil
}

// paramValue reads raw as JSON when it is valid JSON, else as a string.
func paramValue(raw string) (domain.Value, error) {
	if !json.Valid([]byte(raw)) {
		return domain.String(raw), nil
	}
	var x any
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&x); err != nil {
		return domain.String(raw), nil
	}
	return domain.FromAny(x)
}

func putPath(p domain.Params, path []string, v domain.Value) {
	if len(path) == 1 {
		p.Put(path[0], v)
		return
	}
	child := domain.NewParams()
	if cur, ok := p[path[0]]; ok && cur.Kind() == domain.KindMap {
		child = cur.Fields()
	}
	putPath(child, path[1:], v)
	p.Put(path[0], domain.Map(child))
}

func showHistory(o *Options, w io.Writer) error {
	db, err := storage.Open(o.HistoryPath)
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	defer db.Close()

	runs, err := storage.NewRunStore(db).ListRuns(o.HistoryLimit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tMODE\tSCRIPT\tOUTCOME\tDURATION")
	for _, r := range runs {
		outcome := r.Summary
		if r.ErrorKind != "" {
			outcome = r.ErrorKind
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%dms\n", humanize.Time(r.StartedAt), r.Mode, r.Script, outcome, r.DurationMs)
	}
	return tw.Flush()
}

// Report writes err as a single line and returns the exit code: 0 without an
// error, the ExitError code for usage problems, 1 otherwise.
func Report(err error, w io.Writer) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Message != "" {
			fmt.Fprintln(w, exitErr.Message)
		}
		return exitErr.Code
	}
	fmt.Fprintln(w, ErrorLine(err))
	return 1
}

// ErrorLine formats err as "error: <kind>: <diagnostic>" on one line.
func ErrorLine(err error) string {
	var line string
	if kind := domain.KindOf(err); kind != domain.KindUnknown {
		line = fmt.Sprintf("error: %s: %s", kind, domain.Diagnostic(err))
	} else {
		line = "error: " + err.Error()
	}
	if serr := harness.ShutdownError(err); serr != nil {
		line += " (shutdown also failed: " + serr.Error() + ")"
	}
	return strings.Join(strings.Fields(strings.ReplaceAll(line, "\n", "; ")), " ")
}
