// Package harness drives exactly one engine invocation: open the engine, run
// parse or execute once, surface the result, and always attempt shutdown of
// an engine that was opened.
package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"nyql/internal/config"
	"nyql/internal/ctxlog"
	"nyql/internal/domain"
	"nyql/internal/engine"
)

// Mode selects the operation a run performs.
type Mode int

const (
	ModeExecute Mode = iota
	ModeParse
)

func (m Mode) String() string {
	if m == ModeParse {
		return "parse"
	}
	return "execute"
}

// ParseMode accepts "parse", "execute" and its alias "run".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "parse":
		return ModeParse, nil
	case "execute", "run":
		return ModeExecute, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// Invocation names the script, its parameters and the operation.
type Invocation struct {
	Script string
	Params domain.Params
	Mode   Mode
}

// Handle is the engine surface the harness needs.
type Handle interface {
	Parse(ctx context.Context, name string, params domain.Params, opts ...engine.CallOption) (*domain.QueryArtifact, error)
	Execute(ctx context.Context, name string, params domain.Params, opts ...engine.CallOption) (domain.Result, error)
	Shutdown(ctx context.Context) error
}

// Opener creates a ready engine handle from a configuration.
type Opener func(ctx context.Context, cfg *config.Config) (Handle, error)

// OpenEngine is the default Opener.
func OpenEngine(ctx context.Context, cfg *config.Config) (Handle, error) {
	e, err := engine.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Recorder receives one history entry per run.
type Recorder interface {
	RecordRun(r *domain.RunRecord) error
}

// Harness runs invocations. The zero value is not usable; call New.
type Harness struct {
	open     Opener
	recorder Recorder
}

// Option configures a Harness.
type Option func(*Harness)

// WithOpener replaces how engines are created.
func WithOpener(o Opener) Option {
	return func(h *Harness) { h.open = o }
}

// WithRecorder stores a history entry for every run.
func WithRecorder(r Recorder) Option {
	return func(h *Harness) { h.recorder = r }
}

func New(opts ...Option) *Harness {
	h := &Harness{open: OpenEngine}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Run opens an engine for cfg, performs inv once and shuts the engine down.
// If the engine cannot be opened nothing is shut down. Shutdown runs even when
// ctx is cancelled or the operation panics. When both the operation and the
// shutdown fail, the operation's error is returned with the shutdown error
// attached (see ShutdownError).
func (h *Harness) Run(ctx context.Context, cfg *config.Config, inv Invocation) (res domain.Result, err error) {
	logger := ctxlog.FromContext(ctx).With("script", inv.Script, "mode", inv.Mode.String())
	ctx = ctxlog.WithLogger(ctx, logger)

	start := time.Now()
	defer func() { h.record(ctx, cfg, inv, start, res, err) }()

	handle, err := h.open(ctx, cfg)
	if err != nil {
		logger.Error("Engine could not be created.", "error", err)
		return nil, err
	}

	defer func() {
		serr := handle.Shutdown(context.WithoutCancel(ctx))
		if serr == nil {
			return
		}
		logger.Error("Engine shutdown failed.", "error", serr)
		if err == nil {
			err = serr
			return
		}
		err = &shutdownFailure{primary: err, shutdown: serr}
	}()

	switch inv.Mode {
	case ModeParse:
		var art *domain.QueryArtifact
		art, err = handle.Parse(ctx, inv.Script, inv.Params)
		if err == nil {
			res = art
		}
	default:
		res, err = handle.Execute(ctx, inv.Script, inv.Params)
	}
	if err != nil {
		logger.Error("Invocation failed.", "kind", domain.KindOf(err).String(), "error", err)
		return nil, err
	}

	logger.Info("Invocation succeeded.", "result", res.Kind(), "summary", Summary(res), "duration", time.Since(start))
	return res, nil
}

func (h *Harness) record(ctx context.Context, cfg *config.Config, inv Invocation, start time.Time, res domain.Result, err error) {
	if h.recorder == nil {
		return
	}
	rec := &domain.RunRecord{
		Script:     inv.Script,
		Mode:       inv.Mode.String(),
		StartedAt:  start,
		DurationMs: int(time.Since(start).Milliseconds()),
	}
	if cfg != nil {
		rec.Dialect = cfg.Dialect()
	}
	if res != nil {
		rec.ResultKind = string(res.Kind())
		rec.Summary = Summary(res)
	}
	if err != nil {
		rec.ErrorKind = domain.KindOf(err).String()
		rec.Error = err.Error()
	}
	if rerr := h.recorder.RecordRun(rec); rerr != nil {
		ctxlog.FromContext(ctx).Warn("Run could not be recorded.", "error", rerr)
	}
}

// Summary describes a result in one short line.
func Summary(res domain.Result) string {
	switch r := res.(type) {
	case *domain.Rows:
		return humanize.Comma(int64(len(r.Data))) + " row(s)"
	case domain.Affected:
		return humanize.Comma(int64(r)) + " row(s) affected"
	case *domain.QueryArtifact:
		return fmt.Sprintf("%d statement(s)", len(r.Statements))
	case *domain.Batch:
		return fmt.Sprintf("%d result(s)", len(r.Results))
	case nil:
		return ""
	}
	return string(res.Kind())
}

// shutdownFailure is a primary error with a shutdown error attached.
type shutdownFailure struct {
	primary  error
	shutdown error
}

func (e *shutdownFailure) Error() string {
	return fmt.Sprintf("%v (shutdown also failed: %v)", e.primary, e.shutdown)
}

func (e *shutdownFailure) Unwrap() error { return e.primary }

// ShutdownError returns the shutdown error attached to a failed operation's
// error, or nil.
func ShutdownError(err error) error {
	var sf *shutdownFailure
	if errors.As(err, &sf) {
		return sf.shutdown
	}
	return nil
}
