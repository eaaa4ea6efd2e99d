// Package engine owns everything a running query engine holds: the database
// connection pool, the script repository with its cache and watcher, and the
// executors that bound concurrent invocations.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"

	"nyql/internal/config"
	"nyql/internal/ctxlog"
	"nyql/internal/dbclient"
	"nyql/internal/domain"
	"nyql/internal/script"
)

// State is the lifecycle stage of an Engine.
type State int32

const (
	StateUninitialised State = iota
	StateReady
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateTerminated:
		return "terminated"
	}
	return "uninitialised"
}

// Stats exposes resource counters, mainly for leak checks.
type Stats struct {
	State           State
	OpenConnections int
	InFlight        int
	CachedScripts   int
	Watching        bool
	Executors       int
}

// CallOption tunes a single Parse or Execute call.
type CallOption func(*callOptions)

type callOptions struct {
	executor int
}

// OnExecutor runs the call on the i-th configured executor (0-based).
func OnExecutor(i int) CallOption {
	return func(o *callOptions) { o.executor = i }
}

// Engine renders and runs named scripts. It is safe for concurrent use.
type Engine struct {
	dialect   domain.Dialect
	conn      dbclient.Connector
	repo      *script.Repository
	executors []*executor
	inflight  inflightGuard

	mu    sync.Mutex
	state State
}

// New creates a ready engine. On failure every partially acquired resource is
// released and no engine is returned.
func New(ctx context.Context, cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		return nil, domain.Errorf(domain.KindEngineInitialisation, "create", "no configuration")
	}
	logger := ctxlog.FromContext(ctx)

	for _, root := range cfg.ScriptRoots() {
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			return nil, domain.Errorf(domain.KindEngineInitialisation, "create", "script root %q is no longer available", root)
		}
	}

	poolSize, pooled := cfg.PoolSize()
	conn, err := dbclient.NewConnector(cfg.Dialect(), cfg.Endpoint(), dbclient.Options{
		PoolSize:     poolSize,
		Pooled:       pooled,
		QueryTimeout: cfg.QueryTimeout(),
	})
	if err != nil {
		return nil, domain.NewError(domain.KindEngineInitialisation, "create", err)
	}
	if err := connect(ctx, conn, cfg.ConnectRetries()); err != nil {
		conn.Close()
		return nil, domain.NewError(domain.KindEngineInitialisation, "create", fmt.Errorf("connect to %s database: %w", cfg.Dialect(), err))
	}

	repo, err := script.Open(ctx, cfg.ScriptRoots(), script.Options{
		Extension: config.ScriptExtension,
		Caching:   cfg.CachingEnabled(),
	})
	if err != nil {
		conn.Close()
		return nil, domain.NewError(domain.KindEngineInitialisation, "create", err)
	}

	e := &Engine{
		dialect:   cfg.Dialect(),
		conn:      conn,
		repo:      repo,
		executors: buildExecutors(cfg.Executors(), poolSize, pooled),
		state:     StateReady,
	}
	logger.Info("Engine ready.",
		"config", cfg.String(),
		"executors", len(e.executors),
		"watching", repo.Watching())
	return e, nil
}

// connect pings the database, retrying with exponential backoff.
func connect(ctx context.Context, conn dbclient.Connector, retries int) error {
	b := &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2,
		Jitter: true,
	}
	var err error
	for attempt := 0; ; attempt++ {
		if err = conn.Ping(ctx); err == nil {
			return nil
		}
		if attempt >= retries {
			return err
		}
		d := b.Duration()
		ctxlog.FromContext(ctx).Warn("Database not reachable, retrying.", "attempt", attempt+1, "delay", d, "error", err)
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		}
	}
}

// Dialect returns the SQL dialect scripts are rendered for.
func (e *Engine) Dialect() domain.Dialect { return e.dialect }

// Parse resolves and renders a script without touching the database.
func (e *Engine) Parse(ctx context.Context, name string, params domain.Params, opts ...CallOption) (*domain.QueryArtifact, error) {
	var art *domain.QueryArtifact
	err := e.invoke(ctx, "parse", name, opts, func(ctx context.Context) error {
		a, err := e.render(name, params, "parse")
		art = a
		return err
	})
	if err != nil {
		return nil, err
	}
	return art, nil
}

// Execute renders a script and runs it. A single statement yields *Rows or
// Affected; several statements run in one transaction and yield a *Batch.
func (e *Engine) Execute(ctx context.Context, name string, params domain.Params, opts ...CallOption) (domain.Result, error) {
	var res domain.Result
	err := e.invoke(ctx, "execute", name, opts, func(ctx context.Context) error {
		art, err := e.render(name, params, "execute")
		if err != nil {
			return err
		}
		res, err = e.run(ctx, art)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) invoke(ctx context.Context, op, name string, opts []CallOption, fn func(context.Context) error) error {
	var co callOptions
	for _, o := range opts {
		o(&co)
	}
	if co.executor < 0 || co.executor >= len(e.executors) {
		return domain.Errorf(domain.KindInvalidConfiguration, op, "executor %d is not configured (have %d)", co.executor, len(e.executors))
	}

	id, err := e.enter(op, name)
	if err != nil {
		return err
	}
	defer e.inflight.Leave(id)

	logger := ctxlog.FromContext(ctx).With("invocation", id, "op", op, "script", name)
	ctx = ctxlog.WithLogger(ctx, logger)

	start := time.Now()
	err = e.executors[co.executor].do(ctx, func() error { return fn(ctx) })
	if err != nil {
		logger.Debug("Invocation failed.", "duration", time.Since(start), "error", err)
		return err
	}
	logger.Debug("Invocation finished.", "duration", time.Since(start))
	return nil
}

// enter registers a new invocation of name and returns its id.
func (e *Engine) enter(op, name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateReady {
		return "", domain.Errorf(domain.KindEngineTerminated, op, "engine is %s", e.state)
	}
	for {
		if id := uuid.NewString(); e.inflight.TryEnter(id, name) {
			return id, nil
		}
	}
}

func (e *Engine) render(name string, params domain.Params, op string) (*domain.QueryArtifact, error) {
	s, err := e.repo.Load(name)
	if err != nil {
		return nil, withOp(err, op)
	}
	art, err := script.Render(s, params, e.dialect)
	if err != nil {
		return nil, withOp(err, op)
	}
	return art, nil
}

func (e *Engine) run(ctx context.Context, art *domain.QueryArtifact) (domain.Result, error) {
	if len(art.Statements) == 1 {
		res, err := e.conn.Run(ctx, art.Statements[0])
		if err != nil {
			return nil, domain.NewError(domain.KindDatabaseError, "execute", err)
		}
		return res, nil
	}
	batch, err := e.conn.RunBatch(ctx, art.Statements)
	if err != nil {
		return nil, domain.NewError(domain.KindDatabaseError, "execute", err)
	}
	return batch, nil
}

// withOp relabels a classified error with the public operation name.
func withOp(err error, op string) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return domain.NewError(de.Kind, op, de.Err)
	}
	return err
}

// Shutdown waits for in-flight invocations (bounded by ctx), then releases
// the watcher, the script cache and every database connection. Only the first
// call does anything; later calls return nil.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateReady {
		e.mu.Unlock()
		return nil
	}
	e.state = StateTerminated
	e.mu.Unlock()

	logger := ctxlog.FromContext(ctx)
	var errs []error
	if err := e.inflight.WaitAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("wait for %d in-flight invocation(s): %w", e.inflight.Count(), err))
	}
	if err := e.repo.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close script repository: %w", err))
	}
	if err := e.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	if len(errs) > 0 {
		logger.Error("Engine shutdown incomplete.", "error", errors.Join(errs...))
		return fmt.Errorf("shutdown: %w", errors.Join(errs...))
	}
	logger.Info("Engine shut down.")
	return nil
}

// Stats returns a snapshot of the engine's resource counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()
	return Stats{
		State:           state,
		OpenConnections: e.conn.OpenConnections(),
		InFlight:        e.inflight.Count(),
		CachedScripts:   e.repo.Cached(),
		Watching:        e.repo.Watching(),
		Executors:       len(e.executors),
	}
}
