package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"nyql/internal/domain"
)

// Builder accumulates configuration fluently. Problems are collected and
// reported together by Build.
type Builder struct {
	dialect        string
	endpoint       domain.Endpoint
	pool           *int
	caching        bool
	roots          []string
	executors      []domain.ExecutorSpec
	autoBootstrap  bool
	connectRetries int
	queryTimeout   time.Duration
	errs           []error
}

// NewBuilder returns a Builder with defaults: no pooling, no caching,
// auto-bootstrap on, DefaultQueryTimeout.
func NewBuilder() *Builder {
	return &Builder{autoBootstrap: true, queryTimeout: DefaultQueryTimeout}
}

func (b *Builder) Dialect(name string) *Builder {
	b.dialect = name
	return b
}

// JDBC sets the connection URL and credentials.
func (b *Builder) JDBC(url, user, password string) *Builder {
	b.endpoint = domain.Endpoint{URL: url, User: user, Password: password}
	return b
}

// URL, User and Password override one endpoint field each, leaving the
// others as previously set.
func (b *Builder) URL(url string) *Builder {
	b.endpoint.URL = url
	return b
}

func (b *Builder) User(user string) *Builder {
	b.endpoint.User = user
	return b
}

func (b *Builder) Password(password string) *Builder {
	b.endpoint.Password = password
	return b
}

// Pool enables connection pooling with n connections.
func (b *Builder) Pool(n int) *Builder {
	b.pool = &n
	return b
}

// NoPool turns pooling off.
func (b *Builder) NoPool() *Builder {
	b.pool = nil
	return b
}

func (b *Builder) Caching(on bool) *Builder {
	b.caching = on
	return b
}

// ScriptRoots appends directories to the script search path.
func (b *Builder) ScriptRoots(dirs ...string) *Builder {
	b.roots = append(b.roots, dirs...)
	return b
}

// AddExecutor appends an executor after any loaded from a document.
func (b *Builder) AddExecutor(spec domain.ExecutorSpec) *Builder {
	b.executors = append(b.executors, spec)
	return b
}

func (b *Builder) AutoBootstrap(on bool) *Builder {
	b.autoBootstrap = on
	return b
}

// ConnectRetries sets how many extra connection attempts engine creation makes.
func (b *Builder) ConnectRetries(n int) *Builder {
	b.connectRetries = n
	return b
}

// QueryTimeout bounds each database round trip. Zero disables the bound.
func (b *Builder) QueryTimeout(d time.Duration) *Builder {
	b.queryTimeout = d
	return b
}

// Build validates the accumulated settings and freezes them.
func (b *Builder) Build() (*Config, error) {
	causes := append([]error(nil), b.errs...)

	dialect, ok := domain.ParseDialect(b.dialect)
	switch {
	case b.dialect == "":
		causes = append(causes, errors.New("dialect is required"))
	case !ok:
		causes = append(causes, fmt.Errorf("unknown dialect %q", b.dialect))
	}

	if b.endpoint.URL == "" {
		causes = append(causes, errors.New("missing endpoint: jdbc.url is required"))
	}

	if b.pool != nil && *b.pool < 1 {
		causes = append(causes, fmt.Errorf("invalid pool size %d: must be at least 1", *b.pool))
	}

	roots := make([]string, 0, len(b.roots))
	if len(b.roots) == 0 {
		causes = append(causes, errors.New("at least one script root is required"))
	}
	for _, r := range b.roots {
		r = filepath.Clean(r)
		info, err := os.Stat(r)
		switch {
		case err != nil:
			causes = append(causes, fmt.Errorf("script root %q does not exist", r))
		case !info.IsDir():
			causes = append(causes, fmt.Errorf("script root %q is not a directory", r))
		}
		roots = append(roots, r)
	}

	for i, ex := range b.executors {
		if ex.MaxConcurrency < 1 {
			causes = append(causes, fmt.Errorf("executor %d: maxConcurrency must be at least 1, got %d", i, ex.MaxConcurrency))
		}
	}
	if b.connectRetries < 0 {
		causes = append(causes, fmt.Errorf("connectRetries must not be negative, got %d", b.connectRetries))
	}
	if b.queryTimeout < 0 {
		causes = append(causes, fmt.Errorf("queryTimeout must not be negative, got %s", b.queryTimeout))
	}

	if len(causes) > 0 {
		return nil, domain.NewError(domain.KindInvalidConfiguration, "build", errors.Join(causes...))
	}

	cfg := &Config{
		dialect:        dialect,
		endpoint:       b.endpoint,
		caching:        b.caching,
		scriptRoots:    roots,
		executors:      append([]domain.ExecutorSpec(nil), b.executors...),
		autoBootstrap:  b.autoBootstrap,
		connectRetries: b.connectRetries,
		queryTimeout:   b.queryTimeout,
	}
	if b.pool != nil {
		cfg.pooled = true
		cfg.poolSize = *b.pool
	}
	return cfg, nil
}
