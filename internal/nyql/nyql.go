// Package nyql is the process-wide entry point: one configuration and at most
// one engine per process, created explicitly with Bootstrap or implicitly on
// first use when auto-bootstrap is on.
package nyql

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"

	"nyql/internal/config"
	"nyql/internal/ctxlog"
	"nyql/internal/domain"
	"nyql/internal/engine"
)

const (
	// EnvAutoBootstrap overrides the configured auto-bootstrap flag when set
	// to a boolean ("true", "0", ...).
	EnvAutoBootstrap = "NYQL_AUTO_BOOTSTRAP"

	// EnvConfig names the configuration document loaded when nothing was
	// configured programmatically.
	EnvConfig = "NYQL_CONFIG"

	DefaultConfigFile = "nyql.json"
)

var (
	mu         sync.Mutex
	configured *config.Config
	instance   *engine.Engine
	terminated bool
)

// Configure sets the configuration used by the next bootstrap. It fails while
// an engine is running.
func Configure(cfg *config.Config) error {
	mu.Lock()
	defer mu.Unlock()
	if instance != nil {
		return domain.Errorf(domain.KindInvalidConfiguration, "configure", "engine is running; shut it down first")
	}
	configured = cfg
	terminated = false
	return nil
}

// AutoBootstrap reports whether the engine is created implicitly on first use.
func AutoBootstrap() bool {
	mu.Lock()
	defer mu.Unlock()
	return autoBootstrapLocked()
}

func autoBootstrapLocked() bool {
	if raw := strings.TrimSpace(os.Getenv(EnvAutoBootstrap)); raw != "" {
		if on, err := strconv.ParseBool(raw); err == nil {
			return on
		}
	}
	if configured != nil {
		return configured.AutoBootstrap()
	}
	return true
}

// Bootstrap creates the process engine. It is a no-op when one is running.
func Bootstrap(ctx context.Context) error {
	mu.Lock()
	defer mu.Unlock()
	_, err := bootstrapLocked(ctx)
	return err
}

func bootstrapLocked(ctx context.Context) (*engine.Engine, error) {
	if instance != nil {
		return instance, nil
	}
	if configured == nil {
		cfg, err := loadDefault()
		if err != nil {
			return nil, err
		}
		configured = cfg
	}
	e, err := engine.New(ctx, configured)
	if err != nil {
		return nil, err
	}
	instance, terminated = e, false
	return e, nil
}

func loadDefault() (*config.Config, error) {
	path := os.Getenv(EnvConfig)
	if path == "" {
		path = DefaultConfigFile
	}
	doc, err := config.LoadDocument(path)
	if err != nil {
		return nil, err
	}
	return config.NewBuilder().SetupFrom(doc).Build()
}

func current(ctx context.Context, op string) (*engine.Engine, error) {
	mu.Lock()
	defer mu.Unlock()
	if instance != nil {
		return instance, nil
	}
	if terminated {
		return nil, domain.Errorf(domain.KindEngineTerminated, op, "engine has been shut down")
	}
	if !autoBootstrapLocked() {
		return nil, domain.Errorf(domain.KindEngineInitialisation, op, "engine not bootstrapped and auto-bootstrap is off")
	}
	ctxlog.FromContext(ctx).Debug("Bootstrapping engine on first use.", "op", op)
	return bootstrapLocked(ctx)
}

// Parse renders a script with the process engine.
func Parse(ctx context.Context, name string, params domain.Params, opts ...engine.CallOption) (*domain.QueryArtifact, error) {
	e, err := current(ctx, "parse")
	if err != nil {
		return nil, err
	}
	return e.Parse(ctx, name, params, opts...)
}

// Execute runs a script with the process engine.
func Execute(ctx context.Context, name string, params domain.Params, opts ...engine.CallOption) (domain.Result, error) {
	e, err := current(ctx, "execute")
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, name, params, opts...)
}

// Shutdown stops the process engine. Until Configure or Bootstrap is called
// again, operations fail with EngineTerminated. Without a running engine it
// returns nil.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	e := instance
	instance = nil
	if e != nil {
		terminated = true
	}
	mu.Unlock()

	if e == nil {
		return nil
	}
	return e.Shutdown(ctx)
}
