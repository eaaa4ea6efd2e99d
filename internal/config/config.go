// Package config builds the immutable engine configuration, either
// programmatically through a Builder or from a configuration document.
package config

import (
	"fmt"
	"time"

	"nyql/internal/domain"
)

const (
	// DefaultQueryTimeout bounds each database round trip when the
	// configuration does not say otherwise.
	DefaultQueryTimeout = 30 * time.Second

	// ScriptExtension is appended to script names during resolution.
	ScriptExtension = ".sql"
)

// Config is a validated, frozen engine configuration. Use Builder to make one.
type Config struct {
	dialect        domain.Dialect
	endpoint       domain.Endpoint
	poolSize       int
	pooled         bool
	caching        bool
	scriptRoots    []string
	executors      []domain.ExecutorSpec
	autoBootstrap  bool
	connectRetries int
	queryTimeout   time.Duration
}

func (c *Config) Dialect() domain.Dialect     { return c.dialect }
func (c *Config) Endpoint() domain.Endpoint   { return c.endpoint }
func (c *Config) CachingEnabled() bool        { return c.caching }
func (c *Config) AutoBootstrap() bool         { return c.autoBootstrap }
func (c *Config) ConnectRetries() int         { return c.connectRetries }
func (c *Config) QueryTimeout() time.Duration { return c.queryTimeout }

// PoolSize returns the connection pool size and whether pooling is on.
func (c *Config) PoolSize() (int, bool) { return c.poolSize, c.pooled }

// ScriptRoots returns the script directories in search order.
func (c *Config) ScriptRoots() []string {
	return append([]string(nil), c.scriptRoots...)
}

// Executors returns the configured executor descriptors in order.
func (c *Config) Executors() []domain.ExecutorSpec {
	return append([]domain.ExecutorSpec(nil), c.executors...)
}

// String renders the configuration for logs. The password is never printed.
func (c *Config) String() string {
	pool := "off"
	if c.pooled {
		pool = fmt.Sprint(c.poolSize)
	}
	return fmt.Sprintf("dialect=%s url=%s user=%s pool=%s cache=%t roots=%v executors=%d",
		c.dialect, c.endpoint.URL, c.endpoint.User, pool, c.caching, c.scriptRoots, len(c.executors))
}
