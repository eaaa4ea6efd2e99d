package script

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/pkg/errors"

	"nyql/internal/domain"
)

// Script is a compiled template ready to render.
type Script struct {
	Name string
	Path string
	expr hclsyntax.Expression
}

// Options configures a Repository.
type Options struct {
	Extension string
	Caching   bool
}

// Repository loads scripts from ordered roots. With caching on, compiled
// scripts are kept until a change under a root is observed.
type Repository struct {
	roots []string
	ext   string

	mu    sync.Mutex
	cache map[string]*Script // nil when caching is off
	gen   uint64             // bumped on every eviction or purge

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Open creates a Repository. Every root must be an existing directory.
func Open(ctx context.Context, roots []string, opts Options) (*Repository, error) {
	for _, r := range roots {
		info, err := os.Stat(r)
		if err != nil || !info.IsDir() {
			return nil, errors.Errorf("script root %q is not an accessible directory", r)
		}
	}
	r := &Repository{roots: append([]string(nil), roots...), ext: opts.Extension}
	if !opts.Caching {
		return r, nil
	}

	r.cache = map[string]*Script{}
	if err := r.watch(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Roots returns the search path.
func (r *Repository) Roots() []string { return append([]string(nil), r.roots...) }

// Resolve returns the path of the first file matching name across the roots.
func (r *Repository) Resolve(name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", domain.NewError(domain.KindScriptNotFound, "resolve", err)
	}
	rel := filepath.FromSlash(name) + r.ext
	for _, root := range r.roots {
		p := filepath.Join(root, rel)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", domain.Errorf(domain.KindScriptNotFound, "resolve", "script %q not found under %v", name, r.roots)
}

func validateName(name string) error {
	if name == "" {
		return errors.New("empty script name")
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, `\`) {
		return errors.Errorf("script name %q must be a relative, slash-delimited path", name)
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return errors.Errorf("script name %q has an invalid segment %q", name, seg)
		}
	}
	return nil
}

// Load resolves and compiles a script, going through the cache when enabled.
func (r *Repository) Load(name string) (*Script, error) {
	s, gen := r.cached(name)
	if s != nil {
		return s, nil
	}

	path, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewError(domain.KindScriptNotFound, "load", errors.Wrapf(err, "read script %s", path))
	}
	expr, diags := hclsyntax.ParseTemplate(src, path, hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return nil, domain.NewError(domain.KindScriptEvaluation, "compile", diags)
	}

	s = &Script{Name: name, Path: path, expr: expr}
	r.store(s, gen)
	return s, nil
}

// cached returns the compiled script for name, if any, and the cache
// generation the lookup saw.
func (r *Repository) cached(name string) (*Script, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache == nil {
		return nil, r.gen
	}
	return r.cache[name], r.gen
}

// store caches s unless the cache changed since generation gen: the file may
// have been rewritten after it was read.
func (r *Repository) store(s *Script, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache == nil || r.gen != gen {
		return false
	}
	r.cache[s.Name] = s
	return true
}

// Cached reports how many compiled scripts are held.
func (r *Repository) Cached() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}

// Watching reports whether the file watcher is running.
func (r *Repository) Watching() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.watcher != nil
}

// Close stops the watcher and drops the cache. Safe to call more than once.
func (r *Repository) Close() error {
	r.mu.Lock()
	w, done := r.watcher, r.done
	r.watcher = nil
	if r.cache != nil {
		r.cache = map[string]*Script{}
	}
	r.gen++
	r.mu.Unlock()

	if w == nil {
		return nil
	}
	err := w.Close()
	<-done
	return err
}
