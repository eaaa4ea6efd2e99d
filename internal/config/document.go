package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"nyql/internal/domain"
)

// Document is a configuration mapping loaded from an external source.
// Nested objects are flattened into dotted keys, so {"jdbc":{"url":..}} and
// {"jdbc.url":..} are the same document.
type Document struct {
	Values map[string]any
	// Dir resolves relative scriptRoots. Empty means the working directory.
	Dir string
}

// Recognised document keys.
const (
	KeyDialect        = "dialect"
	KeyJDBCURL        = "jdbc.url"
	KeyJDBCUser       = "jdbc.user"
	KeyJDBCPassword   = "jdbc.password"
	KeyJDBCPool       = "jdbc.pool"
	KeyConnectRetries = "jdbc.connectRetries"
	KeyCache          = "cache"
	KeyScriptRoots    = "scriptRoots"
	KeyExecutors      = "executors"
	KeyAutoBootstrap  = "autoBootstrap"
	KeyQueryTimeout   = "queryTimeout"
)

// LoadDocument reads a configuration document. The format follows the file
// extension: .toml, .yaml/.yml, anything else is JSON.
func LoadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, domain.NewError(domain.KindInvalidConfiguration, "load",
			errors.Wrapf(err, "read config document %s", path))
	}
	doc, err := ParseDocument(data, strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return Document{}, domain.NewError(domain.KindInvalidConfiguration, "load",
			errors.Wrapf(err, "parse config document %s", path))
	}
	doc.Dir = filepath.Dir(path)
	return doc, nil
}

// ParseDocument decodes raw document bytes in the given format ("json",
// "toml", "yaml" or "yml").
func ParseDocument(data []byte, format string) (Document, error) {
	raw := map[string]any{}
	switch strings.ToLower(format) {
	case "toml":
		if err := toml.Unmarshal(data, &raw); err != nil {
			return Document{}, err
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Document{}, err
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return Document{}, err
		}
	}
	values := map[string]any{}
	flatten("", raw, values)
	return Document{Values: values}, nil
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}

// SetupFrom applies a document field by field. Unknown keys are ignored;
// badly typed known keys are reported by Build.
func (b *Builder) SetupFrom(doc Document) *Builder {
	v := doc.Values
	if s, ok := b.stringKey(v, KeyDialect); ok {
		b.dialect = s
	}
	if s, ok := b.stringKey(v, KeyJDBCURL); ok {
		b.endpoint.URL = s
	}
	if s, ok := b.stringKey(v, KeyJDBCUser); ok {
		b.endpoint.User = s
	}
	if s, ok := b.stringKey(v, KeyJDBCPassword); ok {
		b.endpoint.Password = s
	}
	if n, ok := b.intKey(v, KeyJDBCPool); ok {
		b.Pool(n)
	}
	if n, ok := b.intKey(v, KeyConnectRetries); ok {
		b.connectRetries = n
	}
	if on, ok := b.boolKey(v, KeyCache); ok {
		b.caching = on
	}
	if on, ok := b.boolKey(v, KeyAutoBootstrap); ok {
		b.autoBootstrap = on
	}
	if s, ok := b.stringKey(v, KeyQueryTimeout); ok {
		d, err := time.ParseDuration(s)
		if err != nil {
			b.errs = append(b.errs, fmt.Errorf("%s: %w", KeyQueryTimeout, err))
		} else {
			b.queryTimeout = d
		}
	}
	if raw, ok := v[KeyScriptRoots]; ok {
		for _, r := range b.stringList(KeyScriptRoots, raw) {
			if doc.Dir != "" && !filepath.IsAbs(r) {
				r = filepath.Join(doc.Dir, r)
			}
			b.roots = append(b.roots, r)
		}
	}
	if raw, ok := v[KeyExecutors]; ok {
		b.executors = append(b.executors, b.executorList(raw)...)
	}
	return b
}

func (b *Builder) stringKey(v map[string]any, key string) (string, bool) {
	raw, ok := v[key]
	if !ok || raw == nil {
		return "", false
	}
	s, ok := raw.(string)
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("%s: expected a string, got %T", key, raw))
		return "", false
	}
	return s, true
}

func (b *Builder) boolKey(v map[string]any, key string) (bool, bool) {
	raw, ok := v[key]
	if !ok || raw == nil {
		return false, false
	}
	on, ok := raw.(bool)
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("%s: expected a boolean, got %T", key, raw))
		return false, false
	}
	return on, true
}

func (b *Builder) intKey(v map[string]any, key string) (int, bool) {
	raw, ok := v[key]
	if !ok || raw == nil {
		return 0, false
	}
	n, err := toInt(raw)
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("%s: %w", key, err))
		return 0, false
	}
	return n, true
}

func (b *Builder) stringList(key string, raw any) []string {
	switch t := raw.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				b.errs = append(b.errs, fmt.Errorf("%s[%d]: expected a string, got %T", key, i, item))
				continue
			}
			out = append(out, s)
		}
		return out
	}
	b.errs = append(b.errs, fmt.Errorf("%s: expected a list of strings, got %T", key, raw))
	return nil
}

func (b *Builder) executorList(raw any) []domain.ExecutorSpec {
	var items []map[string]any
	switch t := raw.(type) {
	case []map[string]any:
		items = t
	case []any:
		for i, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				b.errs = append(b.errs, fmt.Errorf("%s[%d]: expected an object, got %T", KeyExecutors, i, item))
				continue
			}
			items = append(items, m)
		}
	default:
		b.errs = append(b.errs, fmt.Errorf("%s: expected a list, got %T", KeyExecutors, raw))
		return nil
	}

	specs := make([]domain.ExecutorSpec, 0, len(items))
	for i, m := range items {
		n, err := toInt(m["maxConcurrency"])
		if err != nil {
			b.errs = append(b.errs, fmt.Errorf("%s[%d].maxConcurrency: %w", KeyExecutors, i, err))
			continue
		}
		specs = append(specs, domain.ExecutorSpec{MaxConcurrency: n})
	}
	return specs
}

func toInt(raw any) (int, error) {
	switch t := raw.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case uint64:
		if t > math.MaxInt32 {
			return 0, fmt.Errorf("value %d out of range", t)
		}
		return int(t), nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("expected an integer, got %v", t)
		}
		return int(t), nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, fmt.Errorf("expected an integer, got %s", t)
		}
		return int(n), nil
	case nil:
		return 0, errors.New("value is required")
	}
	return 0, fmt.Errorf("expected an integer, got %T", raw)
}
