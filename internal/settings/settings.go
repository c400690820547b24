// Package settings exposes configuration as a flat, case-insensitive key space
// addressed with ':'-separated paths ("BackgroundRefresh:Catalog:Load:RefreshInterval").
//
// Values come from the decoded config tree and may be overridden by
// environment variables using "__" as the separator
// (BackgroundRefresh__Catalog__Load__RefreshInterval=00:01:00).
package settings

import (
	"errors"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

const (
	// Sep separates path segments.
	Sep = ":"
	// EnvSep replaces Sep in environment variable names.
	EnvSep = "__"
)

// Store is a read-mostly key/value view. The zero value is empty and usable.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
}

func New() *Store {
	return &Store{values: map[string]string{}}
}

// FromTree flattens tree under root. Numbers and bools are rendered the way a
// human would write them in the file ("2", "true").
func FromTree(root string, tree map[string]any) *Store {
	s := New()
	s.mu.Lock()
	flatten(s.values, normKey(root), tree)
	s.mu.Unlock()
	return s
}

func flatten(dst map[string]string, prefix string, v any) {
	join := func(k string) string {
		if prefix == "" {
			return normKey(k)
		}
		return prefix + Sep + normKey(k)
	}
	switch x := v.(type) {
	case map[string]any:
		for k, child := range x {
			flatten(dst, join(k), child)
		}
	case []any:
		for i, child := range x {
			flatten(dst, join(strconv.Itoa(i)), child)
		}
	case nil:
		dst[prefix] = ""
	case string:
		dst[prefix] = x
	case bool:
		dst[prefix] = strconv.FormatBool(x)
	case float64:
		dst[prefix] = strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		dst[prefix] = strconv.Itoa(x)
	default:
		dst[prefix] = ""
	}
}

// OverlayEnv copies environment entries ("KEY=value") whose first segment is
// root into the store, replacing file values.
func (s *Store) OverlayEnv(environ []string, root string) {
	root = normKey(root)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = map[string]string{}
	}
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		key := normKey(strings.ReplaceAll(k, EnvSep, Sep))
		if key == root || strings.HasPrefix(key, root+Sep) {
			s.values[key] = v
		}
	}
}

// Set stores a single value (tests and programmatic overrides).
func (s *Store) Set(key, value string) {
	s.mu.Lock()
	if s.values == nil {
		s.values = map[string]string{}
	}
	s.values[normKey(key)] = value
	s.mu.Unlock()
}

func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[normKey(key)]
	return v, ok
}

// Section returns every value below path, keyed by the remaining (lowercased)
// path. ok is false when nothing exists below path.
func (s *Store) Section(path string) (map[string]string, bool) {
	prefix := normKey(path) + Sep
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[string]string{}
	for k, v := range s.values {
		if strings.HasPrefix(k, prefix) {
			out[strings.TrimPrefix(k, prefix)] = v
		}
	}
	return out, len(out) > 0
}

// Keys returns all keys, sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// LoadDotEnv loads .env files into the process environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func normKey(k string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(k), Sep))
}
