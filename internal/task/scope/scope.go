// Package scope builds a fresh, disposable execution context for every refresh
// callback invocation. Values resolved inside a scope are constructed lazily,
// cached for that scope only, and released in reverse order on Close.
package scope

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrClosed      = errors.New("scope closed")
	ErrNotProvided = errors.New("no provider registered")
)

// Constructor builds one value for a scope. Use sc.OnClose to register cleanup.
type Constructor func(ctx context.Context, sc *Scope) (any, error)

// Provider holds constructors shared by all scopes. Safe for concurrent use.
type Provider struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

func NewProvider() *Provider {
	return &Provider{ctors: map[string]Constructor{}}
}

// Provide registers (or replaces) the constructor for name.
func (p *Provider) Provide(name string, ctor Constructor) {
	p.mu.Lock()
	if p.ctors == nil {
		p.ctors = map[string]Constructor{}
	}
	p.ctors[name] = ctor
	p.mu.Unlock()
}

// Names lists registered constructor names.
func (p *Provider) Names() []string {
	p.mu.RLock()
	out := make([]string, 0, len(p.ctors))
	for k := range p.ctors {
		out = append(out, k)
	}
	p.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (p *Provider) lookup(name string) (Constructor, bool) {
	if p == nil {
		return nil, false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.ctors[name]
	return c, ok
}

// NewScope returns a scope bound to ctx. A nil Provider yields a scope that
// can only hold values put into it with Set.
func (p *Provider) NewScope(ctx context.Context, taskID string) *Scope {
	return &Scope{
		id:       uuid.NewString(),
		taskID:   taskID,
		ctx:      ctx,
		provider: p,
		values:   map[string]any{},
	}
}

// Scope is owned by a single callback invocation.
type Scope struct {
	id       string
	taskID   string
	ctx      context.Context
	provider *Provider

	mu       sync.Mutex
	values   map[string]any
	cleanups []func() error
	closed   bool
}

func (s *Scope) ID() string     { return s.id }
func (s *Scope) TaskID() string { return s.taskID }

// Resolve returns the scope's instance of name, constructing it on first use.
func (s *Scope) Resolve(name string) (any, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if v, ok := s.values[name]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	ctor, ok := s.provider.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotProvided, name)
	}
	// Construct outside the lock so constructors may resolve their own deps.
	v, err := ctor(s.ctx, s)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if prev, ok := s.values[name]; ok {
		return prev, nil
	}
	s.values[name] = v
	return v, nil
}

// Set stores a value directly.
func (s *Scope) Set(name string, v any) {
	s.mu.Lock()
	s.values[name] = v
	s.mu.Unlock()
}

// OnClose registers fn to run when the scope is closed (LIFO). On a scope
// that is already closed, fn runs immediately.
func (s *Scope) OnClose(fn func() error) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = fn()
		return
	}
	s.cleanups = append(s.cleanups, fn)
	s.mu.Unlock()
}

// Close runs cleanups in reverse registration order. Idempotent.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cleanups := s.cleanups
	s.cleanups = nil
	s.values = map[string]any{}
	s.mu.Unlock()

	var errs []error
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get resolves name and asserts its type.
func Get[T any](s *Scope, name string) (T, error) {
	var zero T
	v, err := s.Resolve(name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("scope value %q is %T, not %T", name, v, zero)
	}
	return t, nil
}
