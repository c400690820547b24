package hydration

import (
	"context"
	"sync"
)

// Signal is resolved exactly once with the hydration outcome. Any number of
// waiters, including ones that arrive after resolution, see the same result.
type Signal struct {
	once sync.Once
	done chan struct{}
	err  error
}

func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

func (s *Signal) resolve(err error) bool {
	ok := false
	s.once.Do(func() {
		s.err = err
		close(s.done)
		ok = true
	})
	return ok
}

// Done is closed once the outcome is known.
func (s *Signal) Done() <-chan struct{} { return s.done }

// Err returns the outcome. It is nil until Done is closed.
func (s *Signal) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Wait blocks until the signal resolves or ctx is done.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
