package dag

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/specialistvlad/buildgridgo/internal/ctxlog"
)

// Release undoes an acquisition.
type Release func(ctx context.Context) error

type scopeEntry struct {
	name    string
	release Release
}

// Scope is a LIFO stack of releases. Every release runs at most once: either
// when a node releases the scope explicitly or when the run ends.
type Scope struct {
	mu      sync.Mutex
	entries []scopeEntry
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{}
}

// Acquire pushes a release onto the stack.
func (s *Scope) Acquire(name string, release Release) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, scopeEntry{name: name, release: release})
}

func (s *Scope) pop() (scopeEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return scopeEntry{}, false
	}
	e := s.entries[len(s.entries)-1]
	s.entries = s.entries[:len(s.entries)-1]
	return e, true
}

// ReleaseAll runs every held release in reverse acquisition order. A failing
// release does not stop the ones below it.
func (s *Scope) ReleaseAll(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	var errs []error
	for {
		e, ok := s.pop()
		if !ok {
			break
		}
		logger.Info("🔥 Releasing", "name", e.name)
		if err := e.release(ctx); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", e.name, err))
		}
	}
	return errors.Join(errs...)
}
