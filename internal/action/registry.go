package action

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/orbyt-dev/orbyt/internal/errs"
)

// patternEntry binds one declared pattern to its handler. specificity is the
// length of the literal prefix before the first glob metacharacter; an exact
// pattern's specificity is its full length.
type patternEntry struct {
	pattern     string
	specificity int
	exact       bool
	handler     Handler
}

// Registry maps dotted action names to handlers. Resolution prefers the
// longest literal prefix; two distinct handlers tying at the same
// specificity make the action ambiguous, which is rejected at resolve time
// rather than silently picking one.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	order    []string
	patterns []patternEntry

	// guards serializes Execute calls for handlers that do not declare
	// Concurrent capability.
	guards map[string]*sync.Mutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		guards:   make(map[string]*sync.Mutex),
	}
}

// Register adds a handler. Registration happens at startup with a fixed set
// of handlers, so programming errors (nil handler, empty name, duplicate
// name, duplicate exact pattern) panic rather than return.
func (r *Registry) Register(h Handler) {
	if h == nil {
		panic("action: Register called with nil handler")
	}
	name := h.Name()
	if name == "" {
		panic("action: Register called with empty handler name")
	}
	actions := h.SupportedActions()
	if len(actions) == 0 {
		panic(fmt.Sprintf("action: handler %q declares no supported actions", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.handlers[name]; dup {
		panic(fmt.Sprintf("action: handler %q registered twice", name))
	}
	for _, pattern := range actions {
		if pattern == "" {
			panic(fmt.Sprintf("action: handler %q declares an empty pattern", name))
		}
		for _, existing := range r.patterns {
			if existing.pattern == pattern {
				panic(fmt.Sprintf("action: pattern %q claimed by both %q and %q",
					pattern, existing.handler.Name(), name))
			}
		}
		r.patterns = append(r.patterns, patternEntry{
			pattern:     pattern,
			specificity: literalPrefixLen(pattern),
			exact:       !isGlob(pattern),
			handler:     h,
		})
	}

	r.handlers[name] = h
	r.order = append(r.order, name)
	if !h.Capabilities().Concurrent {
		r.guards[name] = &sync.Mutex{}
	}
}

// Resolve returns the handler for an action name. Among all matching
// patterns the one with the longest literal prefix wins; when two distinct
// handlers tie, resolution fails with VALIDATION_AMBIGUOUS_ADAPTER. An
// unmatched action fails with VALIDATION_UNKNOWN_ADAPTER carrying a
// spelling suggestion when one is close enough.
func (r *Registry) Resolve(action string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best []patternEntry
	bestSpec := -1
	for _, entry := range r.patterns {
		if !entry.matches(action) {
			continue
		}
		if p, ok := entry.handler.(Predicate); ok && !p.CanHandle(action) {
			continue
		}
		switch {
		case entry.specificity > bestSpec:
			bestSpec = entry.specificity
			best = best[:0]
			best = append(best, entry)
		case entry.specificity == bestSpec:
			best = append(best, entry)
		}
	}

	switch len(best) {
	case 0:
		return nil, r.unknownActionLocked(action)
	case 1:
		return best[0].handler, nil
	}

	// Same handler matching via several of its own patterns is fine.
	first := best[0].handler
	names := []string{first.Name()}
	ambiguous := false
	for _, entry := range best[1:] {
		if entry.handler != first {
			ambiguous = true
			names = append(names, entry.handler.Name())
		}
	}
	if !ambiguous {
		return first, nil
	}
	sort.Strings(names)
	return nil, errs.Newf(errs.CodeAmbiguousAdapter,
		"action %q matches handlers %s with equal specificity", action, strings.Join(names, ", ")).
		WithContext("action", action).
		WithContext("handlers", names)
}

// Known reports whether an action resolves unambiguously.
func (r *Registry) Known(action string) bool {
	_, err := r.Resolve(action)
	return err == nil
}

// Invoke resolves the action and runs it through the handler with panic
// isolation. Handlers without the Concurrent capability are serialized on a
// per-handler guard. A panic inside the handler is converted into a failed
// Result instead of tearing down the worker pool.
func (r *Registry) Invoke(ctx context.Context, action string, input map[string]any, actx *Context) (*Result, error) {
	h, err := r.Resolve(action)
	if err != nil {
		return nil, err
	}

	if guard := r.guard(h.Name()); guard != nil {
		guard.Lock()
		defer guard.Unlock()
	}

	return safeExecute(ctx, h, action, input, actx)
}

// Handlers returns the registered handlers in registration order.
func (r *Registry) Handlers() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Handler, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.handlers[name])
	}
	return out
}

// Patterns returns every declared pattern, sorted.
func (r *Registry) Patterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.patterns))
	for _, entry := range r.patterns {
		out = append(out, entry.pattern)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) guard(name string) *sync.Mutex {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.guards[name]
}

// unknownActionLocked builds the UNKNOWN_ADAPTER error, attaching a
// suggestion computed against the exact patterns and handler names.
func (r *Registry) unknownActionLocked(action string) error {
	candidates := make([]string, 0, len(r.patterns))
	for _, entry := range r.patterns {
		if entry.exact {
			candidates = append(candidates, entry.pattern)
		}
	}
	for _, name := range r.order {
		candidates = append(candidates, name)
	}

	e := errs.Newf(errs.CodeUnknownAdapter, "no handler registered for action %q", action).
		WithContext("action", action)
	if suggestion, ok := errs.Suggest(action, candidates); ok {
		e = e.WithContext("suggestion", suggestion)
	}
	return e
}

func (e patternEntry) matches(action string) bool {
	if e.exact {
		return e.pattern == action
	}
	ok, err := doublestar.Match(e.pattern, action)
	return err == nil && ok
}

func safeExecute(ctx context.Context, h Handler, action string, input map[string]any, actx *Context) (result *Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = &Result{
				Success: false,
				Error: &ResultError{
					Message: fmt.Sprintf("handler %s panicked: %v", h.Name(), rec),
					Code:    string(errs.CodeAdapterError),
					Stack:   string(debug.Stack()),
				},
			}
			err = nil
		}
	}()
	return h.Execute(ctx, action, input, actx)
}

func isGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

func literalPrefixLen(pattern string) int {
	if i := strings.IndexAny(pattern, "*?[{"); i >= 0 {
		return i
	}
	return len(pattern)
}
