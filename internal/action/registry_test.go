package action

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbyt-dev/orbyt/internal/errs"
)

// fakeHandler is a configurable test double.
type fakeHandler struct {
	name       string
	actions    []string
	concurrent bool
	canHandle  func(string) bool
	execute    func(ctx context.Context, action string, input map[string]any, actx *Context) (*Result, error)
}

func (f *fakeHandler) Name() string               { return f.name }
func (f *fakeHandler) Version() string            { return "0.0.1" }
func (f *fakeHandler) SupportedActions() []string { return f.actions }
func (f *fakeHandler) Capabilities() Capabilities {
	return Capabilities{Concurrent: f.concurrent}
}

func (f *fakeHandler) CanHandle(action string) bool {
	if f.canHandle == nil {
		return true
	}
	return f.canHandle(action)
}

func (f *fakeHandler) Execute(ctx context.Context, action string, input map[string]any, actx *Context) (*Result, error) {
	if f.execute != nil {
		return f.execute(ctx, action, input, actx)
	}
	return &Result{Success: true, Output: map[string]any{"handler": f.name}}, nil
}

// ---------------------------------------------------------------------------
// Registration
// ---------------------------------------------------------------------------

func TestRegister_PanicsOnProgrammingErrors(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { NewRegistry().Register(nil) })
	assert.Panics(t, func() {
		NewRegistry().Register(&fakeHandler{name: "", actions: []string{"x.y"}})
	})
	assert.Panics(t, func() {
		NewRegistry().Register(&fakeHandler{name: "empty", actions: nil})
	})

	r := NewRegistry()
	r.Register(&fakeHandler{name: "one", actions: []string{"http.get"}})
	assert.Panics(t, func() {
		r.Register(&fakeHandler{name: "one", actions: []string{"other.x"}})
	}, "duplicate handler name")
	assert.Panics(t, func() {
		r.Register(&fakeHandler{name: "two", actions: []string{"http.get"}})
	}, "duplicate exact pattern")
}

// ---------------------------------------------------------------------------
// Resolution
// ---------------------------------------------------------------------------

func TestResolve_ExactBeatsGlob(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	wild := &fakeHandler{name: "wild", actions: []string{"http.*"}}
	exact := &fakeHandler{name: "exact", actions: []string{"http.get"}}
	r.Register(wild)
	r.Register(exact)

	h, err := r.Resolve("http.get")
	require.NoError(t, err)
	assert.Equal(t, "exact", h.Name())

	h, err = r.Resolve("http.post")
	require.NoError(t, err)
	assert.Equal(t, "wild", h.Name())
}

func TestResolve_LongestPrefixWins(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(&fakeHandler{name: "broad", actions: []string{"cloud.*"}})
	r.Register(&fakeHandler{name: "narrow", actions: []string{"cloud.s3.*"}})

	h, err := r.Resolve("cloud.s3.put")
	require.NoError(t, err)
	assert.Equal(t, "narrow", h.Name())

	h, err = r.Resolve("cloud.vm.start")
	require.NoError(t, err)
	assert.Equal(t, "broad", h.Name())
}

func TestResolve_AmbiguousTieRejected(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(&fakeHandler{name: "alpha", actions: []string{"db.[pq]*"}})
	r.Register(&fakeHandler{name: "beta", actions: []string{"db.{put,query}"}})

	_, err := r.Resolve("db.put")
	require.Error(t, err)
	assert.Equal(t, errs.CodeAmbiguousAdapter, errs.CodeOf(err))
	assert.False(t, r.Known("db.put"))
}

func TestResolve_SameHandlerMultiplePatternsNotAmbiguous(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(&fakeHandler{name: "multi", actions: []string{"fs.{read,write}", "fs.[rw]*"}})

	h, err := r.Resolve("fs.read")
	require.NoError(t, err)
	assert.Equal(t, "multi", h.Name())
}

func TestResolve_UnknownWithSuggestion(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(&fakeHandler{name: "core", actions: []string{"core.noop", "core.echo"}})

	_, err := r.Resolve("core.ecoh")
	require.Error(t, err)
	assert.Equal(t, errs.CodeUnknownAdapter, errs.CodeOf(err))

	e := errs.As(err)
	require.NotNil(t, e)
	assert.Equal(t, "core.echo", e.Context["suggestion"])
}

func TestResolve_PredicateDeclines(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(&fakeHandler{
		name:      "picky",
		actions:   []string{"picky.*"},
		canHandle: func(action string) bool { return action != "picky.no" },
	})

	_, err := r.Resolve("picky.yes")
	require.NoError(t, err)
	_, err = r.Resolve("picky.no")
	require.Error(t, err)
	assert.Equal(t, errs.CodeUnknownAdapter, errs.CodeOf(err))
}

// ---------------------------------------------------------------------------
// Invoke
// ---------------------------------------------------------------------------

func TestInvoke_PanicIsolated(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(&fakeHandler{
		name:    "bomb",
		actions: []string{"bomb.go"},
		execute: func(context.Context, string, map[string]any, *Context) (*Result, error) {
			panic("kaboom")
		},
	})

	res, err := r.Invoke(context.Background(), "bomb.go", nil, nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Contains(t, res.Error.Message, "kaboom")
	assert.NotEmpty(t, res.Error.Stack)
}

func TestInvoke_SerializesNonConcurrentHandler(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	r := NewRegistry()
	r.Register(&fakeHandler{
		name:       "serial",
		actions:    []string{"serial.work"},
		concurrent: false,
		execute: func(context.Context, string, map[string]any, *Context) (*Result, error) {
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			return &Result{Success: true}, nil
		},
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Invoke(context.Background(), "serial.work", nil, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen, "non-concurrent handler must never overlap")
}

func TestPatternsAndHandlers(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(&fakeHandler{name: "b", actions: []string{"b.x"}})
	r.Register(&fakeHandler{name: "a", actions: []string{"a.x"}})

	assert.Equal(t, []string{"a.x", "b.x"}, r.Patterns())

	handlers := r.Handlers()
	require.Len(t, handlers, 2)
	assert.Equal(t, "b", handlers[0].Name(), "registration order preserved")
}
