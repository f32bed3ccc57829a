package action

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbyt-dev/orbyt/internal/errs"
)

func newCoreRegistry() *Registry {
	r := NewRegistry()
	RegisterBuiltins(r)
	return r
}

func TestCore_Noop(t *testing.T) {
	t.Parallel()

	res, err := newCoreRegistry().Invoke(context.Background(), "core.noop", nil, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.NotNil(t, res.Metrics)
}

func TestCore_EchoCopiesInput(t *testing.T) {
	t.Parallel()

	input := map[string]any{"nested": map[string]any{"k": "v"}}
	res, err := newCoreRegistry().Invoke(context.Background(), "core.echo", input, nil)
	require.NoError(t, err)
	require.True(t, res.Success)

	out, ok := res.Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, input, out)

	// The echoed output must be detached from the caller's map.
	out["nested"].(map[string]any)["k"] = "mutated"
	assert.Equal(t, "v", input["nested"].(map[string]any)["k"])
}

func TestCore_Sleep(t *testing.T) {
	t.Parallel()

	start := time.Now()
	res, err := newCoreRegistry().Invoke(context.Background(), "core.sleep",
		map[string]any{"duration": "20ms"}, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestCore_SleepCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := newCoreRegistry().Invoke(ctx, "core.sleep",
		map[string]any{"duration": "10s"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCore_SleepBadInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input map[string]any
	}{
		{"missing duration", map[string]any{}},
		{"unparseable", map[string]any{"duration": "sideways"}},
		{"negative", map[string]any{"duration": "-5s"}},
		{"wrong type", map[string]any{"duration": []any{1}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := newCoreRegistry().Invoke(context.Background(), "core.sleep", tt.input, nil)
			require.NoError(t, err)
			assert.False(t, res.Success)
			require.NotNil(t, res.Error)
		})
	}
}

func TestCore_SleepNumericMilliseconds(t *testing.T) {
	t.Parallel()

	res, err := newCoreRegistry().Invoke(context.Background(), "core.sleep",
		map[string]any{"duration": 5}, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)

	out := res.Output.(map[string]any)
	assert.Equal(t, int64(5), out["sleptMs"])
}

func TestCore_Fail(t *testing.T) {
	t.Parallel()

	res, err := newCoreRegistry().Invoke(context.Background(), "core.fail",
		map[string]any{"message": "forced", "code": string(errs.CodeAdapterError)}, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "forced", res.Error.Message)
	assert.Equal(t, string(errs.CodeAdapterError), res.Error.Code)

	res, err = newCoreRegistry().Invoke(context.Background(), "core.fail", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, string(errs.CodeStepFailed), res.Error.Code)
}

func TestCore_Log(t *testing.T) {
	t.Parallel()

	res, err := newCoreRegistry().Invoke(context.Background(), "core.log",
		map[string]any{"message": "hello", "level": "WARN"}, &Context{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"hello"}, res.Logs)

	out := res.Output.(map[string]any)
	assert.Equal(t, "warn", out["level"])
}

func TestCore_UnknownActionNotClaimed(t *testing.T) {
	t.Parallel()

	_, err := newCoreRegistry().Invoke(context.Background(), "core.reboot", nil, nil)
	require.Error(t, err)
	assert.Equal(t, errs.CodeUnknownAdapter, errs.CodeOf(err))
}
