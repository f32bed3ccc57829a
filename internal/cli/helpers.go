package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/orbyt-dev/orbyt/internal/action"
	"github.com/orbyt-dev/orbyt/internal/config"
	"github.com/orbyt-dev/orbyt/internal/engine"
	"github.com/orbyt-dev/orbyt/internal/logging"
	"github.com/orbyt-dev/orbyt/internal/workflow"
)

// newPlanner assembles the engine from the resolved configuration: the
// builtin action registry, an executor honoring the configured timeouts
// and concurrency cap, and an optional event bus for live observers.
func newPlanner(cfg *config.Config, bus *engine.Bus) *engine.Planner {
	registry := action.NewRegistry()
	action.RegisterBuiltins(registry)

	opts := []engine.ExecutorOption{
		engine.WithLogger(logging.New("engine")),
	}
	if bus != nil {
		opts = append(opts, engine.WithBus(bus))
	}
	if d := cfg.StepTimeout(); d > 0 {
		opts = append(opts, engine.WithDefaultStepTimeout(d))
	}
	if cfg.Engine.MaxConcurrency > 0 {
		opts = append(opts, engine.WithMaxConcurrency(cfg.Engine.MaxConcurrency))
	}

	return engine.NewPlanner(engine.NewExecutor(registry, opts...))
}

// loadWorkflowDoc reads and parses a workflow YAML file into the untrusted
// document form the planner validates.
func loadWorkflowDoc(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow file: %w", err)
	}
	doc, err := workflow.Parse(data)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// parseKeyValues turns repeated KEY=VALUE flag occurrences into a map.
// The value may contain '='; only the first one splits.
func parseKeyValues(pairs []string, flagName string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --%s value %q: expected KEY=VALUE", flagName, pair)
		}
		out[key] = value
	}
	return out, nil
}

// toAnyMap widens a string map for namespaces that carry arbitrary values.
func toAnyMap(m map[string]string) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// mergeStringMaps layers override on top of base without mutating either.
func mergeStringMaps(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
