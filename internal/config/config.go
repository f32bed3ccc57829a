package config

import (
	"time"

	"github.com/orbyt-dev/orbyt/internal/explain"
)

// Config is the top-level configuration structure mapping to orbyt.toml.
type Config struct {
	Engine    EngineConfig              `toml:"engine"`
	Logging   LoggingConfig             `toml:"logging"`
	Run       RunConfig                 `toml:"run"`
	Estimates map[string]EstimateConfig `toml:"estimates"`
}

// EngineConfig maps to the [engine] section in orbyt.toml.
type EngineConfig struct {
	// StepTimeout is the default per-step timeout applied when neither the
	// step nor the workflow defaults declare one. Go duration syntax.
	StepTimeout string `toml:"step_timeout"`

	// WorkflowTimeout bounds a whole run. Empty means unbounded.
	WorkflowTimeout string `toml:"workflow_timeout"`

	// MaxConcurrency caps parallel steps within a phase. Zero means the
	// phase width decides.
	MaxConcurrency int `toml:"max_concurrency"`
}

// LoggingConfig maps to the [logging] section in orbyt.toml.
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text, json
}

// RunConfig maps to the [run] section in orbyt.toml. Values here seed
// every run started from this project directory.
type RunConfig struct {
	// Env is merged under the workflow's env namespace, below per-run
	// values supplied on the command line.
	Env map[string]string `toml:"env"`

	// Context is merged into the workflow context the same way.
	Context map[string]string `toml:"context"`
}

// EstimateConfig maps to an [estimates.<prefix>] section. Durations feed
// the dry-run time prediction for actions whose name starts with the
// section key; the "default" section is the fallback.
type EstimateConfig struct {
	Min string `toml:"min"`
	Avg string `toml:"avg"`
	Max string `toml:"max"`
}

// estimateFallbackKey is the [estimates.*] section used when no prefix
// matches. TOML keys cannot be empty, so "default" stands in.
const estimateFallbackKey = "default"

// Bands converts the configured estimate sections into the form the
// dry-run analyzer consumes. Sections with unparseable durations are
// skipped; Validate reports them separately. When nothing is configured
// the analyzer's built-in bands are returned.
func (c *Config) Bands() explain.Bands {
	if len(c.Estimates) == 0 {
		return explain.DefaultBands
	}

	bands := explain.Bands{}
	for prefix, est := range c.Estimates {
		min, errMin := time.ParseDuration(est.Min)
		avg, errAvg := time.ParseDuration(est.Avg)
		max, errMax := time.ParseDuration(est.Max)
		if errMin != nil || errAvg != nil || errMax != nil {
			continue
		}
		key := prefix
		if prefix == estimateFallbackKey {
			key = ""
		}
		bands[key] = explain.Band{Min: min, Avg: avg, Max: max}
	}
	if _, ok := bands[""]; !ok {
		bands[""] = explain.DefaultBands[""]
	}
	return bands
}

// StepTimeout returns the parsed engine default step timeout, or zero
// when unset or unparseable.
func (c *Config) StepTimeout() time.Duration {
	d, err := time.ParseDuration(c.Engine.StepTimeout)
	if err != nil {
		return 0
	}
	return d
}

// WorkflowTimeout returns the parsed workflow timeout, or zero when unset
// or unparseable.
func (c *Config) WorkflowTimeout() time.Duration {
	d, err := time.ParseDuration(c.Engine.WorkflowTimeout)
	if err != nil {
		return 0
	}
	return d
}
