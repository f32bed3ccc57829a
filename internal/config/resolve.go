package config

// ConfigSource identifies where a configuration value came from.
type ConfigSource string

const (
	// SourceDefault indicates the value came from built-in defaults.
	SourceDefault ConfigSource = "default"
	// SourceFile indicates the value came from the orbyt.toml config file.
	SourceFile ConfigSource = "file"
	// SourceEnv indicates the value came from an environment variable.
	SourceEnv ConfigSource = "env"
	// SourceCLI indicates the value came from a CLI flag.
	SourceCLI ConfigSource = "cli"
)

// ResolvedConfig holds the fully-resolved configuration with source
// tracking. The Config field contains the merged values; Sources tracks
// where each came from.
type ResolvedConfig struct {
	Config  *Config
	Sources map[string]ConfigSource // key is dotted path, e.g., "engine.step_timeout"
	Path    string                  // path to the config file used (empty if none)
}

// CLIOverrides captures flag values that can override configuration.
// Nil values mean "not set" (do not override). A *string that is nil
// means "not overridden"; a *string pointing to "" means "override to
// empty string."
type CLIOverrides struct {
	StepTimeout     *string
	WorkflowTimeout *string
	MaxConcurrency  *int
	LogLevel        *string
	LogFormat       *string
	Verbose         *bool
	Quiet           *bool
}

// EnvFunc is a function that looks up environment variables.
// Default implementation is os.LookupEnv. Injected for testability.
type EnvFunc func(key string) (string, bool)

// Resolve merges configuration from all sources in priority order:
// CLI flags > environment variables > config file > defaults.
//
// Parameters:
//   - defaults: built-in default config (from NewDefaults())
//   - fileConfig: parsed config from orbyt.toml (nil if no file found)
//   - envFn: function to look up environment variables
//   - overrides: CLI flag values (nil fields mean "not set")
//
// Returns the fully-resolved config with source annotations.
func Resolve(defaults *Config, fileConfig *Config, envFn EnvFunc, overrides *CLIOverrides) *ResolvedConfig {
	rc := &ResolvedConfig{
		Config:  &Config{},
		Sources: make(map[string]ConfigSource),
	}

	if defaults == nil {
		defaults = &Config{}
	}
	if envFn == nil {
		envFn = func(string) (string, bool) { return "", false }
	}
	if overrides == nil {
		overrides = &CLIOverrides{}
	}

	// Layer 1: start with defaults as the base.
	resolveFromDefaults(rc, defaults)

	// Layer 2: merge file config on top (non-zero values override; maps
	// merge keys).
	if fileConfig != nil {
		resolveFromFile(rc, fileConfig)
	}

	// Layer 3: merge environment variables on top.
	resolveFromEnv(rc, envFn)

	// Layer 4: merge CLI overrides on top.
	resolveFromCLI(rc, overrides)

	return rc
}

// --- Layer 1: Defaults ---

func resolveFromDefaults(rc *ResolvedConfig, defaults *Config) {
	c := rc.Config

	setString(&c.Engine.StepTimeout, defaults.Engine.StepTimeout, "engine.step_timeout", SourceDefault, rc.Sources)
	setString(&c.Engine.WorkflowTimeout, defaults.Engine.WorkflowTimeout, "engine.workflow_timeout", SourceDefault, rc.Sources)
	c.Engine.MaxConcurrency = defaults.Engine.MaxConcurrency
	rc.Sources["engine.max_concurrency"] = SourceDefault

	setString(&c.Logging.Level, defaults.Logging.Level, "logging.level", SourceDefault, rc.Sources)
	setString(&c.Logging.Format, defaults.Logging.Format, "logging.format", SourceDefault, rc.Sources)

	c.Run.Env = copyStringMap(defaults.Run.Env)
	c.Run.Context = copyStringMap(defaults.Run.Context)
	rc.Sources["run.env"] = SourceDefault
	rc.Sources["run.context"] = SourceDefault

	c.Estimates = make(map[string]EstimateConfig, len(defaults.Estimates))
	for name, est := range defaults.Estimates {
		c.Estimates[name] = est
		rc.Sources["estimates."+name] = SourceDefault
	}
}

// --- Layer 2: File ---

func resolveFromFile(rc *ResolvedConfig, file *Config) {
	c := rc.Config

	mergeString(&c.Engine.StepTimeout, file.Engine.StepTimeout, "engine.step_timeout", SourceFile, rc.Sources)
	mergeString(&c.Engine.WorkflowTimeout, file.Engine.WorkflowTimeout, "engine.workflow_timeout", SourceFile, rc.Sources)
	if file.Engine.MaxConcurrency != 0 {
		c.Engine.MaxConcurrency = file.Engine.MaxConcurrency
		rc.Sources["engine.max_concurrency"] = SourceFile
	}

	mergeString(&c.Logging.Level, file.Logging.Level, "logging.level", SourceFile, rc.Sources)
	mergeString(&c.Logging.Format, file.Logging.Format, "logging.format", SourceFile, rc.Sources)

	if len(file.Run.Env) > 0 {
		if c.Run.Env == nil {
			c.Run.Env = map[string]string{}
		}
		for k, v := range file.Run.Env {
			c.Run.Env[k] = v
		}
		rc.Sources["run.env"] = SourceFile
	}
	if len(file.Run.Context) > 0 {
		if c.Run.Context == nil {
			c.Run.Context = map[string]string{}
		}
		for k, v := range file.Run.Context {
			c.Run.Context[k] = v
		}
		rc.Sources["run.context"] = SourceFile
	}

	if len(file.Estimates) > 0 {
		if c.Estimates == nil {
			c.Estimates = map[string]EstimateConfig{}
		}
		for name, est := range file.Estimates {
			c.Estimates[name] = est
			rc.Sources["estimates."+name] = SourceFile
		}
	}
}

// --- Layer 3: Environment ---

// Environment variable mapping:
//
//	ORBYT_STEP_TIMEOUT     -> engine.step_timeout
//	ORBYT_WORKFLOW_TIMEOUT -> engine.workflow_timeout
//	ORBYT_LOG_LEVEL        -> logging.level
//	ORBYT_LOG_FORMAT       -> logging.format
func resolveFromEnv(rc *ResolvedConfig, envFn EnvFunc) {
	c := rc.Config

	if val, ok := envFn("ORBYT_STEP_TIMEOUT"); ok {
		c.Engine.StepTimeout = val
		rc.Sources["engine.step_timeout"] = SourceEnv
	}
	if val, ok := envFn("ORBYT_WORKFLOW_TIMEOUT"); ok {
		c.Engine.WorkflowTimeout = val
		rc.Sources["engine.workflow_timeout"] = SourceEnv
	}
	if val, ok := envFn("ORBYT_LOG_LEVEL"); ok {
		c.Logging.Level = val
		rc.Sources["logging.level"] = SourceEnv
	}
	if val, ok := envFn("ORBYT_LOG_FORMAT"); ok {
		c.Logging.Format = val
		rc.Sources["logging.format"] = SourceEnv
	}
}

// --- Layer 4: CLI overrides ---

func resolveFromCLI(rc *ResolvedConfig, overrides *CLIOverrides) {
	c := rc.Config

	if overrides.StepTimeout != nil {
		c.Engine.StepTimeout = *overrides.StepTimeout
		rc.Sources["engine.step_timeout"] = SourceCLI
	}
	if overrides.WorkflowTimeout != nil {
		c.Engine.WorkflowTimeout = *overrides.WorkflowTimeout
		rc.Sources["engine.workflow_timeout"] = SourceCLI
	}
	if overrides.MaxConcurrency != nil {
		c.Engine.MaxConcurrency = *overrides.MaxConcurrency
		rc.Sources["engine.max_concurrency"] = SourceCLI
	}
	if overrides.LogLevel != nil {
		c.Logging.Level = *overrides.LogLevel
		rc.Sources["logging.level"] = SourceCLI
	}
	if overrides.LogFormat != nil {
		c.Logging.Format = *overrides.LogFormat
		rc.Sources["logging.format"] = SourceCLI
	}

	// Verbose/quiet shorthands map onto logging.level; quiet wins so
	// scripted runs stay silent regardless of other flags.
	if overrides.Verbose != nil && *overrides.Verbose {
		c.Logging.Level = "debug"
		rc.Sources["logging.level"] = SourceCLI
	}
	if overrides.Quiet != nil && *overrides.Quiet {
		c.Logging.Level = "error"
		rc.Sources["logging.level"] = SourceCLI
	}
}

// --- Helpers ---

// setString unconditionally sets the target to the given value and records the source.
func setString(target *string, value string, path string, source ConfigSource, sources map[string]ConfigSource) {
	*target = value
	sources[path] = source
}

// mergeString overwrites the target only if value is non-empty. For
// file-layer merging, an empty string in the file means "not set in
// file", so it does not override the default.
func mergeString(target *string, value string, path string, source ConfigSource, sources map[string]ConfigSource) {
	if value != "" {
		*target = value
		sources[path] = source
	}
}

func copyStringMap(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
