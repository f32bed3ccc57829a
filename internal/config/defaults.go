package config

// NewDefaults returns a Config populated with all default values. These
// are the values a project gets with no orbyt.toml at all.
func NewDefaults() *Config {
	return &Config{
		Engine: EngineConfig{
			StepTimeout:    "5m",
			MaxConcurrency: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Run: RunConfig{
			Env:     map[string]string{},
			Context: map[string]string{},
		},
		Estimates: map[string]EstimateConfig{},
	}
}
