package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ValidationSeverity indicates whether a validation issue is an error or warning.
type ValidationSeverity string

const (
	// SeverityError indicates a fatal validation issue; the configuration is unusable.
	SeverityError ValidationSeverity = "error"
	// SeverityWarning indicates an informational validation issue; the configuration works
	// but may have problems.
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue represents a single validation finding.
type ValidationIssue struct {
	Severity ValidationSeverity
	Field    string // dotted path, e.g., "engine.step_timeout"
	Message  string
}

// ValidationResult holds all validation findings.
type ValidationResult struct {
	Issues []ValidationIssue
}

// HasErrors returns true if any issue has error severity.
func (vr *ValidationResult) HasErrors() bool {
	for _, issue := range vr.Issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// HasWarnings returns true if any issue has warning severity.
func (vr *ValidationResult) HasWarnings() bool {
	for _, issue := range vr.Issues {
		if issue.Severity == SeverityWarning {
			return true
		}
	}
	return false
}

// Errors returns only error-severity issues.
func (vr *ValidationResult) Errors() []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range vr.Issues {
		if issue.Severity == SeverityError {
			out = append(out, issue)
		}
	}
	return out
}

// Warnings returns only warning-severity issues.
func (vr *ValidationResult) Warnings() []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range vr.Issues {
		if issue.Severity == SeverityWarning {
			out = append(out, issue)
		}
	}
	return out
}

// validLogLevels is the set of valid values for logging.level.
var validLogLevels = map[string]bool{
	"":      true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLogFormats is the set of valid values for logging.format.
var validLogFormats = map[string]bool{
	"":     true,
	"text": true,
	"json": true,
}

// Validate checks the configuration for correctness and completeness.
// It performs structural validation, semantic validation, and unknown key
// detection.
//
// Parameters:
//   - cfg: the configuration to validate
//   - meta: TOML metadata from BurntSushi/toml (may be nil if no file was loaded)
//
// Returns validation results. Check HasErrors() to determine if the config is usable.
func Validate(cfg *Config, meta *toml.MetaData) *ValidationResult {
	vr := &ValidationResult{}

	if cfg == nil {
		addError(vr, "", "configuration is nil")
		return vr
	}

	validateEngine(vr, &cfg.Engine)
	validateLogging(vr, &cfg.Logging)
	validateEstimates(vr, cfg.Estimates)
	validateUnknownKeys(vr, meta)

	return vr
}

// validateEngine checks the [engine] section for errors.
func validateEngine(vr *ValidationResult, e *EngineConfig) {
	if e.StepTimeout != "" {
		if _, err := time.ParseDuration(e.StepTimeout); err != nil {
			addError(vr, "engine.step_timeout",
				fmt.Sprintf("invalid duration %q: %v", e.StepTimeout, err))
		}
	}
	if e.WorkflowTimeout != "" {
		if _, err := time.ParseDuration(e.WorkflowTimeout); err != nil {
			addError(vr, "engine.workflow_timeout",
				fmt.Sprintf("invalid duration %q: %v", e.WorkflowTimeout, err))
		}
	}
	if e.MaxConcurrency < 0 {
		addError(vr, "engine.max_concurrency", "must not be negative")
	}
}

// validateLogging checks the [logging] section.
func validateLogging(vr *ValidationResult, l *LoggingConfig) {
	if !validLogLevels[l.Level] {
		addError(vr, "logging.level",
			fmt.Sprintf("unrecognized level %q; must be one of: debug, info, warn, error", l.Level))
	}
	if !validLogFormats[l.Format] {
		addError(vr, "logging.format",
			fmt.Sprintf("unrecognized format %q; must be one of: text, json", l.Format))
	}
}

// validateEstimates checks all [estimates.*] sections.
func validateEstimates(vr *ValidationResult, estimates map[string]EstimateConfig) {
	for name, est := range estimates {
		prefix := "estimates." + name

		min, bad := parseEstimate(vr, prefix+".min", est.Min)
		if bad {
			continue
		}
		avg, bad := parseEstimate(vr, prefix+".avg", est.Avg)
		if bad {
			continue
		}
		max, bad := parseEstimate(vr, prefix+".max", est.Max)
		if bad {
			continue
		}

		if min > avg || avg > max {
			addError(vr, prefix, "durations must satisfy min <= avg <= max")
		}
	}
}

// parseEstimate parses one estimate duration, recording an error on
// failure. The bool result reports whether an error was recorded.
func parseEstimate(vr *ValidationResult, field, value string) (time.Duration, bool) {
	if value == "" {
		addError(vr, field, "must not be empty")
		return 0, true
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		addError(vr, field, fmt.Sprintf("invalid duration %q: %v", value, err))
		return 0, true
	}
	return d, false
}

// validateUnknownKeys checks for TOML keys that did not map to any config struct field.
func validateUnknownKeys(vr *ValidationResult, meta *toml.MetaData) {
	if meta == nil {
		return
	}

	for _, key := range meta.Undecoded() {
		path := strings.Join(key, ".")
		addWarning(vr, path, "unknown configuration key")
	}
}

// addError appends an error-severity issue to the validation result.
func addError(vr *ValidationResult, field, message string) {
	vr.Issues = append(vr.Issues, ValidationIssue{
		Severity: SeverityError,
		Field:    field,
		Message:  message,
	})
}

// addWarning appends a warning-severity issue to the validation result.
func addWarning(vr *ValidationResult, field, message string) {
	vr.Issues = append(vr.Issues, ValidationIssue{
		Severity: SeverityWarning,
		Field:    field,
		Message:  message,
	})
}
