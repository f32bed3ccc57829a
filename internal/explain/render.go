package explain

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Renderer formats an Explanation for terminal output. When styled is
// true, lipgloss ANSI styling is applied; when false, plain text is
// emitted. Output is written to the embedded io.Writer via Render.
type Renderer struct {
	writer io.Writer
	styled bool
}

// NewRenderer creates a new Renderer writing to w.
func NewRenderer(w io.Writer, styled bool) *Renderer {
	return &Renderer{writer: w, styled: styled}
}

// Render writes the full report. Sections are always emitted in the same
// order: summary, cycles (when present), plan, steps, data flow,
// conditional paths, estimate.
func (r *Renderer) Render(ex *Explanation) {
	fmt.Fprint(r.writer, r.Format(ex))
}

// Format returns the formatted report as a string without writing it.
func (r *Renderer) Format(ex *Explanation) string {
	headerStyle := lipgloss.NewStyle()
	sectionStyle := lipgloss.NewStyle()
	stepStyle := lipgloss.NewStyle()
	warnStyle := lipgloss.NewStyle()
	faintStyle := lipgloss.NewStyle()

	if r.styled {
		headerStyle = headerStyle.Bold(true).Foreground(lipgloss.Color("12")) // bright blue
		sectionStyle = sectionStyle.Bold(true).Foreground(lipgloss.Color("14"))
		stepStyle = stepStyle.Bold(true)
		warnStyle = warnStyle.Foreground(lipgloss.Color("11")) // yellow
		faintStyle = faintStyle.Faint(true)
	}

	var sb strings.Builder

	// Header.
	header := fmt.Sprintf("Workflow: %s", ex.Summary.Name)
	sb.WriteString(headerStyle.Render(header))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", len(header)))
	sb.WriteString("\n")
	if ex.Summary.Description != "" {
		sb.WriteString(ex.Summary.Description)
		sb.WriteString("\n")
	}
	if ex.Summary.Version != "" {
		sb.WriteString(fmt.Sprintf("Version: %s\n", ex.Summary.Version))
	}
	sb.WriteString(fmt.Sprintf("Steps: %d\n", ex.Summary.StepCount))
	if len(ex.Summary.Adapters) > 0 {
		sb.WriteString(fmt.Sprintf("Actions: %s\n", strings.Join(ex.Summary.Adapters, ", ")))
	}
	sb.WriteString(fmt.Sprintf("Policies: failure=%s sandbox=%s", ex.Summary.Policies.Failure, ex.Summary.Policies.Sandbox))
	if ex.Summary.Policies.Concurrency > 0 {
		sb.WriteString(fmt.Sprintf(" concurrency=%d", ex.Summary.Policies.Concurrency))
	}
	sb.WriteString("\n\n")

	// Cycles preempt the plan: there is nothing executable to show.
	if len(ex.Cycles) > 0 {
		sb.WriteString(warnStyle.Render("Dependency cycles detected; this workflow cannot run:"))
		sb.WriteString("\n")
		for _, comp := range ex.Cycles {
			sb.WriteString(fmt.Sprintf("  %s (cycles back to %s)\n", strings.Join(comp, " -> "), comp[0]))
		}
		sb.WriteString("\n")
	}

	if len(ex.Phases) > 0 {
		sb.WriteString(sectionStyle.Render("Execution plan"))
		sb.WriteString("\n")
		for _, ph := range ex.Phases {
			label := fmt.Sprintf("  Phase %d: %s", ph.Index+1, strings.Join(ph.Steps, ", "))
			if ph.Parallelism > 1 {
				label += fmt.Sprintf(" (%d in parallel)", ph.Parallelism)
			}
			sb.WriteString(label)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	// Per-step breakdown.
	sb.WriteString(sectionStyle.Render("Steps"))
	sb.WriteString("\n")
	for i, d := range ex.Steps {
		marker := ""
		if d.OnCriticalPath {
			marker = " *"
		}
		sb.WriteString(fmt.Sprintf("  %d. %s%s\n", i+1, stepStyle.Render(fmt.Sprintf("%s (%s)", d.ID, d.Uses)), marker))
		if len(d.Needs) > 0 {
			sb.WriteString(fmt.Sprintf("     needs: %s\n", strings.Join(d.Needs, ", ")))
		}
		if d.When != "" {
			sb.WriteString(fmt.Sprintf("     when: %s\n", d.When))
		}
		if d.Timeout > 0 {
			sb.WriteString(fmt.Sprintf("     timeout: %s\n", d.Timeout))
		}
		if d.Retry.Max > 0 {
			sb.WriteString(fmt.Sprintf("     retry: up to %d retries, %s backoff\n", d.Retry.Max, d.Retry.Backoff))
		}
		if len(d.InputsUsed) > 0 {
			sb.WriteString(fmt.Sprintf("     inputs: %s\n", strings.Join(d.InputsUsed, ", ")))
		}
		if len(d.SecretsUsed) > 0 {
			sb.WriteString(warnStyle.Render(fmt.Sprintf("     secrets: %s", strings.Join(d.SecretsUsed, ", "))))
			sb.WriteString("\n")
		}
		if line := sourceLine(d.Sources); line != "" {
			sb.WriteString(faintStyle.Render(fmt.Sprintf("     reads from: %s", line)))
			sb.WriteString("\n")
		}
		for _, alias := range sortedConsumerKeys(d.Consumers) {
			targets := d.Consumers[alias]
			display := "(unused)"
			if len(targets) > 0 {
				display = strings.Join(targets, ", ")
			}
			sb.WriteString(faintStyle.Render(fmt.Sprintf("     output %s -> %s", alias, display)))
			sb.WriteString("\n")
		}
		if d.Bottleneck {
			sb.WriteString(warnStyle.Render("     bottleneck: dominates the critical path"))
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n")

	// Conditional paths.
	if len(ex.Paths) > 1 {
		sb.WriteString(sectionStyle.Render("Conditional paths"))
		sb.WriteString("\n")
		for _, p := range ex.Paths {
			sb.WriteString(fmt.Sprintf("  %s: runs %s", p.Name, joinOrNone(p.Executed)))
			if len(p.Skipped) > 0 {
				sb.WriteString(fmt.Sprintf("; skips %s", strings.Join(p.Skipped, ", ")))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	// Estimate.
	if len(ex.Estimate.CriticalPath) > 0 {
		sb.WriteString(sectionStyle.Render("Estimated duration"))
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("  %s to %s (typically %s)\n",
			fmtDuration(ex.Estimate.Min), fmtDuration(ex.Estimate.Max), fmtDuration(ex.Estimate.Avg)))
		sb.WriteString(fmt.Sprintf("  critical path: %s\n", strings.Join(ex.Estimate.CriticalPath, " -> ")))
		if len(ex.Estimate.Bottlenecks) > 0 {
			sb.WriteString(warnStyle.Render(fmt.Sprintf("  bottlenecks: %s", strings.Join(ex.Estimate.Bottlenecks, ", "))))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func sourceLine(sources []Source) string {
	if len(sources) == 0 {
		return ""
	}
	parts := make([]string, 0, len(sources))
	for _, s := range sources {
		if s.Kind == "step.output" {
			parts = append(parts, fmt.Sprintf("step %s", s.StepID))
			continue
		}
		parts = append(parts, s.Kind)
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

func sortedConsumerKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinOrNone(ids []string) string {
	if len(ids) == 0 {
		return "(nothing)"
	}
	return strings.Join(ids, ", ")
}

func fmtDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
