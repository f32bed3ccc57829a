package errs

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// suggestThreshold is the minimum similarity ratio (1 - distance/maxLen)
// a candidate must reach to be offered as a typo suggestion.
const suggestThreshold = 0.6

// Suggest returns the candidate nearest to name by Levenshtein distance,
// provided its similarity ratio is at least 0.6. Comparison is
// case-insensitive; the returned suggestion keeps the candidate's original
// spelling. The second return value is false when no candidate qualifies.
func Suggest(name string, candidates []string) (string, bool) {
	if name == "" || len(candidates) == 0 {
		return "", false
	}

	lower := strings.ToLower(name)
	best := ""
	bestRatio := 0.0

	for _, cand := range candidates {
		if cand == "" {
			continue
		}
		dist := levenshtein.ComputeDistance(lower, strings.ToLower(cand))
		maxLen := len(lower)
		if len(cand) > maxLen {
			maxLen = len(cand)
		}
		ratio := 1.0 - float64(dist)/float64(maxLen)
		if ratio > bestRatio {
			bestRatio = ratio
			best = cand
		}
	}

	if bestRatio >= suggestThreshold {
		return best, true
	}
	return "", false
}
