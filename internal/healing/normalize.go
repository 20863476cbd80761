// Package healing groups repeated agent failures into error patterns and
// decides how the workflow engine should recover from them.
//
// Recovery escalates strictly by the number of times the same normalized
// error has been seen from the same agent: retry, retry with context,
// debugger, alternative agent, and finally a request for a human decision.
// Significant patterns are promoted into a KnowledgeBase that survives runs.
package healing

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Well-known error categories.
const (
	CategoryRateLimit   = "rate_limit"
	CategoryTimeout     = "timeout"
	CategoryToolFailure = "tool_execution_failure"
)

// fallbackLength bounds the raw-text fallback category.
const fallbackLength = 80

var (
	missingParamRegex = regexp.MustCompile(`missing (?:\d+ )?required (?:positional |keyword )?(?:argument|parameter|field)s?\s*:?\s*['"]?([a-z_][a-z0-9_]*)`)
	quotedPathRegex   = regexp.MustCompile(`(['"])[^'"]*[/\\][^'"]*(['"])`)
	hexIDRegex        = regexp.MustCompile(`\b[0-9a-f]{8,}\b`)
	numberRegex       = regexp.MustCompile(`\b\d+\b`)
	spaceRegex        = regexp.MustCompile(`\s+`)
	nonWordRegex      = regexp.MustCompile(`[^a-z0-9<> ]+`)
)

// Normalize maps an error message onto a canonical category so that
// superficially different wording of the same root cause is grouped.
func Normalize(message string) string {
	lower := strings.ToLower(strings.TrimSpace(message))

	if m := missingParamRegex.FindStringSubmatch(lower); m != nil {
		return "missing_" + m[1] + "_parameter"
	}

	switch {
	case containsAny(lower, "rate limit", "rate_limit", "ratelimit", "too many requests", "429"):
		return CategoryRateLimit
	case containsAny(lower, "timeout", "timed out", "deadline exceeded"):
		return CategoryTimeout
	case containsAny(lower, "tool execution failed", "tool_execution", "error executing tool", "tool call failed", "tool error"):
		return CategoryToolFailure
	}

	return fallback(lower)
}

// Canonical strips volatile details (quoted paths, ids, numbers) from a message.
func Canonical(message string) string {
	s := strings.ToLower(message)
	s = quotedPathRegex.ReplaceAllString(s, "<path>")
	s = hexIDRegex.ReplaceAllString(s, "<id>")
	s = numberRegex.ReplaceAllString(s, "<n>")
	s = nonWordRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(spaceRegex.ReplaceAllString(s, " "))
}

func fallback(lower string) string {
	s := Canonical(lower)
	if len(s) > fallbackLength {
		s = s[:fallbackLength]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown_error"
	}
	return s
}

// IsMissingParameter reports whether category came from a missing-parameter error.
func IsMissingParameter(category string) bool {
	return strings.HasPrefix(category, "missing_") && strings.HasSuffix(category, "_parameter")
}

// PatternKey derives the ErrorPattern key for an agent and normalized category.
func PatternKey(agent, category string) string {
	sum := sha256.Sum256([]byte(agent + "\x00" + category))
	return hex.EncodeToString(sum[:8])
}

// Similarity returns the Jaccard overlap of the word sets of two normalized strings.
func Similarity(a, b string) float64 {
	a, b = Canonical(a), Canonical(b)
	if a == b {
		return 1.0
	}
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0.0
	}
	inter := 0
	for w := range wa {
		if wb[w] {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == '_' }) {
		set[w] = true
	}
	return set
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
