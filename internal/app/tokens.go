package app

import (
	"strings"
	"unicode/utf8"
)

// DefaultCompressRatio is the fraction of the token threshold at which
// compression is scheduled for the next outbound request.
const DefaultCompressRatio = 0.80

// EstimateTokens returns a conservative estimate of token count for a piece of text.
//
// We intentionally over-estimate a bit so compression triggers early rather than late.
// This is not a tokenizer; it is only used for budget thresholds. The estimate is
// monotonic: longer text never yields a smaller count.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	// Most BPE tokenizers end up around ~3-4 chars/token for English-ish text.
	// bytes/3 is a decent conservative bound; also bound by runes/2 to avoid
	// undercounting for mostly-multibyte text.
	b := len(text)
	r := utf8.RuneCountInString(text)
	byBytes := b / 3
	byRunes := r / 2
	if byBytes < byRunes {
		return byRunes
	}
	return byBytes
}

// EstimateContext estimates the size of the active context: compressed segments,
// verbatim history, and the variable prompt material (plan, notes).
func EstimateContext(history []Message, segments []CompressionSegment, extra ...string) int {
	total := 0
	for _, seg := range segments {
		total += EstimateTokens(seg.Summary)
	}
	for _, m := range history {
		total += EstimateTokens(m.Content) + EstimateTokens(m.Role)
	}
	for _, s := range extra {
		total += EstimateTokens(s)
	}
	return total
}

// OverBudget reports whether the estimate has crossed the compression trigger
// point. The check is advisory: crossing it schedules compression before the
// next outbound request, never mid-flight.
func OverBudget(tokenCount, tokenThreshold int, ratio float64) bool {
	if tokenThreshold <= 0 {
		return false
	}
	if ratio <= 0 || ratio > 1 {
		ratio = DefaultCompressRatio
	}
	return float64(tokenCount) >= ratio*float64(tokenThreshold)
}

// LookupContextWindowTokens returns the known context window size (in tokens)
// for a model. Callers should still allow an explicit override via config
// because providers change limits.
func LookupContextWindowTokens(model string) (int, bool) {
	m := strings.ToLower(strings.TrimSpace(model))
	if m == "" {
		return 0, false
	}
	switch {
	case strings.HasPrefix(m, "gpt-4o"), strings.HasPrefix(m, "gpt-4-turbo"):
		return 128_000, true
	case strings.HasPrefix(m, "gpt-4.1"):
		return 1_000_000, true
	case strings.Contains(m, "claude"):
		return 200_000, true
	case strings.HasPrefix(m, "deepseek"):
		return 64_000, true
	case strings.HasPrefix(m, "glm-4"), strings.HasPrefix(m, "glm-5"):
		return 200_000, true
	}
	return 0, false
}

// DefaultContextWindowTokens is used when neither the config model table nor
// the registry knows the model.
const DefaultContextWindowTokens = 128_000
