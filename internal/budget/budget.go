// Package budget sizes model prompts against the model's context window.
package budget

import (
	"math"
	"strings"
	"unicode/utf8"
)

// CharsPerToken is the heuristic used for English prose.
const CharsPerToken = 4

// EstimateTokensFromChars converts a character count into a token estimate,
// rounded up. Zero or negative counts give zero.
func EstimateTokensFromChars(charCount int) int {
	if charCount <= 0 {
		return 0
	}
	return int(math.Ceil(float64(charCount) / CharsPerToken))
}

// EstimateTokens estimates the token count of s.
func EstimateTokens(s string) int {
	return EstimateTokensFromChars(utf8.RuneCountInString(s))
}

// EstimatePromptTokens sums the estimates for a system message, a user
// message and any attached documents.
func EstimatePromptTokens(system string, user string, documents []string) int {
	total := EstimateTokens(system) + EstimateTokens(user)
	for _, d := range documents {
		total += EstimateTokens(d)
	}
	return total
}

// ModelContextTokens returns the context window for modelName. Unknown
// models get a conservative 8192.
func ModelContextTokens(modelName string) int {
	name := strings.ToLower(strings.TrimSpace(modelName))
	if name == "" {
		return 8192
	}
	if v, ok := knownModelMax[name]; ok {
		return v
	}
	for _, s := range sizeSuffixes {
		if strings.HasSuffix(name, s.suffix) {
			return s.tokens
		}
	}
	if strings.Contains(name, "-mini") {
		return 128_000
	}
	return 8192
}

// RemainingContext is the input budget left after reserving output tokens
// and the prompt. Never negative.
func RemainingContext(modelName string, reservedForOutput int, promptTokens int) int {
	if reservedForOutput < 0 {
		reservedForOutput = 0
	}
	remaining := ModelContextTokens(modelName) - reservedForOutput - promptTokens
	if remaining < 0 {
		return 0
	}
	return remaining
}

// HeadroomTokens is subtracted from the window to absorb tokenizer and
// message framing error: 5% of the window, at least 512 tokens.
func HeadroomTokens(modelName string) int {
	dyn := int(math.Ceil(float64(ModelContextTokens(modelName)) * 0.05))
	if dyn < 512 {
		return 512
	}
	return dyn
}

// RemainingContextWithHeadroom is RemainingContext minus HeadroomTokens.
func RemainingContextWithHeadroom(modelName string, reservedForOutput int, promptTokens int) int {
	return RemainingContext(modelName, reservedForOutput+HeadroomTokens(modelName), promptTokens)
}

// TruncateToFit cuts content so that it fits in the window of modelName
// next to a prompt of overheadTokens and reservedForOutput answer tokens.
// The cut prefers a paragraph or sentence boundary near the limit. The
// second result reports whether anything was removed.
func TruncateToFit(content string, modelName string, reservedForOutput int, overheadTokens int) (string, bool) {
	limit := RemainingContextWithHeadroom(modelName, reservedForOutput, overheadTokens) * CharsPerToken
	return TruncateRunes(content, limit)
}

// TruncateRunes cuts s to at most limit runes, backing up to a paragraph
// or sentence end found in the last fifth of the kept text.
func TruncateRunes(s string, limit int) (string, bool) {
	if limit <= 0 {
		return "", s != ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	runes := []rune(s)
	kept := string(runes[:limit])
	floor := len(kept) * 4 / 5
	if i := strings.LastIndex(kept, "\n\n"); i >= floor {
		return strings.TrimRight(kept[:i], " \t\n"), true
	}
	if i := lastSentenceEnd(kept); i >= floor {
		return kept[:i+1], true
	}
	return kept, true
}

func lastSentenceEnd(s string) int {
	best := -1
	for _, sep := range []string{". ", "! ", "? ", ".\n"} {
		if i := strings.LastIndex(s, sep); i > best {
			best = i
		}
	}
	return best
}

// SplitBudget divides total tokens across n documents, giving each at least
// minEach when possible.
func SplitBudget(total int, n int, minEach int) int {
	if n <= 0 || total <= 0 {
		return 0
	}
	each := total / n
	if each < minEach && total >= minEach {
		return minEach
	}
	return each
}

type sizeSuffix struct {
	suffix string
	tokens int
}

var sizeSuffixes = []sizeSuffix{
	{"1m", 1_000_000},
	{"512k", 512_000},
	{"200k", 200_000},
	{"128k", 128_000},
	{"32k", 32_768},
}

// knownModelMax holds rough context sizes for common model identifiers.
var knownModelMax = map[string]int{
	"gpt-4o":             128_000,
	"gpt-4o-mini":        128_000,
	"gpt-4.1":            1_000_000,
	"gpt-4.1-mini":       1_000_000,
	"gpt-4-turbo":        128_000,
	"gpt-4":              8_192,
	"gpt-3.5-turbo":      16_384,
	"llama-3":            8_192,
	"llama-3.1":          128_000,
	"openai/gpt-oss-20b": 4_096,
	"gpt-oss-20b":        4_096,
}
