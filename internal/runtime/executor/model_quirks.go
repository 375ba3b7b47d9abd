// Package executor centralizes model-name quirk detection shared by the
// request translators: provider-prefix stripping, tier-suffix thinking
// budgets, and Claude/Gemini family checks.
package executor

import "strings"

// thinkingBudgets maps the tier suffix (spec.md §4.5.1) to a token budget.
var thinkingBudgets = map[string]int{
	"-low":    8192,
	"-medium": 16384,
	"-high":   32768,
}

// StripProviderPrefix splits a "<provider>:<id>" model id into its parts.
// If the model carries no prefix, provider is empty and id is the input
// unchanged.
func StripProviderPrefix(modelID string) (provider, id string) {
	if idx := strings.Index(modelID, ":"); idx >= 0 {
		return modelID[:idx], modelID[idx+1:]
	}
	return "", modelID
}

// ResolveTierSuffix strips a trailing "-low|-medium|-high" suffix and
// returns the base model id plus the thinking budget it implies. ok is
// false if no recognized suffix is present.
func ResolveTierSuffix(modelID string) (base string, budget int, ok bool) {
	for suffix, b := range thinkingBudgets {
		if strings.HasSuffix(modelID, suffix) {
			return strings.TrimSuffix(modelID, suffix), b, true
		}
	}
	return modelID, 0, false
}

// IsClaudeModel returns true if the model name indicates a Claude model.
func IsClaudeModel(model string) bool {
	return strings.Contains(strings.ToLower(model), "claude")
}

// IsGeminiModel returns true if the model name indicates a Gemini model.
func IsGeminiModel(model string) bool {
	return strings.Contains(strings.ToLower(model), "gemini")
}

// HasThinkingSuffix returns true if model name ends with "-thinking".
func HasThinkingSuffix(model string) bool {
	return strings.HasSuffix(model, "-thinking")
}

// IsThinkingEnabled reports whether a model should run with thinking
// turned on: either it already carries the "-thinking" suffix, or a tier
// suffix (-low/-medium/-high) was resolved off of it.
func IsThinkingEnabled(model string, tierResolved bool) bool {
	return tierResolved || HasThinkingSuffix(model)
}
