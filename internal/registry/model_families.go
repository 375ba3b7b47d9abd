// Package registry maps canonical model names onto the vendor-specific
// model id each backend expects, for the two backends this gateway fronts.
package registry

// FamilyMember is one vendor-specific variant within a model family.
type FamilyMember struct {
	Provider string // "antigravity" or "qwen"
	ModelID  string
}

// ModelFamilies maps a canonical model name to its vendor-specific
// variants, in preference order.
var ModelFamilies = map[string][]FamilyMember{
	"claude-sonnet-4-5": {
		{Provider: "antigravity", ModelID: "gemini-claude-sonnet-4-5"},
	},
	"claude-sonnet-4-5-thinking": {
		{Provider: "antigravity", ModelID: "gemini-claude-sonnet-4-5-thinking"},
	},
	"claude-opus-4-5": {
		{Provider: "antigravity", ModelID: "gemini-claude-opus-4-5"},
	},
	"claude-opus-4-5-thinking": {
		{Provider: "antigravity", ModelID: "gemini-claude-opus-4-5-thinking"},
	},
	"gemini-2.5-pro": {
		{Provider: "antigravity", ModelID: "gemini-2.5-pro"},
	},
	"gemini-2.5-flash": {
		{Provider: "antigravity", ModelID: "gemini-2.5-flash"},
	},
	"gemini-3-pro-preview": {
		{Provider: "antigravity", ModelID: "gemini-3-pro-preview"},
	},
	"qwen3-coder-plus": {
		{Provider: "qwen", ModelID: "qwen3-coder-plus"},
	},
	"qwen3-max": {
		{Provider: "qwen", ModelID: "qwen3-max"},
	},
}

// ResolveModelFamily maps a canonical model name to the first available
// provider's model id among availableProviders.
func ResolveModelFamily(canonicalID string, availableProviders []string) (provider string, modelID string, found bool) {
	family, ok := ModelFamilies[canonicalID]
	if !ok {
		return "", canonicalID, false
	}

	availableSet := make(map[string]bool, len(availableProviders))
	for _, p := range availableProviders {
		availableSet[p] = true
	}

	for _, member := range family {
		if availableSet[member.Provider] {
			return member.Provider, member.ModelID, true
		}
	}
	return "", canonicalID, false
}

// GetCanonicalModelID reverse-looks-up the canonical family name owning a
// vendor-specific model id. Returns "" if none.
func GetCanonicalModelID(providerModelID string) string {
	for canonical, members := range ModelFamilies {
		for _, member := range members {
			if member.ModelID == providerModelID {
				return canonical
			}
		}
	}
	return ""
}

// IsCanonicalID reports whether modelID names a family rather than a
// vendor-specific variant.
func IsCanonicalID(modelID string) bool {
	_, ok := ModelFamilies[modelID]
	return ok
}

// HasThinkingVariant reports whether a "-thinking" sibling of model exists
// in any family (used by the Antigravity translator's thinking detection).
func HasThinkingVariant(model string) bool {
	_, ok := ModelFamilies[model+"-thinking"]
	return ok
}
