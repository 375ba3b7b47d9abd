package registry

import "testing"

func TestResolveModelFamilyPicksAvailableProvider(t *testing.T) {
	provider, modelID, found := ResolveModelFamily("claude-sonnet-4-5", []string{"antigravity"})
	if !found {
		t.Fatalf("ResolveModelFamily() found = false, want true")
	}
	if provider != "antigravity" || modelID != "gemini-claude-sonnet-4-5" {
		t.Errorf("ResolveModelFamily() = (%q, %q), want (antigravity, gemini-claude-sonnet-4-5)", provider, modelID)
	}
}

func TestResolveModelFamilyUnknownCanonical(t *testing.T) {
	_, modelID, found := ResolveModelFamily("not-a-real-model", []string{"antigravity", "qwen"})
	if found {
		t.Errorf("ResolveModelFamily() found = true, want false for unknown canonical id")
	}
	if modelID != "not-a-real-model" {
		t.Errorf("ResolveModelFamily() modelID = %q, want passthrough of the input", modelID)
	}
}

func TestResolveModelFamilyNoAvailableProvider(t *testing.T) {
	_, _, found := ResolveModelFamily("qwen3-max", []string{"antigravity"})
	if found {
		t.Errorf("ResolveModelFamily() found = true, want false when qwen is unavailable")
	}
}

func TestGetCanonicalModelIDReverseLookup(t *testing.T) {
	if got := GetCanonicalModelID("gemini-claude-opus-4-5"); got != "claude-opus-4-5" {
		t.Errorf("GetCanonicalModelID() = %q, want claude-opus-4-5", got)
	}
	if got := GetCanonicalModelID("unknown-model"); got != "" {
		t.Errorf("GetCanonicalModelID() = %q, want empty for unknown model", got)
	}
}

func TestIsCanonicalID(t *testing.T) {
	if !IsCanonicalID("gemini-2.5-pro") {
		t.Errorf("IsCanonicalID(gemini-2.5-pro) = false, want true")
	}
	if IsCanonicalID("gemini-claude-sonnet-4-5") {
		t.Errorf("IsCanonicalID(gemini-claude-sonnet-4-5) = true, want false (vendor-specific id, not canonical)")
	}
}

func TestHasThinkingVariant(t *testing.T) {
	if !HasThinkingVariant("claude-sonnet-4-5") {
		t.Errorf("HasThinkingVariant(claude-sonnet-4-5) = false, want true")
	}
	if HasThinkingVariant("qwen3-max") {
		t.Errorf("HasThinkingVariant(qwen3-max) = true, want false")
	}
}
