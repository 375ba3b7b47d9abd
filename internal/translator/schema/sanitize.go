// Package schema sanitizes tool-parameter JSON Schemas before they're sent
// to either vendor backend (spec.md §4.5.3): unsupported constraint
// keywords are folded into the description, unsupported structural
// keywords are dropped outright, and parameter-less object schemas get a
// placeholder property.
package schema

import (
	"fmt"

	"github.com/llmbridge/vendorcore/internal/translator/ir"
)

// constraintKeywords are folded into the schema's description as a hint
// rather than dropped silently.
var constraintKeywords = []string{
	"minLength", "maxLength", "exclusiveMinimum", "exclusiveMaximum",
	"pattern", "minItems", "maxItems", "format", "default", "examples",
}

// structuralKeywords are removed outright; they carry no information a
// vendor tool-calling model can act on.
var structuralKeywords = []string{
	"$schema", "$defs", "definitions", "const", "$ref",
	"additionalProperties", "propertyNames", "title", "$id", "$comment",
}

// Sanitize mutates a tool-parameter schema in place, recursively, per
// spec.md §4.5.3. It returns the same map for convenience.
func Sanitize(s map[string]any) map[string]any {
	if s == nil {
		return s
	}
	sanitizeNode(s)
	return s
}

func sanitizeNode(node map[string]any) {
	for _, kw := range constraintKeywords {
		v, ok := node[kw]
		if !ok {
			continue
		}
		delete(node, kw)
		appendHint(node, kw, v)
	}
	for _, kw := range structuralKeywords {
		delete(node, kw)
	}

	if typ, _ := node["type"].(string); typ == "object" {
		props, _ := node["properties"].(map[string]any)
		if len(props) == 0 {
			node["properties"] = ir.PlaceholderSchema["properties"]
			node["required"] = ir.PlaceholderSchema["required"]
			props, _ = node["properties"].(map[string]any)
		}
		for _, v := range props {
			if child, ok := v.(map[string]any); ok {
				sanitizeNode(child)
			}
		}
	}

	if items, ok := node["items"].(map[string]any); ok {
		sanitizeNode(items)
	}
}

func appendHint(node map[string]any, keyword string, value any) {
	hint := fmt.Sprintf("(%s: %v)", keyword, value)
	existing, _ := node["description"].(string)
	if existing == "" {
		node["description"] = hint
		return
	}
	node["description"] = existing + " " + hint
}
