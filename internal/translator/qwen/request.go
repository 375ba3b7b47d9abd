// Package qwen implements the Qwen (Chat Completions) target for the
// Request/Response Translator (C5/C6): Responses-dialect -> Chat
// Completions conversion, tool continuity normalization, and the reverse
// SSE event translation.
package qwen

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/llmbridge/vendorcore/internal/translator/schema"
)

// BuildResult carries the translated body plus the bookkeeping the
// orchestrator and Response Translator need downstream.
type BuildResult struct {
	Body                    []byte
	ForcedStreamingForTools bool
	ToolNameHints           map[string]string // call_id (or index key) -> tool name, for response-side gap filling
}

// RewriteURL implements spec.md §4.5.2's URL rewrite: "/responses" ->
// "/chat/completions"; a bare "/completions" becomes "/chat/completions".
func RewriteURL(path string) string {
	switch {
	case strings.HasSuffix(path, "/responses"):
		return strings.TrimSuffix(path, "/responses") + "/chat/completions"
	case strings.HasSuffix(path, "/completions") && !strings.HasSuffix(path, "/chat/completions"):
		return strings.TrimSuffix(path, "/completions") + "/chat/completions"
	default:
		return path
	}
}

// BuildRequest converts a Responses-dialect request body into the Chat
// Completions shape Qwen expects (spec.md §4.5.2).
func BuildRequest(body []byte, requestedStream bool) (BuildResult, error) {
	var in map[string]any
	if err := json.Unmarshal(body, &in); err != nil {
		return BuildResult{}, fmt.Errorf("qwen: decode request: %w", err)
	}

	messages := convertInput(in)
	messages = normalizeToolContinuity(messages)
	if len(messages) == 0 {
		messages = []map[string]any{{"role": "user", "content": "Hello"}}
	}
	if !lastMessageAcceptable(messages) {
		messages = append(messages, map[string]any{"role": "user", "content": "Continue."})
	}

	tools, hints := normalizeTools(in)

	out := map[string]any{"messages": toAnySlice(messages)}
	if model, ok := in["model"]; ok {
		out["model"] = model
	}

	forcedStreaming := false
	hasRealTools := len(tools) > 0
	if requestedStream {
		out["stream"] = true
		out["stream_options"] = map[string]any{"include_usage": true}
	} else if hasRealTools {
		out["stream"] = true
		out["stream_options"] = map[string]any{"include_usage": true}
		forcedStreaming = true
	} else {
		out["stream"] = false
	}

	if hasRealTools {
		out["tools"] = tools
	} else {
		out["tools"] = []any{dummyTool()}
		out["tool_choice"] = "none"
	}

	copyKnob(in, out, "temperature")
	copyKnob(in, out, "top_p")
	copyKnob(in, out, "stop")

	maxTokens := 8192
	if v, ok := numericField(in, "max_output_tokens"); ok {
		maxTokens = v
	}
	out["max_tokens"] = maxTokens

	encoded, err := json.Marshal(out)
	if err != nil {
		return BuildResult{}, err
	}
	return BuildResult{Body: encoded, ForcedStreamingForTools: forcedStreaming, ToolNameHints: hints}, nil
}

func copyKnob(in, out map[string]any, key string) {
	if v, ok := in[key]; ok {
		out[key] = v
	}
}

func numericField(in map[string]any, key string) (int, bool) {
	v, ok := in[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

// convertInput maps the Responses `input` array to Chat Completions
// `messages`, per-item, before tool-continuity normalization.
func convertInput(in map[string]any) []map[string]any {
	items, _ := in["input"].([]any)
	messages := make([]map[string]any, 0, len(items))

	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		switch item["type"] {
		case "message", "":
			role, _ := item["role"].(string)
			if role == "developer" {
				role = "system"
			}
			messages = append(messages, map[string]any{
				"role":    role,
				"content": simplifyContent(item["content"]),
			})
		case "function_call":
			args, _ := item["arguments"].(string)
			messages = append(messages, map[string]any{
				"role":    "assistant",
				"content": nil,
				"tool_calls": []any{map[string]any{
					"id":   item["call_id"],
					"type": "function",
					"function": map[string]any{
						"name":      item["name"],
						"arguments": args,
					},
				}},
			})
		case "function_call_output":
			out, _ := item["output"].(string)
			messages = append(messages, map[string]any{
				"role":         "tool",
				"tool_call_id": item["call_id"],
				"content":      out,
			})
		case "item_reference":
			// Consumed during tool-continuity normalization, not emitted.
		}
	}
	return messages
}

// simplifyContent recursively rewrites input_text/output_text parts to
// {type:"text", text}, and collapses an all-text array into a plain string.
func simplifyContent(content any) any {
	parts, ok := content.([]any)
	if !ok {
		return content
	}

	rewritten := make([]any, 0, len(parts))
	allText := true
	var texts []string
	for _, p := range parts {
		part, ok := p.(map[string]any)
		if !ok {
			allText = false
			rewritten = append(rewritten, p)
			continue
		}
		if t, _ := part["type"].(string); t == "input_text" || t == "output_text" {
			text, _ := part["text"].(string)
			rewritten = append(rewritten, map[string]any{"type": "text", "text": text})
			texts = append(texts, text)
			continue
		}
		allText = false
		rewritten = append(rewritten, part)
	}

	if allText && len(texts) > 0 {
		return strings.Join(texts, "")
	}
	return rewritten
}

// normalizeToolContinuity implements spec.md §4.5.2's tool-continuity
// invariant: every role:"tool" message has an immediately preceding
// assistant message carrying a matching tool_call_id.
func normalizeToolContinuity(messages []map[string]any) []map[string]any {
	seen := make(map[string]bool)
	out := make([]map[string]any, 0, len(messages))

	for _, m := range messages {
		role, _ := m["role"].(string)

		if role == "tool" {
			callID, _ := m["tool_call_id"].(string)
			if !seen[callID] {
				out = append(out, syntheticFunctionCall(callID, ""))
				seen[callID] = true
			}
			out = append(out, m)
			continue
		}

		if calls, ok := m["tool_calls"].([]any); ok {
			for _, c := range calls {
				if call, ok := c.(map[string]any); ok {
					if id, _ := call["id"].(string); id != "" {
						seen[id] = true
					}
				}
			}
		}
		out = append(out, m)
	}

	out = mergeConsecutiveToolCallAssistants(out)
	return demoteOrphanedToolMessages(out)
}

func syntheticFunctionCall(callID, name string) map[string]any {
	return map[string]any{
		"role":    "assistant",
		"content": nil,
		"tool_calls": []any{map[string]any{
			"id":   callID,
			"type": "function",
			"function": map[string]any{
				"name":      name,
				"arguments": "{}",
			},
		}},
	}
}

func mergeConsecutiveToolCallAssistants(messages []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		role, _ := m["role"].(string)
		calls, hasCalls := m["tool_calls"].([]any)

		if role == "assistant" && hasCalls && len(out) > 0 {
			prev := out[len(out)-1]
			prevRole, _ := prev["role"].(string)
			if prevCalls, ok := prev["tool_calls"].([]any); ok && prevRole == "assistant" {
				prev["tool_calls"] = append(prevCalls, calls...)
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

func demoteOrphanedToolMessages(messages []map[string]any) []map[string]any {
	callIDToAssistant := make(map[string]bool)
	for _, m := range messages {
		if calls, ok := m["tool_calls"].([]any); ok {
			for _, c := range calls {
				if call, ok := c.(map[string]any); ok {
					if id, _ := call["id"].(string); id != "" {
						callIDToAssistant[id] = true
					}
				}
			}
		}
	}

	out := make([]map[string]any, 0, len(messages))
	for i, m := range messages {
		role, _ := m["role"].(string)
		if role != "tool" {
			out = append(out, m)
			continue
		}
		callID, _ := m["tool_call_id"].(string)
		if callIDToAssistant[callID] && precededByMatchingAssistant(messages, i, callID) {
			out = append(out, m)
			continue
		}
		content, _ := m["content"].(string)
		out = append(out, map[string]any{
			"role":    "user",
			"content": fmt.Sprintf("[Tool result; call_id=%s]: %s", callID, content),
		})
	}
	return out
}

func precededByMatchingAssistant(messages []map[string]any, toolIdx int, callID string) bool {
	if toolIdx == 0 {
		return false
	}
	prev := messages[toolIdx-1]
	calls, ok := prev["tool_calls"].([]any)
	if !ok {
		return false
	}
	for _, c := range calls {
		if call, ok := c.(map[string]any); ok {
			if id, _ := call["id"].(string); id == callID {
				return true
			}
		}
	}
	return false
}

func lastMessageAcceptable(messages []map[string]any) bool {
	if len(messages) == 0 {
		return false
	}
	last := messages[len(messages)-1]
	role, _ := last["role"].(string)
	switch role {
	case "user", "tool", "function":
		return true
	case "assistant":
		_, hasCalls := last["tool_calls"]
		return hasCalls
	default:
		return false
	}
}

func toAnySlice(messages []map[string]any) []any {
	out := make([]any, len(messages))
	for i, m := range messages {
		out[i] = m
	}
	return out
}

// normalizeTools accepts both Chat and Responses tool shapes and
// normalizes them to {type:"function", function:{name, description,
// parameters}}.
func normalizeTools(in map[string]any) ([]any, map[string]string) {
	raw, _ := in["tools"].([]any)
	if len(raw) == 0 {
		return nil, nil
	}

	out := make([]any, 0, len(raw))
	hints := make(map[string]string, len(raw))
	for i, t := range raw {
		tool, ok := t.(map[string]any)
		if !ok {
			continue
		}
		var name, description string
		var params any

		if fn, ok := tool["function"].(map[string]any); ok {
			name, _ = fn["name"].(string)
			description, _ = fn["description"].(string)
			params = fn["parameters"]
		} else {
			name, _ = tool["name"].(string)
			description, _ = tool["description"].(string)
			params = tool["parameters"]
		}
		if name == "" {
			continue
		}

		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        name,
				"description": description,
				"parameters":  sanitizeParams(params),
			},
		})
		hints[fmt.Sprintf("%d", i)] = name
	}
	return out, hints
}

// sanitizeParams folds unsupported constraint keywords into the
// description and substitutes a placeholder for parameter-less object
// schemas (spec.md §4.5.3). A parameters value that isn't already a
// decoded object (missing, or some other JSON type) falls back to the
// placeholder schema outright.
func sanitizeParams(params any) map[string]any {
	m, ok := params.(map[string]any)
	if !ok {
		m = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return schema.Sanitize(m)
}

// dummyTool neutralizes Qwen's misbehavior of emitting stray tokens when
// no tool is defined (spec.md §4.5.2).
func dummyTool() map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        "noop",
			"description": "No operation. Do not call this tool.",
			"parameters": map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}
