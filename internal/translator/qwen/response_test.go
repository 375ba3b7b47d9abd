package qwen

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func sseLines(t *testing.T, events []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, e := range events {
		buf.WriteString("data: " + e + "\n\n")
	}
	buf.WriteString("data: [DONE]\n\n")
	return buf.Bytes()
}

func extractEventTypes(t *testing.T, sse []byte) []string {
	t.Helper()
	var types []string
	for _, line := range strings.Split(string(sse), "\n") {
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" || payload == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(payload), &obj); err != nil {
			t.Fatalf("decode emitted event %q: %v", payload, err)
		}
		types = append(types, obj["type"].(string))
	}
	return types
}

func TestTranslateStreamingTextOnly(t *testing.T) {
	input := sseLines(t, []string{
		`{"choices":[{"delta":{"content":"hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2}}`,
	})

	var out bytes.Buffer
	if err := TranslateStreaming(bytes.NewReader(input), &out); err != nil {
		t.Fatalf("TranslateStreaming() error = %v", err)
	}

	types := extractEventTypes(t, out.Bytes())
	want := []string{
		"response.created",
		"response.output_item.added",
		"response.content_part.added",
		"response.output_text.delta",
		"response.output_text.delta",
		"response.output_item.done",
		"response.completed",
	}
	if len(types) != len(want) {
		t.Fatalf("event sequence = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, types[i], want[i])
		}
	}
	if !strings.HasSuffix(strings.TrimSpace(out.String()), "data: [DONE]") {
		t.Errorf("stream does not end with data: [DONE]")
	}
}

func TestTranslateStreamingToolCall(t *testing.T) {
	input := sseLines(t, []string{
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"lookup","arguments":""}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"q\":"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"x\"}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
	})

	var out bytes.Buffer
	if err := TranslateStreaming(bytes.NewReader(input), &out); err != nil {
		t.Fatalf("TranslateStreaming() error = %v", err)
	}

	types := extractEventTypes(t, out.Bytes())
	want := []string{
		"response.created",
		"response.output_item.added",
		"response.function_call_arguments.delta",
		"response.function_call_arguments.delta",
		"response.function_call_arguments.done",
		"response.output_item.done",
		"response.completed",
	}
	if len(types) != len(want) {
		t.Fatalf("event sequence = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, types[i], want[i])
		}
	}
}

func TestTranslateNonStreamingTextMessage(t *testing.T) {
	body := []byte(`{"choices":[{"message":{"role":"assistant","content":"hi there"}}],"usage":{"prompt_tokens":3,"completion_tokens":2}}`)
	out, usage, err := TranslateNonStreaming(body)
	if err != nil {
		t.Fatalf("TranslateNonStreaming() error = %v", err)
	}
	if usage.InputTokens != 3 || usage.OutputTokens != 2 {
		t.Errorf("usage = %+v, want {3 2}", usage)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	items := decoded["output"].([]any)
	if len(items) != 1 {
		t.Fatalf("output = %v, want one message item", items)
	}
	item := items[0].(map[string]any)
	if item["type"] != "message" {
		t.Errorf("output[0].type = %v, want message", item["type"])
	}
}

func TestTranslateNonStreamingFunctionCall(t *testing.T) {
	body := []byte(`{"choices":[{"message":{"role":"assistant","content":null,"tool_calls":[{"id":"call_9","function":{"name":"search","arguments":"{\"q\":\"go\"}"}}]}}]}`)
	out, _, err := TranslateNonStreaming(body)
	if err != nil {
		t.Fatalf("TranslateNonStreaming() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	items := decoded["output"].([]any)
	if len(items) != 1 {
		t.Fatalf("output = %v, want one function_call item", items)
	}
	item := items[0].(map[string]any)
	if item["type"] != "function_call" || item["call_id"] != "call_9" || item["name"] != "search" {
		t.Errorf("output[0] = %v, want function_call for call_9/search", item)
	}
}

func TestReplayBufferedCombinesTextAndToolCall(t *testing.T) {
	input := sseLines(t, []string{
		`{"choices":[{"delta":{"content":"thinking..."}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_5","function":{"name":"run","arguments":"{}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":1,"completion_tokens":1}}`,
	})

	out, usage, err := ReplayBuffered(bytes.NewReader(input))
	if err != nil {
		t.Fatalf("ReplayBuffered() error = %v", err)
	}
	if usage.InputTokens != 1 || usage.OutputTokens != 1 {
		t.Errorf("usage = %+v, want {1 1}", usage)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	items := decoded["output"].([]any)
	if len(items) != 2 {
		t.Fatalf("output = %v, want one message + one function_call", items)
	}
	if items[0].(map[string]any)["type"] != "message" {
		t.Errorf("output[0].type = %v, want message", items[0].(map[string]any)["type"])
	}
	if items[1].(map[string]any)["type"] != "function_call" {
		t.Errorf("output[1].type = %v, want function_call", items[1].(map[string]any)["type"])
	}
}
