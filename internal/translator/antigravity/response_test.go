package antigravity

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestTranslateNonStreamingPassthroughWhenNotResponsesDialect(t *testing.T) {
	body := []byte(`{"response":{"candidates":[{"content":{"parts":[{"text":"hi"}]}}],"usageMetadata":{"promptTokenCount":4,"candidatesTokenCount":1}}}`)
	out, usage, err := TranslateNonStreaming(body, false)
	if err != nil {
		t.Fatalf("TranslateNonStreaming() error = %v", err)
	}
	if usage.InputTokens != 4 || usage.OutputTokens != 1 {
		t.Errorf("usage = %+v, want {4 1}", usage)
	}
	if strings.Contains(string(out), `"response"`) {
		t.Errorf("output still wraps the envelope: %s", out)
	}
}

func TestTranslateNonStreamingResponsesDialectMapsTextAndToolCall(t *testing.T) {
	body := []byte(`{"candidates":[{"content":{"parts":[
		{"text":"the weather is"},
		{"functionCall":{"name":"get_weather","args":{"city":"nyc"}}}
	]}}],"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":5}}`)
	out, usage, err := TranslateNonStreaming(body, true)
	if err != nil {
		t.Fatalf("TranslateNonStreaming() error = %v", err)
	}
	if usage.OutputTokens != 5 {
		t.Errorf("usage.OutputTokens = %d, want 5", usage.OutputTokens)
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
	call := items[1].(map[string]any)
	if call["type"] != "function_call" || call["name"] != "get_weather" {
		t.Errorf("output[1] = %v, want function_call get_weather", call)
	}
}

func TestTranslateNonStreamingSkipsThoughtParts(t *testing.T) {
	body := []byte(`{"candidates":[{"content":{"parts":[
		{"text":"internal reasoning","thought":true},
		{"text":"final answer"}
	]}}]}`)
	out, _, err := TranslateNonStreaming(body, true)
	if err != nil {
		t.Fatalf("TranslateNonStreaming() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	items := decoded["output"].([]any)
	if len(items) != 1 {
		t.Fatalf("output = %v, want only the non-thought text collapsed into one message", items)
	}
	content := items[0].(map[string]any)["content"].([]any)
	if len(content) != 1 || content[0].(map[string]any)["text"] != "final answer" {
		t.Errorf("content = %v, want only \"final answer\"", content)
	}
}

func TestTranslateStreamingPassesNonDataLinesThrough(t *testing.T) {
	input := []byte("event: message\ndata: {\"response\":{\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"hi\"}]}}]}}\n\ndata: [DONE]\n\n")
	var out bytes.Buffer
	if err := TranslateStreaming(bytes.NewReader(input), &out, false); err != nil {
		t.Fatalf("TranslateStreaming() error = %v", err)
	}
	if !strings.Contains(out.String(), "event: message") {
		t.Errorf("non-data line dropped: %s", out.String())
	}
	if !strings.Contains(out.String(), "data: [DONE]") {
		t.Errorf("[DONE] marker missing: %s", out.String())
	}
}

func TestTranslateStreamingResponsesDialectTransformsChunks(t *testing.T) {
	input := []byte("data: {\"response\":{\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"hi\"}]}}]}}\n\ndata: [DONE]\n\n")
	var out bytes.Buffer
	if err := TranslateStreaming(bytes.NewReader(input), &out, true); err != nil {
		t.Fatalf("TranslateStreaming() error = %v", err)
	}
	if !strings.Contains(out.String(), `"output"`) {
		t.Errorf("transformed chunk missing \"output\" key: %s", out.String())
	}
}
