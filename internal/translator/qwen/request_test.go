package qwen

import (
	"encoding/json"
	"testing"
)

func TestRewriteURL(t *testing.T) {
	cases := map[string]string{
		"/v1/responses":        "/v1/chat/completions",
		"/v1/completions":      "/v1/chat/completions",
		"/v1/chat/completions": "/v1/chat/completions",
		"/v1/models":           "/v1/models",
	}
	for in, want := range cases {
		if got := RewriteURL(in); got != want {
			t.Errorf("RewriteURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func decodeBody(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode result body: %v", err)
	}
	return out
}

func TestBuildRequestSimpleTextMessage(t *testing.T) {
	in := []byte(`{"model":"qwen3-coder-plus","input":[{"type":"message","role":"user","content":[{"type":"input_text","text":"hi"}]}]}`)
	res, err := BuildRequest(in, false)
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}
	out := decodeBody(t, res.Body)

	messages, ok := out["messages"].([]any)
	if !ok || len(messages) != 1 {
		t.Fatalf("messages = %v, want one message", out["messages"])
	}
	msg := messages[0].(map[string]any)
	if msg["role"] != "user" || msg["content"] != "hi" {
		t.Errorf("message = %v, want role user content \"hi\"", msg)
	}
	if out["stream"] != false {
		t.Errorf("stream = %v, want false (no tools, not requested)", out["stream"])
	}
	if res.ForcedStreamingForTools {
		t.Errorf("ForcedStreamingForTools = true, want false")
	}
}

func TestBuildRequestDeveloperRoleBecomesSystem(t *testing.T) {
	in := []byte(`{"input":[{"type":"message","role":"developer","content":[{"type":"input_text","text":"be terse"}]}]}`)
	res, err := BuildRequest(in, false)
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}
	out := decodeBody(t, res.Body)
	messages := out["messages"].([]any)
	msg := messages[0].(map[string]any)
	if msg["role"] != "system" {
		t.Errorf("role = %v, want system", msg["role"])
	}
}

func TestBuildRequestForcesStreamingWhenToolsPresent(t *testing.T) {
	in := []byte(`{
		"input":[{"type":"message","role":"user","content":[{"type":"input_text","text":"hi"}]}],
		"tools":[{"type":"function","name":"lookup","description":"look up","parameters":{"type":"object"}}]
	}`)
	res, err := BuildRequest(in, false)
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}
	if !res.ForcedStreamingForTools {
		t.Errorf("ForcedStreamingForTools = false, want true when tools present and stream not requested")
	}
	out := decodeBody(t, res.Body)
	if out["stream"] != true {
		t.Errorf("stream = %v, want true", out["stream"])
	}
	tools := out["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("tools = %v, want one real tool", tools)
	}
	if res.ToolNameHints["0"] != "lookup" {
		t.Errorf("ToolNameHints = %v, want {\"0\":\"lookup\"}", res.ToolNameHints)
	}
}

func TestBuildRequestSanitizesToolParameterSchemas(t *testing.T) {
	in := []byte(`{
		"input":[{"type":"message","role":"user","content":[{"type":"input_text","text":"hi"}]}],
		"tools":[
			{"type":"function","name":"search","description":"search","parameters":{"type":"object","properties":{"q":{"type":"string","minLength":1}}}},
			{"type":"function","name":"ping","description":"ping","parameters":{"type":"object","properties":{}}}
		]
	}`)
	res, err := BuildRequest(in, false)
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}
	out := decodeBody(t, res.Body)
	tools := out["tools"].([]any)
	if len(tools) != 2 {
		t.Fatalf("tools = %v, want two real tools", tools)
	}

	search := tools[0].(map[string]any)["function"].(map[string]any)
	params := search["parameters"].(map[string]any)
	props := params["properties"].(map[string]any)
	q := props["q"].(map[string]any)
	if q["description"] == "" || q["description"] == nil {
		t.Errorf("q.description empty, want minLength folded in")
	}
	if _, ok := q["minLength"]; ok {
		t.Errorf("minLength still present on q, want stripped")
	}

	ping := tools[1].(map[string]any)["function"].(map[string]any)
	pingParams := ping["parameters"].(map[string]any)
	pingProps := pingParams["properties"].(map[string]any)
	if _, ok := pingProps["_placeholder"]; !ok {
		t.Errorf("parameter-less ping tool did not get a placeholder property")
	}
}

func TestBuildRequestNoToolsGetsDummyToolAndToolChoiceNone(t *testing.T) {
	in := []byte(`{"input":[{"type":"message","role":"user","content":[{"type":"input_text","text":"hi"}]}]}`)
	res, err := BuildRequest(in, false)
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}
	out := decodeBody(t, res.Body)
	if out["tool_choice"] != "none" {
		t.Errorf("tool_choice = %v, want none", out["tool_choice"])
	}
	tools := out["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("tools = %v, want exactly the dummy tool", tools)
	}
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	if fn["name"] != "noop" {
		t.Errorf("dummy tool name = %v, want noop", fn["name"])
	}
}

func TestBuildRequestFunctionCallAndOutputRoundtrip(t *testing.T) {
	in := []byte(`{
		"input":[
			{"type":"message","role":"user","content":[{"type":"input_text","text":"what time is it"}]},
			{"type":"function_call","call_id":"call_1","name":"get_time","arguments":"{}"},
			{"type":"function_call_output","call_id":"call_1","output":"noon"}
		]
	}`)
	res, err := BuildRequest(in, false)
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}
	out := decodeBody(t, res.Body)
	messages := out["messages"].([]any)
	if len(messages) != 3 {
		t.Fatalf("messages = %d, want 3 (user, assistant tool_call, tool result)", len(messages))
	}
	assistant := messages[1].(map[string]any)
	if assistant["role"] != "assistant" {
		t.Errorf("messages[1].role = %v, want assistant", assistant["role"])
	}
	toolMsg := messages[2].(map[string]any)
	if toolMsg["role"] != "tool" || toolMsg["tool_call_id"] != "call_1" {
		t.Errorf("messages[2] = %v, want tool result for call_1", toolMsg)
	}
}

func TestBuildRequestOrphanedToolMessageDemotedToUser(t *testing.T) {
	in := []byte(`{
		"input":[
			{"type":"function_call_output","call_id":"dangling","output":"some result"}
		]
	}`)
	res, err := BuildRequest(in, false)
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}
	out := decodeBody(t, res.Body)
	messages := out["messages"].([]any)

	// A synthetic function_call is inserted ahead of the orphaned tool
	// message, which demoteOrphanedToolMessages then accepts because it now
	// has a preceding match — so the final role is "tool", not "user".
	last := messages[len(messages)-1].(map[string]any)
	if last["role"] != "tool" {
		t.Errorf("last message role = %v, want tool (backed by the synthesized function_call)", last["role"])
	}
}

func TestBuildRequestEmptyInputGetsPlaceholderMessage(t *testing.T) {
	in := []byte(`{"input":[]}`)
	res, err := BuildRequest(in, false)
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}
	out := decodeBody(t, res.Body)
	messages := out["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("messages = %d, want 1 placeholder", len(messages))
	}
	msg := messages[0].(map[string]any)
	if msg["role"] != "user" {
		t.Errorf("placeholder role = %v, want user", msg["role"])
	}
}

func TestBuildRequestRequestedStreamPropagates(t *testing.T) {
	in := []byte(`{"input":[{"type":"message","role":"user","content":[{"type":"input_text","text":"hi"}]}]}`)
	res, err := BuildRequest(in, true)
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}
	if res.ForcedStreamingForTools {
		t.Errorf("ForcedStreamingForTools = true, want false when caller already requested streaming")
	}
	out := decodeBody(t, res.Body)
	if out["stream"] != true {
		t.Errorf("stream = %v, want true", out["stream"])
	}
}

func TestBuildRequestMaxTokensDefaultsAndOverrides(t *testing.T) {
	in := []byte(`{"input":[{"type":"message","role":"user","content":[{"type":"input_text","text":"hi"}]}]}`)
	res, err := BuildRequest(in, false)
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}
	out := decodeBody(t, res.Body)
	if out["max_tokens"] != float64(8192) {
		t.Errorf("max_tokens default = %v, want 8192", out["max_tokens"])
	}

	in2 := []byte(`{"input":[{"type":"message","role":"user","content":[{"type":"input_text","text":"hi"}]}],"max_output_tokens":500}`)
	res2, err := BuildRequest(in2, false)
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}
	out2 := decodeBody(t, res2.Body)
	if out2["max_tokens"] != float64(500) {
		t.Errorf("max_tokens override = %v, want 500", out2["max_tokens"])
	}
}
