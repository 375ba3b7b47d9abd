package qwen

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/llmbridge/vendorcore/internal/translator/ir"
)

// Usage is the normalized token accounting the orchestrator records.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// toolCallState tracks one in-flight tool call across SSE deltas, keyed by
// the Chat Completions tool_calls[].index the vendor assigns.
type toolCallState struct {
	callID    string
	name      string
	itemAdded bool
}

// streamState carries the bookkeeping needed to emit the Responses event
// sequence described in spec.md §4.6.2.
type streamState struct {
	responseID   string
	textItemID   string
	textAdded    bool
	toolCalls    map[int]*toolCallState
	toolOrder    []int
	usage        Usage
	finishReason string
}

func newStreamState() *streamState {
	return &streamState{
		responseID: "resp_" + uuid.NewString(),
		toolCalls:  make(map[int]*toolCallState),
	}
}

// TranslateStreaming consumes a Chat Completions SSE stream from r and
// writes the re-sequenced Responses-dialect SSE stream to w (spec.md
// §4.6.2): response.created, output_item.added, content_part.added,
// output_text.delta, per-tool-call argument deltas, output_item.done,
// response.completed.
func TranslateStreaming(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	st := newStreamState()
	emit := func(eventType string, payload map[string]any) error {
		payload["type"] = eventType
		body, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		chunk := ir.BuildSSEChunk(body)
		_, err = w.Write(chunk)
		ir.PutSSEChunkBuf(chunk)
		return err
	}

	if err := emit("response.created", map[string]any{
		"response": map[string]any{"id": st.responseID, "status": "in_progress"},
	}); err != nil {
		return err
	}

	for scanner.Scan() {
		line := scanner.Bytes()
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		payload := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		if string(payload) == "[DONE]" {
			break
		}
		if err := handleChunk(payload, st, emit); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if err := closeOutstanding(st, emit); err != nil {
		return err
	}

	if err := emit("response.completed", map[string]any{
		"response": map[string]any{
			"id":     st.responseID,
			"status": "completed",
			"usage": map[string]any{
				"input_tokens":  st.usage.InputTokens,
				"output_tokens": st.usage.OutputTokens,
			},
		},
	}); err != nil {
		return err
	}
	_, err := w.Write([]byte("data: [DONE]\n\n"))
	return err
}

func handleChunk(payload []byte, st *streamState, emit func(string, map[string]any) error) error {
	if usage := gjson.GetBytes(payload, "usage"); usage.Exists() {
		st.usage = Usage{
			InputTokens:  int(usage.Get("prompt_tokens").Int()),
			OutputTokens: int(usage.Get("completion_tokens").Int()),
		}
	}

	choice := gjson.GetBytes(payload, "choices.0")
	if !choice.Exists() {
		return nil
	}

	if reason := choice.Get("finish_reason"); reason.Exists() && reason.String() != "" {
		st.finishReason = reason.String()
	}

	delta := choice.Get("delta")
	if !delta.Exists() {
		return nil
	}

	if content := delta.Get("content"); content.Exists() && content.String() != "" {
		if !st.textAdded {
			st.textItemID = "msg_" + uuid.NewString()
			if err := emit("response.output_item.added", map[string]any{
				"item": map[string]any{"id": st.textItemID, "type": "message", "role": "assistant"},
			}); err != nil {
				return err
			}
			if err := emit("response.content_part.added", map[string]any{
				"item_id": st.textItemID,
				"part":    map[string]any{"type": "output_text", "text": ""},
			}); err != nil {
				return err
			}
			st.textAdded = true
		}
		if err := emit("response.output_text.delta", map[string]any{
			"item_id": st.textItemID,
			"delta":   content.String(),
		}); err != nil {
			return err
		}
	}

	toolCalls := delta.Get("tool_calls")
	if !toolCalls.Exists() || !toolCalls.IsArray() {
		return nil
	}
	for _, tc := range toolCalls.Array() {
		idx := int(tc.Get("index").Int())
		state, ok := st.toolCalls[idx]
		if !ok {
			state = &toolCallState{}
			st.toolCalls[idx] = state
			st.toolOrder = append(st.toolOrder, idx)
		}
		if id := tc.Get("id"); id.Exists() && id.String() != "" {
			state.callID = id.String()
		}
		if name := tc.Get("function.name"); name.Exists() && name.String() != "" {
			state.name = name.String()
		}
		if !state.itemAdded && state.callID != "" && state.name != "" {
			if err := emit("response.output_item.added", map[string]any{
				"item": map[string]any{
					"id":   itemIDFor(state.callID),
					"type": "function_call",
					"name": state.name,
				},
			}); err != nil {
				return err
			}
			state.itemAdded = true
		}
		if args := tc.Get("function.arguments"); args.Exists() && args.String() != "" {
			if !state.itemAdded {
				continue
			}
			if err := emit("response.function_call_arguments.delta", map[string]any{
				"item_id": itemIDFor(state.callID),
				"delta":   args.String(),
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func itemIDFor(callID string) string {
	return fmt.Sprintf("fc_%s", callID)
}

func closeOutstanding(st *streamState, emit func(string, map[string]any) error) error {
	if st.textAdded {
		if err := emit("response.output_item.done", map[string]any{
			"item": map[string]any{"id": st.textItemID, "type": "message"},
		}); err != nil {
			return err
		}
	}
	for _, idx := range st.toolOrder {
		state := st.toolCalls[idx]
		if !state.itemAdded {
			continue
		}
		if err := emit("response.function_call_arguments.done", map[string]any{
			"item_id": itemIDFor(state.callID),
		}); err != nil {
			return err
		}
		if err := emit("response.output_item.done", map[string]any{
			"item": map[string]any{"id": itemIDFor(state.callID), "type": "function_call", "name": state.name},
		}); err != nil {
			return err
		}
	}
	return nil
}

// TranslateNonStreaming maps a single Chat Completions response object
// into the Responses `output` shape (spec.md §4.6.2 non-streaming path).
func TranslateNonStreaming(body []byte) ([]byte, Usage, error) {
	usage := Usage{
		InputTokens:  int(gjson.GetBytes(body, "usage.prompt_tokens").Int()),
		OutputTokens: int(gjson.GetBytes(body, "usage.completion_tokens").Int()),
	}

	message := gjson.GetBytes(body, "choices.0.message")
	output := make([]any, 0, 2)

	if text := message.Get("content"); text.Exists() && text.String() != "" {
		output = append(output, map[string]any{
			"type": "message", "role": "assistant",
			"content": []any{map[string]any{"type": "output_text", "text": text.String()}},
		})
	}

	if calls := message.Get("tool_calls"); calls.Exists() && calls.IsArray() {
		for _, c := range calls.Array() {
			output = append(output, map[string]any{
				"type":      "function_call",
				"call_id":   c.Get("id").String(),
				"name":      c.Get("function.name").String(),
				"arguments": c.Get("function.arguments").String(),
			})
		}
	}

	encoded, err := json.Marshal(map[string]any{
		"output": output,
		"usage": map[string]any{
			"input_tokens":  usage.InputTokens,
			"output_tokens": usage.OutputTokens,
		},
	})
	return encoded, usage, err
}

// ReplayBuffered re-derives a non-streaming Responses object from a
// buffered SSE stream, for the forced-streaming-for-tools path (spec.md
// §4.5.2): the orchestrator requested streaming from Qwen only because
// tools were present, but the caller asked for a non-streaming response.
func ReplayBuffered(r io.Reader) ([]byte, Usage, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var textBuf bytes.Buffer
	type call struct {
		id, name string
		args     bytes.Buffer
	}
	calls := make(map[int]*call)
	var order []int
	var usage Usage

	for scanner.Scan() {
		line := scanner.Bytes()
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		payload := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		if string(payload) == "[DONE]" {
			break
		}
		if u := gjson.GetBytes(payload, "usage"); u.Exists() {
			usage = Usage{
				InputTokens:  int(u.Get("prompt_tokens").Int()),
				OutputTokens: int(u.Get("completion_tokens").Int()),
			}
		}
		delta := gjson.GetBytes(payload, "choices.0.delta")
		if content := delta.Get("content"); content.Exists() {
			textBuf.WriteString(content.String())
		}
		for _, tc := range delta.Get("tool_calls").Array() {
			idx := int(tc.Get("index").Int())
			c, ok := calls[idx]
			if !ok {
				c = &call{}
				calls[idx] = c
				order = append(order, idx)
			}
			if id := tc.Get("id"); id.Exists() && id.String() != "" {
				c.id = id.String()
			}
			if name := tc.Get("function.name"); name.Exists() && name.String() != "" {
				c.name = name.String()
			}
			if args := tc.Get("function.arguments"); args.Exists() {
				c.args.WriteString(args.String())
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, usage, err
	}

	output := make([]any, 0, 1+len(order))
	if textBuf.Len() > 0 {
		output = append(output, map[string]any{
			"type": "message", "role": "assistant",
			"content": []any{map[string]any{"type": "output_text", "text": textBuf.String()}},
		})
	}
	for _, idx := range order {
		c := calls[idx]
		output = append(output, map[string]any{
			"type":      "function_call",
			"call_id":   c.id,
			"name":      c.name,
			"arguments": c.args.String(),
		})
	}

	encoded, err := json.Marshal(map[string]any{
		"output": output,
		"usage": map[string]any{
			"input_tokens":  usage.InputTokens,
			"output_tokens": usage.OutputTokens,
		},
	})
	return encoded, usage, err
}
