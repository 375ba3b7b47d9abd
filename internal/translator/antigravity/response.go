package antigravity

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/llmbridge/vendorcore/internal/translator/ir"
)

// Usage is the normalized token accounting the orchestrator records.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// TranslateNonStreaming implements spec.md §4.6.1's non-streaming path:
// unwrap the `{response: ...}` envelope if present, then, when
// responsesDialect is requested, map candidates into a Responses `output`
// array.
func TranslateNonStreaming(body []byte, responsesDialect bool) ([]byte, Usage, error) {
	inner := unwrapEnvelope(body)

	usage := extractUsage(inner)
	if !responsesDialect {
		return inner, usage, nil
	}

	output, err := candidatesToOutput(inner)
	if err != nil {
		return nil, usage, err
	}

	buf := ir.GetBuffer()
	defer ir.PutBuffer(buf)
	if err := json.NewEncoder(buf).Encode(map[string]any{
		"output": output,
		"usage": map[string]any{
			"input_tokens":  usage.InputTokens,
			"output_tokens": usage.OutputTokens,
		},
	}); err != nil {
		return nil, usage, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, usage, nil
}

func unwrapEnvelope(body []byte) []byte {
	if resp := gjson.GetBytes(body, "response"); resp.Exists() {
		return []byte(resp.Raw)
	}
	return body
}

func extractUsage(body []byte) Usage {
	return Usage{
		InputTokens:  int(gjson.GetBytes(body, "usageMetadata.promptTokenCount").Int()),
		OutputTokens: int(gjson.GetBytes(body, "usageMetadata.candidatesTokenCount").Int()),
	}
}

func candidatesToOutput(body []byte) ([]any, error) {
	parts := gjson.GetBytes(body, "candidates.0.content.parts")
	if !parts.Exists() || !parts.IsArray() {
		return []any{}, nil
	}

	output := ir.GetAnySlice(4)
	var textParts []any
	flushText := func() {
		if len(textParts) == 0 {
			return
		}
		output = append(output, map[string]any{
			"type": "message", "role": "assistant",
			"content": append([]any{}, textParts...),
		})
		textParts = textParts[:0]
	}

	for _, p := range parts.Array() {
		if p.Get("thought").Bool() {
			continue
		}
		if text := p.Get("text"); text.Exists() {
			textParts = append(textParts, map[string]any{"type": "output_text", "text": text.String()})
			continue
		}
		if fc := p.Get("functionCall"); fc.Exists() {
			flushText()
			argsJSON, _ := json.Marshal(fc.Get("args").Value())
			output = append(output, map[string]any{
				"type":      "function_call",
				"call_id":   uuid.NewString(),
				"name":      fc.Get("name").String(),
				"arguments": string(argsJSON),
			})
		}
	}
	flushText()
	result := append([]any{}, output...)
	ir.PutAnySlice(output)
	return result, nil
}

// TranslateStreaming reads a raw Antigravity SSE stream from r and writes
// the re-emitted, (optionally) transformed stream to w (spec.md §4.6.1
// streaming path): split by lines, pass non-`data:` lines through
// unchanged, unwrap+transform `data:` lines other than `[DONE]`.
func TranslateStreaming(r io.Reader, w io.Writer, responsesDialect bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if !bytes.HasPrefix(line, []byte("data:")) {
			if _, err := w.Write(append(append([]byte{}, line...), '\n')); err != nil {
				return err
			}
			continue
		}

		payload := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		if string(payload) == "[DONE]" {
			if _, err := w.Write([]byte("data: [DONE]\n\n")); err != nil {
				return err
			}
			continue
		}

		unwrapped := unwrapEnvelope(payload)
		out := unwrapped
		if responsesDialect {
			output, err := candidatesToOutput(unwrapped)
			if err == nil {
				transformed, marshalErr := json.Marshal(map[string]any{"output": output})
				if marshalErr == nil {
					out = transformed
				}
			}
		}

		chunk := ir.BuildSSEChunk(out)
		_, err := w.Write(chunk)
		ir.PutSSEChunkBuf(chunk)
		if err != nil {
			return err
		}
	}
	return scanner.Err()
}
