// Package antigravity implements the Antigravity (Gemini envelope) target
// for the Request/Response Translator (C5/C6): model resolution, envelope
// wrapping, header styles, and endpoint fallback.
package antigravity

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/llmbridge/vendorcore/internal/runtime/executor"
	"github.com/llmbridge/vendorcore/internal/translator/schema"
)

// HeaderStyle distinguishes the two header triples the vendor accepts
// (spec.md §6).
type HeaderStyle string

const (
	StyleAntigravity HeaderStyle = "antigravity" // Claude route
	StyleGeminiCLI    HeaderStyle = "gemini-cli"  // Gemini route
)

const antigravityUserAgent = "antigravity/1.104.0 darwin/arm64"
const geminiCLIUserAgent = "google-api-nodejs-client/9.15.1"

// Endpoints is the documented fallback order for outbound calls (spec.md §6).
var Endpoints = []string{
	"https://daily-cloudcode-pa.sandbox.googleapis.com",
	"https://cloudcode-pa.googleapis.com",
}

// Plan is the fully prepared request: body, headers, and URL, ready to send.
type Plan struct {
	Body        []byte
	Headers     map[string]string
	PathSuffix  string // ":generateContent" or ":streamGenerateContent?alt=sse"
	HeaderStyle HeaderStyle
}

// BuildRequest implements spec.md §4.5.1 end-to-end: model resolution,
// tool-config adjustment, thinking budget, envelope wrap, header
// selection. body is the raw Gemini-shaped JSON the host already built
// (contents, systemInstruction, tools, generationConfig).
func BuildRequest(body []byte, projectID, accessToken string, streaming bool) (Plan, error) {
	modelID := gjson.GetBytes(body, "model").String()
	_, strippedModel := executor.StripProviderPrefix(modelID)
	baseModel, budget, tierResolved := executor.ResolveTierSuffix(strippedModel)

	isClaude := executor.IsClaudeModel(baseModel)
	thinking := executor.IsThinkingEnabled(baseModel, tierResolved)

	out := body
	var err error
	out, err = sjson.SetBytes(out, "model", baseModel)
	if err != nil {
		return Plan{}, err
	}

	hasTools := gjson.GetBytes(out, "tools").Exists() && gjson.GetBytes(out, "tools").IsArray() && len(gjson.GetBytes(out, "tools").Array()) > 0

	if hasTools {
		out, err = sanitizeToolSchemas(out)
		if err != nil {
			return Plan{}, err
		}
	}

	if isClaude {
		if hasTools {
			out, err = sjson.SetBytes(out, "toolConfig.functionCallingConfig.mode", "VALIDATED")
		} else {
			out, err = sjson.DeleteBytes(out, "toolConfig")
			if err == nil {
				out, err = sjson.DeleteBytes(out, "tools")
			}
		}
		if err != nil {
			return Plan{}, err
		}
	}

	if isClaude && thinking {
		if budget == 0 {
			budget = 16384
		}
		out, err = sjson.SetBytes(out, "generationConfig.thinkingConfig.include_thoughts", true)
		if err == nil {
			out, err = sjson.SetBytes(out, "generationConfig.thinkingConfig.thinking_budget", budget)
		}
		if err != nil {
			return Plan{}, err
		}
		if hasTools {
			out, err = appendInterleavedThinkingHint(out)
			if err != nil {
				return Plan{}, err
			}
		}
	}

	sessionID := uuid.NewString()
	requestID := uuid.NewString()

	envelope := map[string]any{
		"project":   projectID,
		"model":     baseModel,
		"userAgent": selectUserAgent(isClaude),
		"requestId": requestID,
	}
	envelopeBytes, err := marshalWithRequest(envelope, out, sessionID)
	if err != nil {
		return Plan{}, err
	}

	style := StyleGeminiCLI
	if isClaude {
		style = StyleAntigravity
	}

	pathSuffix := ":generateContent"
	if streaming {
		pathSuffix = ":streamGenerateContent?alt=sse"
	}

	headers := buildHeaders(style, accessToken, streaming, isClaude && thinking)

	return Plan{
		Body:        envelopeBytes,
		Headers:     headers,
		PathSuffix:  pathSuffix,
		HeaderStyle: style,
	}, nil
}

// appendInterleavedThinkingHint appends the interleaved-thinking system
// hint required when a thinking Claude model is also given tools
// (spec.md §4.5.1).
func appendInterleavedThinkingHint(body []byte) ([]byte, error) {
	const hint = "You may interleave brief thinking between tool calls to reconsider your approach."
	existing := gjson.GetBytes(body, "systemInstruction.parts")
	idx := 0
	if existing.IsArray() {
		idx = len(existing.Array())
	}
	return sjson.SetBytes(body, fmt.Sprintf("systemInstruction.parts.%d.text", idx), hint)
}

// sanitizeToolSchemas applies spec.md §4.5.3 to every functionDeclaration
// parameter schema in the Gemini-shaped tools array (spec.md §4.5.1).
func sanitizeToolSchemas(body []byte) ([]byte, error) {
	raw := gjson.GetBytes(body, "tools").Raw
	var groups []map[string]any
	if err := json.Unmarshal([]byte(raw), &groups); err != nil {
		return body, nil
	}
	for _, group := range groups {
		decls, ok := group["functionDeclarations"].([]any)
		if !ok {
			continue
		}
		for _, d := range decls {
			decl, ok := d.(map[string]any)
			if !ok {
				continue
			}
			params, ok := decl["parameters"].(map[string]any)
			if !ok {
				continue
			}
			decl["parameters"] = schema.Sanitize(params)
		}
	}
	return sjson.SetBytes(body, "tools", groups)
}

func marshalWithRequest(envelope map[string]any, requestBody []byte, sessionID string) ([]byte, error) {
	out, err := sjson.SetBytes(nil, "project", envelope["project"])
	if err != nil {
		return nil, err
	}
	out, err = sjson.SetBytes(out, "model", envelope["model"])
	if err != nil {
		return nil, err
	}
	out, err = sjson.SetBytes(out, "userAgent", envelope["userAgent"])
	if err != nil {
		return nil, err
	}
	out, err = sjson.SetBytes(out, "requestId", envelope["requestId"])
	if err != nil {
		return nil, err
	}
	out, err = sjson.SetRawBytes(out, "request", requestBody)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(out, "request.sessionId", sessionID)
}

func selectUserAgent(isClaude bool) string {
	if isClaude {
		return antigravityUserAgent
	}
	return geminiCLIUserAgent
}

func buildHeaders(style HeaderStyle, accessToken string, streaming, claudeThinking bool) map[string]string {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
		"Content-Type":  "application/json",
	}
	if streaming {
		headers["Accept"] = "text/event-stream"
	}

	switch style {
	case StyleAntigravity:
		headers["User-Agent"] = antigravityUserAgent
		headers["X-Goog-Api-Client"] = "google-cloud-sdk vscode_cloudeshelleditor/0.1"
		headers["Client-Metadata"] = `{"ideType":"IDE_UNSPECIFIED","platform":"PLATFORM_UNSPECIFIED","pluginType":"GEMINI"}`
	case StyleGeminiCLI:
		headers["User-Agent"] = geminiCLIUserAgent
		headers["X-Goog-Api-Client"] = "gl-node/20.18.0"
		headers["Client-Metadata"] = "ideType=IDE_UNSPECIFIED,platform=PLATFORM_UNSPECIFIED,pluginType=GEMINI"
	}

	if claudeThinking {
		headers["anthropic-beta"] = "interleaved-thinking-2025-05-14"
	}
	return headers
}
