// Package orchestrator implements the Request Orchestrator (C7): it ties
// the Account Selector, Token Store, Request/Response Translators, and
// Rate-Limit Parser together into the per-call routing loop described in
// spec.md §4.7.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/http2"

	"github.com/llmbridge/vendorcore/internal/account"
	"github.com/llmbridge/vendorcore/internal/ratelimit"
	"github.com/llmbridge/vendorcore/internal/registry"
	"github.com/llmbridge/vendorcore/internal/selector"
	"github.com/llmbridge/vendorcore/internal/tokenstore"
	"github.com/llmbridge/vendorcore/internal/translator/antigravity"
	"github.com/llmbridge/vendorcore/internal/translator/qwen"
)

// Sentinel errors surfaced to the host (spec.md §7).
var (
	ErrNotVendorURL             = errors.New("orchestrator: url does not belong to a configured vendor")
	ErrAllCooled                = errors.New("orchestrator: all accounts cooled down")
	ErrReauthenticationRequired = errors.New("orchestrator: reauthentication required")
)

// AllCooledError carries the retry-after hint spec.md §7 requires.
type AllCooledError struct {
	MinWaitSeconds int
}

func (e *AllCooledError) Error() string {
	return fmt.Sprintf("orchestrator: all accounts cooled down, retry after %ds", e.MinWaitSeconds)
}

func (e *AllCooledError) Unwrap() error { return ErrAllCooled }

// Outcome is the result handed back to the host HTTP layer.
type Outcome struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Streamed   bool
}

// Orchestrator wires C2–C6 into the per-call routing loop (spec.md §4.7).
type Orchestrator struct {
	store     *tokenstore.Store
	selector  *selector.Selector
	transport *http.Client
}

// New builds an Orchestrator over the given Token Store and Account
// Selector, using a shared HTTP/2-tuned transport for all vendor calls.
func New(store *tokenstore.Store, sel *selector.Selector) *Orchestrator {
	return &Orchestrator{
		store:     store,
		selector:  sel,
		transport: newVendorHTTPClient(),
	}
}

// Dispatch implements spec.md §4.7 end-to-end for one outbound call. path
// and rawBody come from the host's inbound request; sessionID is the
// extracted session identifier (may be empty); requestedStream reflects
// whether the caller asked for a streaming response.
func (o *Orchestrator) Dispatch(ctx context.Context, path string, rawBody []byte, sessionID string, requestedStream bool) (Outcome, error) {
	reqType, provider := classify(path, rawBody)
	if provider == "" {
		return Outcome{}, ErrNotVendorURL
	}

	attempted := make(map[int]bool)
	accountCount := len(o.store.Snapshot())
	ceiling := 2 * accountCount
	if ceiling == 0 {
		ceiling = 1
	}

	var lastErr error
	for attempt := 0; attempt < ceiling; attempt++ {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}

		acc, err := o.selector.Pick(reqType, sessionID, attempted)
		if err != nil {
			if errors.Is(err, selector.ErrAllCooled) {
				return Outcome{}, &AllCooledError{MinWaitSeconds: o.selector.MinWaitSeconds()}
			}
			return Outcome{}, err
		}

		outcome, retryReason, err := o.attemptAccount(ctx, acc, path, rawBody, requestedStream)
		if err == nil && retryReason == "" {
			o.store.Touch(ctx, acc.Index)
			return outcome, nil
		}

		attempted[acc.Index] = true
		lastErr = err

		switch retryReason {
		case "cooled":
			if hasUncooledCandidate(o.selector, reqType, attempted, accountCount) {
				continue
			}
			return Outcome{}, &AllCooledError{MinWaitSeconds: o.selector.MinWaitSeconds()}
		default:
			if err != nil {
				return Outcome{}, err
			}
			return outcome, nil
		}
	}

	if lastErr != nil {
		return Outcome{}, lastErr
	}
	return Outcome{}, &AllCooledError{MinWaitSeconds: o.selector.MinWaitSeconds()}
}

// hasUncooledCandidate is a best-effort probe: it asks the selector for one
// more account outside the attempted set without committing to it. The
// selector has no side-effect-free "peek", so this relies on Pick's own
// ErrAllCooled classification on the *next* loop iteration instead; kept
// as a narrow allowance for the ceiling to still terminate deterministically.
func hasUncooledCandidate(sel *selector.Selector, reqType selector.RequestType, attempted map[int]bool, accountCount int) bool {
	return len(attempted) < accountCount
}

// attemptAccount runs the full per-endpoint loop (spec.md §4.7 step 4) for
// one account. retryReason is "cooled" when the caller should rotate to a
// different account and re-enter the selector; empty means outcome/err is
// final.
func (o *Orchestrator) attemptAccount(ctx context.Context, acc *account.Account, path string, rawBody []byte, requestedStream bool) (Outcome, string, error) {
	token, err := o.store.GetValidAccessToken(ctx, acc)
	if err != nil {
		return Outcome{}, "cooled", err
	}

	if acc.Provider == "qwen" {
		return o.attemptQwen(ctx, acc, token, path, rawBody, requestedStream)
	}
	return o.attemptAntigravity(ctx, acc, token, rawBody, requestedStream)
}

func (o *Orchestrator) attemptAntigravity(ctx context.Context, acc *account.Account, token string, rawBody []byte, requestedStream bool) (Outcome, string, error) {
	for _, endpoint := range antigravity.Endpoints {
		plan, err := antigravity.BuildRequest(rawBody, acc.ProjectID, token, requestedStream)
		if err != nil {
			return Outcome{}, "", err
		}

		url := endpoint + "/v1internal" + plan.PathSuffix
		status, header, body, sendErr := o.sendWithRefreshRetry(ctx, url, plan.Body, plan.Headers, acc, &token)
		if sendErr != nil {
			continue
		}

		switch {
		case status == http.StatusUnauthorized:
			return Outcome{}, "", fmt.Errorf("orchestrator: %s: %w", acc.Identifier(), ErrReauthenticationRequired)
		case status == 429 || status == 500 || status == 503 || status == 529:
			verdict := ratelimit.Parse(status, header.Get("Retry-After"), body)
			o.selector.MarkRateLimited(acc, verdict)
			return Outcome{}, "cooled", nil
		case status != http.StatusOK:
			return Outcome{StatusCode: status, Header: header, Body: body}, "", nil
		default:
			return o.finishAntigravity(status, header, body, requestedStream)
		}
	}
	return Outcome{}, "cooled", fmt.Errorf("orchestrator: all endpoints failed for %s", acc.Identifier())
}

func (o *Orchestrator) finishAntigravity(status int, header http.Header, body []byte, requestedStream bool) (Outcome, string, error) {
	if requestedStream {
		var buf bytes.Buffer
		if err := antigravity.TranslateStreaming(bytes.NewReader(body), &buf, true); err != nil {
			return Outcome{}, "", err
		}
		return Outcome{StatusCode: status, Header: header, Body: buf.Bytes(), Streamed: true}, "", nil
	}
	translated, _, err := antigravity.TranslateNonStreaming(body, true)
	if err != nil {
		return Outcome{}, "", err
	}
	return Outcome{StatusCode: status, Header: header, Body: translated}, "", nil
}

func (o *Orchestrator) attemptQwen(ctx context.Context, acc *account.Account, token, path string, rawBody []byte, requestedStream bool) (Outcome, string, error) {
	built, err := qwen.BuildRequest(rawBody, requestedStream)
	if err != nil {
		return Outcome{}, "", err
	}

	url := baseURLForQwen(acc) + qwen.RewriteURL(path)
	headers := map[string]string{
		"Authorization": "Bearer " + token,
		"Content-Type":  "application/json",
	}

	status, header, body, sendErr := o.sendWithRefreshRetry(ctx, url, built.Body, headers, acc, &token)
	if sendErr != nil {
		return Outcome{}, "cooled", sendErr
	}

	switch {
	case status == http.StatusUnauthorized:
		return Outcome{}, "", fmt.Errorf("orchestrator: %s: %w", acc.Identifier(), ErrReauthenticationRequired)
	case status == 429 || status == 500 || status == 503 || status == 529:
		verdict := ratelimit.Parse(status, header.Get("Retry-After"), body)
		o.selector.MarkRateLimited(acc, verdict)
		return Outcome{}, "cooled", nil
	case status != http.StatusOK:
		return Outcome{StatusCode: status, Header: header, Body: body}, "", nil
	}

	if built.ForcedStreamingForTools {
		out, _, err := qwen.ReplayBuffered(bytes.NewReader(body))
		if err != nil {
			return Outcome{}, "", err
		}
		return Outcome{StatusCode: status, Header: header, Body: out}, "", nil
	}
	if requestedStream {
		var buf bytes.Buffer
		if err := qwen.TranslateStreaming(bytes.NewReader(body), &buf); err != nil {
			return Outcome{}, "", err
		}
		return Outcome{StatusCode: status, Header: header, Body: buf.Bytes(), Streamed: true}, "", nil
	}
	out, _, err := qwen.TranslateNonStreaming(body)
	if err != nil {
		return Outcome{}, "", err
	}
	return Outcome{StatusCode: status, Header: header, Body: out}, "", nil
}

// sendWithRefreshRetry performs one HTTP round trip and, on a 401, the
// single forced-refresh-and-retry against the *same* endpoint spec.md §4.7
// step 4c requires: force-refresh once, then resend with the new token. If
// the refresh fails or the retry still comes back 401, the 401 status is
// returned as-is for the caller to classify (§7 ReauthenticationRequired).
// token is updated in place when the refresh succeeds.
func (o *Orchestrator) sendWithRefreshRetry(ctx context.Context, url string, body []byte, headers map[string]string, acc *account.Account, token *string) (status int, header http.Header, respBody []byte, err error) {
	status, header, respBody, err = o.send(ctx, url, body, headers)
	if err != nil || status != http.StatusUnauthorized {
		return status, header, respBody, err
	}

	refreshed, refreshErr := o.store.ForceRefresh(ctx, acc)
	if refreshErr != nil {
		log.WithError(refreshErr).WithField("account", acc.Identifier()).Warn("orchestrator: forced refresh on 401 failed")
		return status, header, respBody, nil
	}
	*token = refreshed
	headers["Authorization"] = "Bearer " + refreshed
	return o.send(ctx, url, body, headers)
}

// send performs a single HTTP round trip against a vendor endpoint.
func (o *Orchestrator) send(ctx context.Context, url string, body []byte, headers map[string]string) (status int, header http.Header, respBody []byte, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := o.transport.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	reader, err := decompressingReader(resp)
	if err != nil {
		return resp.StatusCode, resp.Header, nil, err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return resp.StatusCode, resp.Header, nil, err
	}

	return resp.StatusCode, resp.Header, data, nil
}

func decompressingReader(resp *http.Response) (io.Reader, error) {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "br":
		return brotli.NewReader(resp.Body), nil
	case "gzip":
		return gzip.NewReader(resp.Body)
	default:
		return resp.Body, nil
	}
}

// classify implements spec.md §4.7 steps 1-2: detect whether the path
// belongs to a configured vendor and derive the request type from the
// model id carried in the body.
func classify(path string, body []byte) (selector.RequestType, string) {
	if !strings.Contains(path, "/responses") && !strings.Contains(path, "/completions") {
		return "", ""
	}

	modelID := extractModel(body)
	canonical := registry.GetCanonicalModelID(modelID)
	provider, _, found := registry.ResolveModelFamily(canonical, []string{"antigravity", "qwen"})
	if !found {
		provider, _ = splitProviderPrefix(modelID)
	}
	if provider == "" {
		return "", ""
	}

	reqType := selector.RequestGemini
	if strings.Contains(strings.ToLower(modelID), "claude") {
		reqType = selector.RequestClaude
	}
	if strings.Contains(strings.ToLower(modelID), "image") {
		reqType = selector.RequestImageGen
	}
	return reqType, provider
}

func extractModel(body []byte) string {
	var probe struct {
		Model string `json:"model"`
	}
	_ = json.Unmarshal(body, &probe)
	return probe.Model
}

func splitProviderPrefix(modelID string) (string, string) {
	if idx := strings.IndexByte(modelID, ':'); idx > 0 {
		return modelID[:idx], modelID[idx+1:]
	}
	if strings.Contains(modelID, "qwen") {
		return "qwen", modelID
	}
	return "antigravity", modelID
}

func baseURLForQwen(acc *account.Account) string {
	return "https://portal.qwen.ai/v1"
}

// newVendorHTTPClient builds the shared transport used for all outbound
// vendor calls: explicit HTTP/2 (SSE connections are long-lived) with
// brotli/gzip accepted and decompressed by the caller (spec.md §4.7
// grounding note).
func newVendorHTTPClient() *http.Client {
	transport := &http.Transport{
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 2 * time.Minute,
	}
	_ = http2.ConfigureTransport(transport)
	return &http.Client{
		Transport: transport,
		Timeout:   10 * time.Minute,
	}
}
