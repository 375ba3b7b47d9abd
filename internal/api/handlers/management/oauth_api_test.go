package management

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/llmbridge/vendorcore/internal/oauth"
	"github.com/llmbridge/vendorcore/internal/secretstore"
	"github.com/llmbridge/vendorcore/internal/tokenstore"
)

type memBackend struct {
	data map[string][]byte
}

func newMemBackend() *memBackend { return &memBackend{data: make(map[string][]byte)} }

func (m *memBackend) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, secretstore.ErrNotFound
	}
	return v, nil
}

func (m *memBackend) Put(ctx context.Context, key string, value []byte) error {
	m.data[key] = value
	return nil
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := tokenstore.New(newMemBackend(), func(string) oauth.Driver { return nil }, nil)
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	svc := oauth.NewService(http.DefaultClient)
	return New(svc, store)
}

func TestOAuthStartAntigravityReturnsAuthURLAndState(t *testing.T) {
	h := newTestHandler(t)
	router := gin.New()
	router.POST("/start", h.OAuthStart)

	req := httptest.NewRequest(http.MethodPost, "/start", strings.NewReader(`{"provider":"antigravity"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
	var resp OAuthStartResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" || resp.FlowType != "oauth" || resp.AuthURL == "" || resp.State == "" {
		t.Errorf("response = %+v, want ok/oauth with auth url and state", resp)
	}

	status, ok := h.oauthService.Registry().GetStatus(resp.State)
	if !ok || status != oauth.StatusPending {
		t.Errorf("registry status = (%v, %v), want (pending, true)", status, ok)
	}
}

func TestOAuthStartRejectsUnknownProvider(t *testing.T) {
	h := newTestHandler(t)
	router := gin.New()
	router.POST("/start", h.OAuthStart)

	req := httptest.NewRequest(http.MethodPost, "/start", strings.NewReader(`{"provider":"bogus"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestOAuthStartRejectsMissingBody(t *testing.T) {
	h := newTestHandler(t)
	router := gin.New()
	router.POST("/start", h.OAuthStart)

	req := httptest.NewRequest(http.MethodPost, "/start", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a missing provider field", rec.Code)
	}
}

func TestOAuthStatusUnknownStateReturns404(t *testing.T) {
	h := newTestHandler(t)
	router := gin.New()
	router.GET("/status/:state", h.OAuthStatus)

	req := httptest.NewRequest(http.MethodGet, "/status/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestOAuthStatusReflectsRegistryState(t *testing.T) {
	h := newTestHandler(t)
	req := h.oauthService.Registry().Create("state-123", "antigravity", oauth.ModeWebUI)
	_ = req

	router := gin.New()
	router.GET("/status/:state", h.OAuthStatus)

	r := httptest.NewRequest(http.MethodGet, "/status/state-123", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "pending" {
		t.Errorf("status field = %q, want pending", body["status"])
	}
}

func TestOAuthCancelMarksPendingRequestCancelled(t *testing.T) {
	h := newTestHandler(t)
	h.oauthService.Registry().Create("cancel-me", "antigravity", oauth.ModeWebUI)

	router := gin.New()
	router.POST("/cancel/:state", h.OAuthCancel)

	req := httptest.NewRequest(http.MethodPost, "/cancel/cancel-me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
	status, _ := h.oauthService.Registry().GetStatus("cancel-me")
	if status != oauth.StatusCancelled {
		t.Errorf("registry status = %v, want cancelled", status)
	}
}

func TestOAuthCancelUnknownStateReturns404(t *testing.T) {
	h := newTestHandler(t)
	router := gin.New()
	router.POST("/cancel/:state", h.OAuthCancel)

	req := httptest.NewRequest(http.MethodPost, "/cancel/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestOAuthCallbackMissingParamsReturnsBadRequest(t *testing.T) {
	h := newTestHandler(t)
	router := gin.New()
	router.GET("/oauth-callback", h.OAuthCallback)

	req := httptest.NewRequest(http.MethodGet, "/oauth-callback", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCountTokensReturnsPositiveEstimate(t *testing.T) {
	h := newTestHandler(t)
	router := gin.New()
	router.POST("/count-tokens", h.CountTokens)

	req := httptest.NewRequest(http.MethodPost, "/count-tokens", strings.NewReader(`{"fragments":["hello world","second fragment"]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
	var resp CountTokensResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Tokens <= 0 {
		t.Errorf("Tokens = %d, want > 0 for non-empty fragments", resp.Tokens)
	}
}

func TestCountTokensRejectsMissingFragments(t *testing.T) {
	h := newTestHandler(t)
	router := gin.New()
	router.POST("/count-tokens", h.CountTokens)

	req := httptest.NewRequest(http.MethodPost, "/count-tokens", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a missing fragments field", rec.Code)
	}
}

func TestOAuthCallbackUnknownStateReturns404(t *testing.T) {
	h := newTestHandler(t)
	router := gin.New()
	router.GET("/oauth-callback", h.OAuthCallback)

	req := httptest.NewRequest(http.MethodGet, "/oauth-callback?code=abc&state=unknown", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for an unknown state", rec.Code)
	}
}
