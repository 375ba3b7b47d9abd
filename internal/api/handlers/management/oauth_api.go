// Package management exposes the thin OAuth HTTP surface (spec.md §4.7.1
// "serve" subcommand): start/status/cancel, plus the device-flow polling
// goroutine for Qwen. It is a direct adaptation of the teacher's
// OAuthStart/OAuthStatus/OAuthCancel surface, narrowed to the two vendors
// this gateway fronts.
package management

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/llmbridge/vendorcore/internal/oauth"
	"github.com/llmbridge/vendorcore/internal/tokenstore"
)

// Handler bundles the OAuth service and Token Store the management surface
// drives. One instance is wired into the router at startup.
type Handler struct {
	oauthService *oauth.Service
	store        *tokenstore.Store
}

func New(oauthService *oauth.Service, store *tokenstore.Store) *Handler {
	return &Handler{oauthService: oauthService, store: store}
}

// OAuthStartRequest is the body of POST /v0/management/oauth/start.
type OAuthStartRequest struct {
	Provider string `json:"provider" binding:"required"`
}

// OAuthStartResponse mirrors spec.md §6's command surface, covering both
// the Authorization Code+PKCE shape (antigravity) and the Device+PKCE
// shape (qwen).
type OAuthStartResponse struct {
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	FlowType string `json:"flow_type,omitempty"` // "oauth" or "device"

	AuthURL string `json:"auth_url,omitempty"`
	State   string `json:"state,omitempty"`

	DeviceCode      string `json:"device_code,omitempty"`
	UserCode        string `json:"user_code,omitempty"`
	VerificationURL string `json:"verification_url,omitempty"`
	ExpiresIn       int    `json:"expires_in,omitempty"`
	Interval        int    `json:"interval,omitempty"`
}

// OAuthStart handles POST /v0/management/oauth/start.
func (h *Handler) OAuthStart(c *gin.Context) {
	var req OAuthStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, OAuthStartResponse{Status: "error", Error: "provider is required"})
		return
	}

	switch req.Provider {
	case "qwen":
		h.startQwenDeviceFlow(c)
	case "antigravity":
		h.startAntigravityFlow(c)
	default:
		c.JSON(http.StatusBadRequest, OAuthStartResponse{
			Status: "error",
			Error:  fmt.Sprintf("unsupported provider %q (expected antigravity or qwen)", req.Provider),
		})
	}
}

func (h *Handler) startAntigravityFlow(c *gin.Context) {
	driver, ok := h.oauthService.Driver("antigravity").(*oauth.AntigravityDriver)
	if !ok {
		c.JSON(http.StatusInternalServerError, OAuthStartResponse{Status: "error", Error: "antigravity driver unavailable"})
		return
	}

	authURL, verifier, state, err := driver.StartAuthorizationCodeFlow("")
	if err != nil {
		c.JSON(http.StatusInternalServerError, OAuthStartResponse{Status: "error", Error: err.Error()})
		return
	}

	request := h.oauthService.Registry().Create(state, "antigravity", oauth.ModeWebUI)
	request.CodeVerifier = verifier

	c.JSON(http.StatusOK, OAuthStartResponse{
		Status:   "ok",
		FlowType: "oauth",
		AuthURL:  authURL,
		State:    state,
	})
}

func (h *Handler) startQwenDeviceFlow(c *gin.Context) {
	driver, ok := h.oauthService.Driver("qwen").(*oauth.QwenDriver)
	if !ok {
		c.JSON(http.StatusInternalServerError, OAuthStartResponse{Status: "error", Error: "qwen driver unavailable"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 6*time.Minute)
	flow, err := driver.StartDeviceFlow(ctx)
	if err != nil {
		cancel()
		c.JSON(http.StatusInternalServerError, OAuthStartResponse{Status: "error", Error: err.Error()})
		return
	}

	state := uuid.NewString()
	request := h.oauthService.Registry().Create(state, "qwen", oauth.ModeCLI)
	request.DeviceCode = flow.DeviceCode
	request.UserCode = flow.UserCode
	request.VerificationURIComplete = flow.VerificationURIComplete
	request.CodeVerifier = flow.CodeVerifier

	go h.pollQwenToken(ctx, cancel, driver, flow, request.State)

	c.JSON(http.StatusOK, OAuthStartResponse{
		Status:          "ok",
		FlowType:        "device",
		State:           request.State,
		DeviceCode:      flow.DeviceCode,
		UserCode:        flow.UserCode,
		VerificationURL: flow.VerificationURIComplete,
		ExpiresIn:       flow.ExpiresIn,
		Interval:        int(flow.Interval.Seconds()),
	})
}

func (h *Handler) pollQwenToken(ctx context.Context, cancel context.CancelFunc, driver *oauth.QwenDriver, flow oauth.DeviceFlow, state string) {
	defer cancel()

	tokens, err := driver.PollDeviceToken(ctx, flow.DeviceCode, flow.CodeVerifier)
	if err != nil {
		h.oauthService.Registry().Fail(state, err.Error())
		log.WithError(err).WithField("state", state).Warn("management: qwen device poll failed")
		return
	}

	if _, err := h.store.AddAccount(context.Background(), "qwen", tokens, "UNKNOWN"); err != nil {
		h.oauthService.Registry().Fail(state, err.Error())
		log.WithError(err).Warn("management: failed to persist qwen account")
		return
	}

	h.oauthService.Registry().Complete(state, &oauth.Result{State: state, Code: "success"})
	log.WithField("state", state).Info("management: qwen device authorization complete")
}

// OAuthCallback handles the Authorization Code redirect for antigravity
// (GET /oauth-callback?code=...&state=...).
func (h *Handler) OAuthCallback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		c.Data(http.StatusBadRequest, "text/html; charset=utf-8", []byte(oauth.HTMLError("missing code or state")))
		return
	}

	request := h.oauthService.Registry().Get(state)
	if request == nil {
		c.Data(http.StatusNotFound, "text/html; charset=utf-8", []byte(oauth.HTMLError("unknown or expired oauth state")))
		return
	}

	driver, ok := h.oauthService.Driver("antigravity").(*oauth.AntigravityDriver)
	if !ok {
		c.Data(http.StatusInternalServerError, "text/html; charset=utf-8", []byte(oauth.HTMLError("antigravity driver unavailable")))
		return
	}

	tokens, err := driver.ExchangeCode(c.Request.Context(), code, state)
	if err != nil {
		h.oauthService.Registry().Fail(state, err.Error())
		c.Data(http.StatusInternalServerError, "text/html; charset=utf-8", []byte(oauth.HTMLError(err.Error())))
		return
	}

	if _, err := h.store.AddAccount(c.Request.Context(), "antigravity", tokens, "UNKNOWN"); err != nil {
		h.oauthService.Registry().Fail(state, err.Error())
		c.Data(http.StatusInternalServerError, "text/html; charset=utf-8", []byte(oauth.HTMLError(err.Error())))
		return
	}

	h.oauthService.Registry().Complete(state, &oauth.Result{State: state, Code: "success"})
	if request.Mode == oauth.ModeWebUI {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(oauth.HTMLSuccessWithPostMessage("antigravity", state)))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(oauth.HTMLSuccess()))
}

// OAuthStatus handles GET /v0/management/oauth/status/:state.
func (h *Handler) OAuthStatus(c *gin.Context) {
	state := c.Param("state")
	if state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "state parameter is required"})
		return
	}

	status, ok := h.oauthService.Registry().GetStatus(state)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "oauth state not found or expired"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(status)})
}

// OAuthCancel handles POST /v0/management/oauth/cancel/:state.
func (h *Handler) OAuthCancel(c *gin.Context) {
	state := c.Param("state")
	if state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "state parameter is required"})
		return
	}
	if !h.oauthService.Registry().Cancel(state) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "oauth state not found or already completed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
