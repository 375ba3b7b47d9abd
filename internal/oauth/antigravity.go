package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Antigravity OAuth constants (spec.md §6). Client id/secret and the
// callback port are fixed, matching the vendor's registered redirect URI.
const (
	AntigravityClientID     = "1071006060591-tmhssin2h21lcre235vtolojh4g403ep.apps.googleusercontent.com"
	AntigravityClientSecret = "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"
	antigravityAuthURL      = "https://accounts.google.com/o/oauth2/v2/auth"
	antigravityTokenURL     = "https://oauth2.googleapis.com/token"
	antigravityUserInfoURL  = "https://www.googleapis.com/oauth2/v2/userinfo"
	antigravityCallbackPort = 51121
	antigravityDefaultProject = "default-antigravity-project"
)

var antigravityScopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/cloud-platform",
}

// projectProbeEndpoints are tried concurrently to discover a project id
// when the OAuth state carried none (spec.md §4.1: "probes a sequence of
// vendor-dependent endpoints").
var projectProbeEndpoints = []string{
	"https://cloudcode-pa.googleapis.com/v1internal:loadCodeAssist",
	"https://daily-cloudcode-pa.sandbox.googleapis.com/v1internal:loadCodeAssist",
}

// AntigravityDriver implements the Authorization Code + PKCE flow against
// Google's OAuth endpoint (spec.md §4.1, §6).
type AntigravityDriver struct {
	httpClient *http.Client
}

// NewAntigravityDriver builds a driver using the given HTTP client (callers
// typically share the ambient config's proxy-aware client).
func NewAntigravityDriver(client *http.Client) *AntigravityDriver {
	if client == nil {
		client = http.DefaultClient
	}
	return &AntigravityDriver{httpClient: client}
}

func callbackURL() string {
	return fmt.Sprintf("http://localhost:%d/oauth-callback", antigravityCallbackPort)
}

// StartAuthorizationCodeFlow builds the authorization URL and PKCE pair
// (spec.md §4.1 startAuthorizationCodeFlow).
func (d *AntigravityDriver) StartAuthorizationCodeFlow(projectID string) (authURL, verifier, state string, err error) {
	pkce, err := GeneratePKCECodes()
	if err != nil {
		return "", "", "", err
	}
	state, err = encodeState(pkce.CodeVerifier, projectID)
	if err != nil {
		return "", "", "", err
	}

	q := url.Values{}
	q.Set("client_id", AntigravityClientID)
	q.Set("redirect_uri", callbackURL())
	q.Set("response_type", "code")
	q.Set("scope", strings.Join(antigravityScopes, " "))
	q.Set("code_challenge", pkce.CodeChallenge)
	q.Set("code_challenge_method", "S256")
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	q.Set("state", state)

	return antigravityAuthURL + "?" + q.Encode(), pkce.CodeVerifier, state, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Error        string `json:"error,omitempty"`
	ErrorDesc    string `json:"error_description,omitempty"`
}

// ExchangeCode implements spec.md §4.1 exchangeCode(code, state).
func (d *AntigravityDriver) ExchangeCode(ctx context.Context, code, state string) (Tokens, error) {
	decoded, err := decodeState(state)
	if err != nil {
		return Tokens{}, err
	}

	t0 := time.Now()
	form := url.Values{}
	form.Set("client_id", AntigravityClientID)
	form.Set("client_secret", AntigravityClientSecret)
	form.Set("code", code)
	form.Set("code_verifier", decoded.Verifier)
	form.Set("redirect_uri", callbackURL())
	form.Set("grant_type", "authorization_code")

	resp, err := d.postForm(ctx, antigravityTokenURL, form)
	if err != nil {
		return Tokens{}, err
	}
	if resp.RefreshToken == "" {
		return Tokens{}, ErrMissingRefreshToken
	}

	tokens := Tokens{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    t0.UnixMilli() + resp.ExpiresIn*1000,
		ProjectID:    decoded.ProjectID,
	}

	tokens.Email = d.fetchEmail(ctx, tokens.AccessToken)

	if tokens.ProjectID == "" {
		if pid, ok := d.discoverProjectID(ctx, tokens.AccessToken); ok {
			tokens.ProjectID = pid
		} else {
			tokens.ProjectID = antigravityDefaultProject
		}
	}

	return tokens, nil
}

// Refresh implements the oauth.Driver surface (spec.md §4.1 refresh).
func (d *AntigravityDriver) Refresh(refreshToken, projectID string) (Tokens, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	t0 := time.Now()
	form := url.Values{}
	form.Set("client_id", AntigravityClientID)
	form.Set("client_secret", AntigravityClientSecret)
	form.Set("refresh_token", refreshToken)
	form.Set("grant_type", "refresh_token")

	resp, err := d.postForm(ctx, antigravityTokenURL, form)
	if err != nil {
		return Tokens{}, err
	}

	newRefresh := resp.RefreshToken
	if newRefresh == "" {
		// Carry the previous refresh token forward (spec.md §4.1).
		newRefresh = refreshToken
	}

	return Tokens{
		AccessToken:  resp.AccessToken,
		RefreshToken: newRefresh,
		ExpiresAt:    t0.UnixMilli() + resp.ExpiresIn*1000,
		ProjectID:    projectID,
	}, nil
}

func (d *AntigravityDriver) postForm(ctx context.Context, endpoint string, form url.Values) (tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("oauth: antigravity token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("oauth: read token response: %w", err)
	}

	var parsed tokenResponse
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr != nil {
		return tokenResponse{}, fmt.Errorf("oauth: parse token response: %w", jsonErr)
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error == "invalid_grant" {
			return tokenResponse{}, ErrInvalidGrant
		}
		return tokenResponse{}, &ProtocolError{Code: parsed.Error, Description: parsed.ErrorDesc}
	}

	return parsed, nil
}

// fetchEmail is best-effort per spec.md §4.1: failure never fails the flow.
func (d *AntigravityDriver) fetchEmail(ctx context.Context, accessToken string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, antigravityUserInfoURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Debug("oauth: userinfo fetch failed (non-fatal)")
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return ""
	}
	return info.Email
}

// discoverProjectID probes the documented fallback endpoints concurrently
// and returns the first success. Grounded in spec.md §4.7's endpoint
// fallback-order pattern, made concurrent here because it is a one-shot
// discovery call, not a streaming request.
func (d *AntigravityDriver) discoverProjectID(ctx context.Context, accessToken string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	type result struct {
		projectID string
		ok        bool
	}
	results := make([]result, len(projectProbeEndpoints))

	g, gctx := errgroup.WithContext(ctx)
	for i, endpoint := range projectProbeEndpoints {
		i, endpoint := i, endpoint
		g.Go(func() error {
			pid, ok := d.probeProjectID(gctx, endpoint, accessToken)
			results[i] = result{projectID: pid, ok: ok}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.ok {
			return r.projectID, true
		}
	}
	return "", false
}

func (d *AntigravityDriver) probeProjectID(ctx context.Context, endpoint, accessToken string) (string, bool) {
	reqID := uuid.NewString()
	body := strings.NewReader(fmt.Sprintf(`{"metadata":{"pluginType":"GEMINI"},"requestId":%q}`, reqID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", false
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	var parsed struct {
		CloudaicompanionProject string `json:"cloudaicompanionProject"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", false
	}
	if parsed.CloudaicompanionProject == "" {
		return "", false
	}
	return parsed.CloudaicompanionProject, true
}

// GetCallbackPort returns the fixed local callback port for a provider's
// standalone OAuth listener (used by the thin command surface).
func GetCallbackPort(provider string) int {
	switch provider {
	case "antigravity":
		return antigravityCallbackPort
	case "qwen":
		return 0 // device flow has no HTTP callback
	default:
		return 0
	}
}

// GenerateRandomState returns a URL-safe random identifier, used for
// WebUI-mode OAuth registry keys that don't themselves carry PKCE state.
func GenerateRandomState() (string, error) {
	v, err := generateVerifier()
	if err != nil {
		return "", err
	}
	return strconv.Itoa(int(time.Now().UnixNano())) + "-" + v[:16], nil
}
