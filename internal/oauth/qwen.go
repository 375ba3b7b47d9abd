package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Qwen OAuth constants (spec.md §6), grounded in
// other_examples/91179e50_yszxh-CLIProxyAPI__internal-auth-qwen-qwen_auth.go.go.
const (
	QwenDeviceCodeURL = "https://chat.qwen.ai/api/v1/oauth2/device/code"
	QwenTokenURL      = "https://chat.qwen.ai/api/v1/oauth2/token"
	QwenClientID      = "f0304373b74a44d2b584a3fb70ca9e56"
	qwenScope         = "openid profile email model.completion"
	qwenGrantType     = "urn:ietf:params:oauth:grant-type:device_code"

	qwenDefaultInterval = 5 * time.Second
	qwenMaxInterval     = 10 * time.Second
	qwenPollCeiling     = 5 * time.Minute
)

// DeviceFlow is the response from initiating device authorization
// (spec.md §4.1 startDeviceFlow).
type DeviceFlow struct {
	DeviceCode              string
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	ExpiresIn               int
	Interval                time.Duration
	CodeVerifier            string
}

// QwenDriver implements the Device Authorization + PKCE flow (spec.md §4.1).
type QwenDriver struct {
	httpClient *http.Client
}

func NewQwenDriver(client *http.Client) *QwenDriver {
	if client == nil {
		client = http.DefaultClient
	}
	return &QwenDriver{httpClient: client}
}

// StartDeviceFlow implements spec.md §4.1 startDeviceFlow().
func (d *QwenDriver) StartDeviceFlow(ctx context.Context) (DeviceFlow, error) {
	pkce, err := GeneratePKCECodes()
	if err != nil {
		return DeviceFlow{}, err
	}

	form := url.Values{}
	form.Set("client_id", QwenClientID)
	form.Set("scope", qwenScope)
	form.Set("code_challenge", pkce.CodeChallenge)
	form.Set("code_challenge_method", "S256")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, QwenDeviceCodeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return DeviceFlow{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return DeviceFlow{}, fmt.Errorf("oauth: qwen device code request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return DeviceFlow{}, fmt.Errorf("oauth: read device code response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return DeviceFlow{}, fmt.Errorf("oauth: qwen device code failed: %d: %s", resp.StatusCode, string(body))
	}

	var raw struct {
		DeviceCode              string `json:"device_code"`
		UserCode                string `json:"user_code"`
		VerificationURI         string `json:"verification_uri"`
		VerificationURIComplete string `json:"verification_uri_complete"`
		ExpiresIn               int    `json:"expires_in"`
		Interval                int    `json:"interval"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return DeviceFlow{}, fmt.Errorf("oauth: parse device code response: %w", err)
	}
	if raw.DeviceCode == "" {
		return DeviceFlow{}, fmt.Errorf("oauth: qwen device code missing in response")
	}

	interval := qwenDefaultInterval
	if raw.Interval > 0 {
		interval = time.Duration(raw.Interval) * time.Second
	}

	return DeviceFlow{
		DeviceCode:              raw.DeviceCode,
		UserCode:                raw.UserCode,
		VerificationURI:         raw.VerificationURI,
		VerificationURIComplete: raw.VerificationURIComplete,
		ExpiresIn:               raw.ExpiresIn,
		Interval:                interval,
		CodeVerifier:            pkce.CodeVerifier,
	}, nil
}

type qwenTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ResourceURL  string `json:"resource_url,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
}

// PollDeviceToken implements spec.md §4.1 pollDeviceToken, handling the RFC
// 8628 standard polling responses.
func (d *QwenDriver) PollDeviceToken(ctx context.Context, deviceCode, verifier string) (Tokens, error) {
	ctx, cancel := context.WithTimeout(ctx, qwenPollCeiling)
	defer cancel()

	interval := qwenDefaultInterval
	for {
		select {
		case <-ctx.Done():
			return Tokens{}, ErrDeviceCodeExpired
		case <-time.After(interval):
		}

		t0 := time.Now()
		resp, errType, err := d.pollOnce(ctx, deviceCode, verifier)
		if err != nil {
			return Tokens{}, err
		}
		switch errType {
		case "":
			return Tokens{
				AccessToken:  resp.AccessToken,
				RefreshToken: resp.RefreshToken,
				ExpiresAt:    t0.UnixMilli() + resp.ExpiresIn*1000,
			}, nil
		case "authorization_pending":
			continue
		case "slow_down":
			interval = time.Duration(float64(interval) * 1.5)
			if interval > qwenMaxInterval {
				interval = qwenMaxInterval
			}
			continue
		case "expired_token":
			return Tokens{}, ErrDeviceCodeExpired
		case "access_denied":
			return Tokens{}, ErrAccessDenied
		default:
			return Tokens{}, &ProtocolError{Code: errType}
		}
	}
}

// pollOnce issues one poll request. errType is "" on success, else the
// RFC 8628 error code for the caller's state machine above.
func (d *QwenDriver) pollOnce(ctx context.Context, deviceCode, verifier string) (qwenTokenResponse, string, error) {
	form := url.Values{}
	form.Set("grant_type", qwenGrantType)
	form.Set("client_id", QwenClientID)
	form.Set("device_code", deviceCode)
	form.Set("code_verifier", verifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, QwenTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return qwenTokenResponse{}, "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return qwenTokenResponse{}, "", fmt.Errorf("oauth: qwen poll request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return qwenTokenResponse{}, "", fmt.Errorf("oauth: read poll response: %w", err)
	}

	if resp.StatusCode == http.StatusOK {
		var parsed qwenTokenResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return qwenTokenResponse{}, "", fmt.Errorf("oauth: parse poll response: %w", err)
		}
		return parsed, "", nil
	}

	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return qwenTokenResponse{}, "", fmt.Errorf("oauth: qwen poll failed: %d: %s", resp.StatusCode, string(body))
	}
	return qwenTokenResponse{}, errResp.Error, nil
}

// Refresh implements the oauth.Driver surface (spec.md §4.1 refresh).
func (d *QwenDriver) Refresh(refreshToken, _ string) (Tokens, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", QwenClientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, QwenTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Tokens{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return Tokens{}, fmt.Errorf("oauth: qwen refresh request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Tokens{}, fmt.Errorf("oauth: read refresh response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error == "invalid_grant" {
			return Tokens{}, ErrInvalidGrant
		}
		return Tokens{}, fmt.Errorf("oauth: qwen refresh failed: %d: %s", resp.StatusCode, string(body))
	}

	t0 := time.Now()
	var parsed qwenTokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Tokens{}, fmt.Errorf("oauth: parse refresh response: %w", err)
	}

	newRefresh := parsed.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}

	return Tokens{
		AccessToken:  parsed.AccessToken,
		RefreshToken: newRefresh,
		ExpiresAt:    t0.UnixMilli() + parsed.ExpiresIn*1000,
	}, nil
}

// ResourceURL is populated after a successful exchange/refresh when Qwen's
// token response carries a non-default API base (spec.md §6: "Qwen base
// URL is portal.qwen.ai/v1 unless the OAuth token response specifies a
// resource_url"). Exposed via a side channel since Tokens doesn't carry it.
type qwenResourceCarrier struct {
	ResourceURL string
}
