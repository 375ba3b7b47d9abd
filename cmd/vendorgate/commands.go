package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/llmbridge/vendorcore/internal/api/handlers/management"
	"github.com/llmbridge/vendorcore/internal/logging"
	"github.com/llmbridge/vendorcore/internal/oauth"
)

// cmdLogin runs the OAuth flow for the given provider and blocks until the
// registry reports completion or the configured timeout elapses (spec.md
// §4.7.1).
func (a *app) cmdLogin(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: vendorgate login <antigravity|qwen>")
		os.Exit(1)
	}
	provider := args[0]

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.OAuthCallback.TimeoutSeconds)*time.Second)
	defer cancel()

	switch provider {
	case "antigravity":
		a.loginAntigravity(ctx)
	case "qwen":
		a.loginQwen(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unsupported provider %q (expected antigravity or qwen)\n", provider)
		os.Exit(1)
	}
}

// loginAntigravity starts the Authorization Code+PKCE flow and blocks on a
// local callback listener bound to the fixed port the redirect_uri already
// advertises (oauth.GetCallbackPort), until the registry reports the
// exchange is done or ctx expires.
func (a *app) loginAntigravity(ctx context.Context) {
	authURL, verifier, state, err := a.oauthService.Antigravity.StartAuthorizationCodeFlow("")
	if err != nil {
		fmt.Fprintln(os.Stderr, "vendorgate: start auth flow:", err)
		os.Exit(1)
	}
	request := a.oauthService.Registry().Create(state, "antigravity", oauth.ModeCLI)
	request.CodeVerifier = verifier

	fmt.Println("Open this URL to authorize vendorgate:")
	fmt.Println(authURL)

	handler := management.New(a.oauthService, a.store)
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.GET("/oauth-callback", handler.OAuthCallback)

	port := oauth.GetCallbackPort("antigravity")
	srv := &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", port), Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Warn("vendorgate: callback listener stopped")
		}
	}()
	defer srv.Shutdown(context.Background())

	select {
	case result := <-request.ResultChan:
		if result.Error != "" {
			fmt.Fprintln(os.Stderr, "vendorgate: oauth callback failed:", result.Error)
			os.Exit(1)
		}
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "vendorgate: timed out waiting for oauth callback")
		os.Exit(1)
	}

	snapshot := a.store.Snapshot()
	if len(snapshot) == 0 {
		fmt.Println("Login completed.")
		return
	}
	acc := snapshot[len(snapshot)-1]
	fmt.Printf("Logged in: %s (index %d)\n", acc.Identifier(), acc.Index)
}

func (a *app) loginQwen(ctx context.Context) {
	flow, err := a.oauthService.Qwen.StartDeviceFlow(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "vendorgate: start device flow:", err)
		os.Exit(1)
	}

	fmt.Printf("Open %s and enter code %s (or use: %s)\n", flow.VerificationURI, flow.UserCode, flow.VerificationURIComplete)

	tokens, err := a.oauthService.Qwen.PollDeviceToken(ctx, flow.DeviceCode, flow.CodeVerifier)
	if err != nil {
		fmt.Fprintln(os.Stderr, "vendorgate: device poll:", err)
		os.Exit(1)
	}
	acc, err := a.store.AddAccount(ctx, "qwen", tokens, "UNKNOWN")
	if err != nil {
		fmt.Fprintln(os.Stderr, "vendorgate: persist account:", err)
		os.Exit(1)
	}
	fmt.Printf("Logged in: %s (index %d)\n", acc.Identifier(), acc.Index)
}

// cmdAddAccount is an alias for login (spec.md §6 command surface).
func (a *app) cmdAddAccount(args []string) {
	a.cmdLogin(args)
}

// cmdLogout disables the given account index.
func (a *app) cmdLogout(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: vendorgate logout <index>")
		os.Exit(1)
	}
	idx, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, "vendorgate: invalid index:", args[0])
		os.Exit(1)
	}
	if err := a.store.DisableAccount(context.Background(), idx, "logged out via command surface"); err != nil {
		fmt.Fprintln(os.Stderr, "vendorgate: logout:", err)
		os.Exit(1)
	}
	fmt.Println("Account disabled.")
}

// cmdRemoveAccount permanently removes the given account index.
func (a *app) cmdRemoveAccount(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: vendorgate remove-account <index>")
		os.Exit(1)
	}
	idx, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, "vendorgate: invalid index:", args[0])
		os.Exit(1)
	}
	identifier, err := a.store.RemoveAccount(context.Background(), idx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "vendorgate: remove account:", err)
		os.Exit(1)
	}
	a.selector.ForgetAccount(identifier)
	fmt.Printf("Removed account %s.\n", identifier)
}

// cmdAccounts lists the live account set with tier and disabled state.
func (a *app) cmdAccounts(args []string) {
	snapshot := a.store.Snapshot()
	if len(snapshot) == 0 {
		fmt.Println("No accounts configured.")
		return
	}
	for _, acc := range snapshot {
		status := "active"
		if acc.Disabled {
			status = "disabled: " + acc.DisabledReason
		}
		fmt.Printf("[%d] %-10s %-30s tier=%-8s %s\n", acc.Index, acc.Provider, acc.Identifier(), acc.SubscriptionTier, status)
	}
}

// cmdStatus prints accounts plus recent audit activity (spec.md §4.7.1).
func (a *app) cmdStatus(args []string) {
	a.cmdAccounts(args)
	fmt.Println()
	fmt.Println("Recent activity:")
	lines := a.store.AuditLog()
	if len(lines) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, line := range lines {
		fmt.Println("  " + line)
	}
	logging.LogAudit(lines)
}
