// Command vendorgate is the thin command surface over the OAuth Driver and
// Token Store (spec.md §6 "Command surface (thin)"): login, logout,
// status, add-account, accounts, remove-account, and an optional serve
// subcommand exposing the OAuthStart/Status/Cancel HTTP surface.
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/llmbridge/vendorcore/internal/config"
	"github.com/llmbridge/vendorcore/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	configPath := os.Getenv("VENDORGATE_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "vendorgate: load config:", err)
		os.Exit(1)
	}
	if err := logging.Configure(cfg.Log); err != nil {
		fmt.Fprintln(os.Stderr, "vendorgate: configure logging:", err)
		os.Exit(1)
	}

	app, err := newApp(cfg)
	if err != nil {
		log.WithError(err).Fatal("vendorgate: failed to initialize")
	}
	defer app.Close()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "login":
		app.cmdLogin(args)
	case "logout":
		app.cmdLogout(args)
	case "status":
		app.cmdStatus(args)
	case "add-account":
		app.cmdAddAccount(args)
	case "accounts":
		app.cmdAccounts(args)
	case "remove-account":
		app.cmdRemoveAccount(args)
	case "serve":
		app.cmdServe(args)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: vendorgate <command> [args]

commands:
  login <provider>         start an OAuth flow (antigravity|qwen)
  logout <index>           disable an account
  status                   list accounts and recent activity
  add-account <provider>   alias for login
  accounts                 list accounts (tier, cooldown, disabled state)
  remove-account <index>   permanently remove an account
  serve                    run the HTTP gateway + management API`)
}
