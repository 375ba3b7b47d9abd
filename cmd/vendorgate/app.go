package main

import (
	"context"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/llmbridge/vendorcore/internal/config"
	"github.com/llmbridge/vendorcore/internal/oauth"
	"github.com/llmbridge/vendorcore/internal/orchestrator"
	"github.com/llmbridge/vendorcore/internal/secretstore"
	"github.com/llmbridge/vendorcore/internal/secretstore/backup"
	"github.com/llmbridge/vendorcore/internal/secretstore/postgres"
	"github.com/llmbridge/vendorcore/internal/secretstore/sqlite"
	"github.com/llmbridge/vendorcore/internal/selector"
	"github.com/llmbridge/vendorcore/internal/tokenstore"
)

// app bundles the wiring every subcommand needs: secret-store backend,
// OAuth service, Token Store, Selector, and Orchestrator.
type app struct {
	cfg          *config.Config
	oauthService *oauth.Service
	store        *tokenstore.Store
	selector     *selector.Selector
	orchestrator *orchestrator.Orchestrator

	closers []func() error
}

func newApp(cfg *config.Config) (*app, error) {
	backend, closer, err := openSecretStore(cfg.SecretStore)
	if err != nil {
		return nil, fmt.Errorf("open secret store: %w", err)
	}

	var exporter tokenstore.Exporter
	if cfg.SecretStore.Backup.Enabled {
		exp, err := backup.New(
			cfg.SecretStore.Backup.Endpoint,
			cfg.SecretStore.Backup.AccessKey,
			cfg.SecretStore.Backup.SecretKey,
			cfg.SecretStore.Backup.Bucket,
			"vendorgate",
			cfg.SecretStore.Backup.UseSSL,
		)
		if err != nil {
			log.WithError(err).Warn("vendorgate: backup exporter disabled, failed to initialize")
		} else {
			exporter = exp
		}
	}

	oauthService := oauth.NewService(http.DefaultClient)
	resolver := func(provider string) oauth.Driver { return oauthService.Driver(provider) }

	store := tokenstore.New(backend, resolver, exporter)
	if err := store.Initialize(context.Background()); err != nil {
		return nil, fmt.Errorf("initialize token store: %w", err)
	}

	sel := selector.New(store)
	orch := orchestrator.New(store, sel)

	a := &app{
		cfg:          cfg,
		oauthService: oauthService,
		store:        store,
		selector:     sel,
		orchestrator: orch,
		closers:      []func() error{closer},
	}
	return a, nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		if c == nil {
			continue
		}
		if err := c(); err != nil {
			log.WithError(err).Warn("vendorgate: error during shutdown")
		}
	}
}

func openSecretStore(cfg config.SecretStoreConfig) (secretstore.Store, func() error, error) {
	switch cfg.Driver {
	case "postgres":
		store, err := postgres.Open(context.Background(), cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { store.Close(); return nil }, nil
	case "sqlite", "":
		store, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown secret store driver %q", cfg.Driver)
	}
}
