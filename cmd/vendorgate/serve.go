package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/llmbridge/vendorcore/internal/api/handlers/management"
	"github.com/llmbridge/vendorcore/internal/managementasset"
)

const shutdownGrace = 10 * time.Second

// cmdServe runs the gateway's OAuth management surface over HTTP, for hosts
// that prefer driving login/status/cancel remotely instead of embedding the
// package directly (spec.md §6 command surface, extended).
func (a *app) cmdServe(args []string) {
	handler := management.New(a.oauthService, a.store)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/oauth-callback", handler.OAuthCallback)

	if managementasset.HasEmbeddedHTML() {
		router.GET("/", func(c *gin.Context) {
			c.Data(http.StatusOK, "text/html; charset=utf-8", managementasset.GetEmbeddedHTML())
		})
	}

	mgmt := router.Group("/v0/management/oauth")
	mgmt.POST("/start", handler.OAuthStart)
	mgmt.GET("/status/:state", handler.OAuthStatus)
	mgmt.POST("/cancel/:state", handler.OAuthCancel)

	router.POST("/v0/management/count-tokens", handler.CountTokens)

	srv := &http.Server{Addr: a.cfg.Listen, Handler: router}

	go func() {
		log.WithField("listen", a.cfg.Listen).Info("vendorgate: management API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("vendorgate: serve failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Println("vendorgate: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("vendorgate: graceful shutdown failed")
	}
}
