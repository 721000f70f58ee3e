package main

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/emberchat/ember/internal/server/config"
	"github.com/emberchat/ember/internal/server/fixtures"
	"github.com/emberchat/ember/internal/server/handler"
	"github.com/emberchat/ember/internal/server/hub"
	"github.com/emberchat/ember/pkg/jwt"
	pkglog "github.com/emberchat/ember/pkg/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ProgramName: "ember-mockserver",
	})
	logger := pkglog.L()

	// Token manager with an ephemeral keypair; tokens do not survive a
	// restart, matching the rest of the in-memory world.
	jwtManager, err := jwt.NewManager(cfg.JWT.TokenExpiry, "ember-mockserver")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token manager")
	}

	// Seeded world and push hub
	world := fixtures.Seed()
	pushHub := hub.NewHub()
	go pushHub.Run()

	// Initialize HTTP handler
	httpHandler := handler.NewHandler(world, pushHub, jwtManager, cfg.WebSocket)

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	// Register routes
	httpHandler.RegisterRoutes(r)

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info().Str("addr", addr).Msg("ember-mockserver starting")
	if err := r.Run(addr); err != nil {
		logger.Fatal().Err(err).Msg("failed to start server")
	}
}
