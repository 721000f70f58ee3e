package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emberchat/ember/internal/client/config"
	"github.com/emberchat/ember/internal/client/dispatch"
	"github.com/emberchat/ember/internal/client/event"
	"github.com/emberchat/ember/internal/client/service"
	"github.com/emberchat/ember/internal/client/store"
	"github.com/emberchat/ember/internal/client/transport"
	pkgconfig "github.com/emberchat/ember/pkg/config"
	pkglog "github.com/emberchat/ember/pkg/log"
)

// Headless driver for the client core: logs in with the demo account,
// syncs state, mirrors every push into the log, and sends one message to
// the first chat session. Useful against the mock server to watch the
// sync behavior end to end.
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
		ProgramName: "ember-client",
	})
	logger := pkglog.L()

	username := pkgconfig.GetEnv("EMBER_USERNAME", "alice")
	password := pkgconfig.GetEnv("EMBER_PASSWORD", "alice-pass")

	// Wire the core: bus, persisted store, HTTP transport, orchestrator,
	// push dispatcher.
	bus := event.NewBus()
	st := store.New(store.NewStateFile(cfg.State.FilePath), bus, logger)
	httpClient := transport.NewClient(cfg.Server.BaseURL, time.Duration(cfg.Server.RequestTimeout)*time.Second, logger)

	streamCfg := transport.StreamConfig{
		PingInterval:   time.Duration(cfg.Stream.PingInterval) * time.Second,
		PongWait:       time.Duration(cfg.Stream.PongWait) * time.Second,
		WriteWait:      time.Duration(cfg.Stream.WriteWait) * time.Second,
		MaxMessageSize: int64(cfg.Stream.MaxMessageSize),
	}
	svc := service.NewChatService(st, httpClient, bus, cfg.Server.StreamURL, streamCfg, logger)
	dispatcher := dispatch.New(st, bus, svc, logger)

	unsubscribe := bus.Subscribe(func(ev event.Event) {
		logger.Debug().Str("event", string(ev.Type)).Str(pkglog.FieldSessionID, ev.SessionID).Msg("event")
	})
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Login(ctx, username, password); err != nil {
		logger.Fatal().Err(err).Msg("login failed")
	}
	if err := svc.ConnectStream(ctx, dispatcher.HandleFrame); err != nil {
		logger.Fatal().Err(err).Msg("stream connect failed")
	}
	if err := svc.Bootstrap(ctx); err != nil {
		logger.Fatal().Err(err).Msg("bootstrap failed")
	}

	sessions, _ := st.SessionList()
	logger.Info().Int("sessions", len(sessions)).Msg("synced")

	if len(sessions) > 0 {
		first := sessions[0].SessionID
		svc.FocusSession(first)
		if err := svc.FetchRecentMessages(ctx, first, true); err != nil {
			logger.Warn().Err(err).Msg("history fetch failed")
		}
		if err := svc.SendText(ctx, first, "hello from ember-client"); err != nil {
			logger.Warn().Err(err).Msg("send failed")
		}
	}

	// Stay connected until interrupted so pushes keep flowing.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	svc.Logout()
	logger.Info().Msg("ember-client stopped")
}
