package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dcha68893-afk/moodchat/internal/adapters/auth"
	router "github.com/dcha68893-afk/moodchat/internal/adapters/http"
	"github.com/dcha68893-afk/moodchat/internal/adapters/ws"
	"github.com/dcha68893-afk/moodchat/internal/app"
	"github.com/dcha68893-afk/moodchat/internal/config"
	"github.com/dcha68893-afk/moodchat/internal/core"
	"github.com/dcha68893-afk/moodchat/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	var presence core.PresenceStore
	var sink core.EventSink
	if cfg.NATSURL != "" {
		backing, err := store.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatal().Err(err).Msg("nats backing unavailable")
		}
		defer backing.Close()
		presence = backing.Presence()
		sink = backing.Sink()
	} else {
		presence = store.NewMemoryPresence()
		sink = store.LogSink{}
	}

	// The static directory is the dev-mode stand-in for the real chat
	// membership service.
	directory := store.NewStaticDirectory()

	coord := app.NewCoordinator(directory, presence, sink, store.LogArchiver{}, cfg.TypingTTL)
	defer coord.Typing.Stop()

	reaper := app.NewReaper(coord.Registry, cfg.HeartbeatTimeout, cfg.ReapInterval)
	go reaper.Run(ctx)

	ctrl := &ws.Controller{
		Coord:      coord,
		Identity:   auth.TokenIdentity{},
		ReadLimit:  cfg.ReadLimit,
		SendBuffer: cfg.SendBuffer,
	}

	r := router.SetupRouter(ctx, cfg, ctrl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("moodchat server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
