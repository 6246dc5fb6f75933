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

	router "github.com/okomel/huddle/internal/adapters/http"
	"github.com/okomel/huddle/internal/app"
	"github.com/okomel/huddle/internal/config"
	"github.com/okomel/huddle/internal/core"
)

const (
	sweepInterval = time.Hour

	chatBurst  = 20
	chatWindow = 10 * time.Second
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

	store := core.NewRoomStore(cfg.MaxParticipants, core.NewCodeGenerator(cfg.RoomCodeLength))
	coord := app.NewCoordinator(store, app.NewPasswordHasher(), app.NewMessageLimiter(chatBurst, chatWindow), cfg.ReconnectWindow)
	relay := app.NewRelay(coord)

	go app.NewReaper(coord, cfg.RoomTTL, sweepInterval).Run(ctx)

	r := router.SetupRouter(ctx, cfg, coord, relay)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Huddle broker started")
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
