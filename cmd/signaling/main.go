package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mossy-p/meshroom/config"
	"github.com/mossy-p/meshroom/internal/handlers"
	"github.com/mossy-p/meshroom/internal/redis"
	"github.com/mossy-p/meshroom/internal/room"
	"github.com/mossy-p/meshroom/internal/signaling"
)

func main() {
	// Load configuration
	cfg := config.Load()

	w := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	log := zerolog.New(w).Level(config.ParseLogLevel(cfg.LogLevel)).With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := room.NewRegistry(cfg.MaxParticipants)

	// Presence mirror is optional; signaling works without Redis
	var presence handlers.PresenceCounter
	if cfg.Redis.Enabled {
		store, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr()).Msg("redis unavailable, presence mirror disabled")
		} else {
			defer store.Close()
			mirror := redis.NewMirror(store, registry, log)
			registry.Subscribe(mirror.Track)
			go mirror.Run(ctx)
			presence = store
			log.Info().Str("addr", cfg.Redis.Addr()).Msg("redis connection established")
		}
	}

	hub := signaling.NewHub(registry, log)
	go hub.Run()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(cfg, hub, presence, log)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("room_id", cfg.RoomID).Msg("starting signaling server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	hub.Stop()
	log.Info().Msg("server exited")
}
