package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/isdelr/chirp-be/internal/api"
	"github.com/isdelr/chirp-be/internal/auth"
	"github.com/isdelr/chirp-be/internal/config"
	"github.com/isdelr/chirp-be/internal/database"
	"github.com/isdelr/chirp-be/internal/logger"
	"github.com/isdelr/chirp-be/internal/outbox"
	"github.com/isdelr/chirp-be/internal/realtime"
	"github.com/isdelr/chirp-be/internal/services"
	"github.com/isdelr/chirp-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	if cfg.JWTSecretDefaulted {
		log.Warn().Msg("JWT_SECRET is not set, using the development default. Do not run like this in production.")
	}

	// Set up database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run()

	// Notifications reach clients through Redis when several instances run.
	var publisher realtime.Publisher = realtime.NewLocalPublisher(hub)
	var relay *realtime.RedisRelay
	if cfg.RedisAddress != "" {
		relay, err = realtime.NewRedisRelay(ctx, realtime.RedisConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		publisher = relay
		go func() {
			if err := relay.Run(ctx, hub); err != nil {
				log.Error().Err(err).Msg("Redis relay stopped")
			}
		}()
	}

	// Set up the outbox dispatcher that drives notification fan-out
	fanoutService := services.NewFanoutService(db)
	dispatcher, err := outbox.NewDispatcher(db, fanoutService, publisher, outbox.Options{
		SweepSchedule: cfg.OutboxSweepSchedule,
		MaxAttempts:   cfg.OutboxMaxAttempts,
		RetryBackoff:  cfg.OutboxRetryBackoff,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize outbox dispatcher")
	}
	go dispatcher.Run()

	// Set up services
	userService := services.NewUserService(db)
	postService := services.NewPostService(db, dispatcher)
	followService := services.NewFollowService(db, dispatcher)
	notificationService := services.NewNotificationService(db)

	// Set up router
	router := api.NewRouter(api.Deps{
		Users:              userService,
		Posts:              postService,
		Follows:            followService,
		Notifications:      notificationService,
		Tokens:             auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL),
		Hub:                hub,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AuthRateLimit:      cfg.AuthRateLimit,
		AuthRateBurst:      cfg.AuthRateBurst,
	})

	// Set up server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	dispatcher.Stop() // Stop fan-out after the last request has committed
	cancel()
	hub.Stop()
	if relay != nil {
		relay.Close()
	}

	log.Info().Msg("Server exiting")
}
