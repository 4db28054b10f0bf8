package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tdrizzle0202/hiddencash/common/config"
	"github.com/tdrizzle0202/hiddencash/common/db"
	"github.com/tdrizzle0202/hiddencash/common/logger"
	"github.com/tdrizzle0202/hiddencash/common/messaging"
	"github.com/tdrizzle0202/hiddencash/common/services"
	"github.com/tdrizzle0202/hiddencash/drip"
	"github.com/tdrizzle0202/hiddencash/entitlement"
	"github.com/tdrizzle0202/hiddencash/notify"
	"github.com/tdrizzle0202/hiddencash/portals"
)

func main() {
	// INITIATE CONFIGURATION
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("Error loading .env file, using environment variables")
	}

	cfg := config.DefaultConfig()
	cfg.LoadFromEnv()

	// Create a base context with cancel for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// INITIATE DATABASES
	dbConn, err := db.SetupDatabase(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to setup database")
	}
	defer dbConn.Close()

	// Initialize zerolog database hooks
	logger.InitializeLogging(dbConn)
	log.Info().Msg("Zerolog database hooks initialized")

	// INITIATE NATS CLIENT
	var natsClient *messaging.NatsBroker
	if cfg.Nats.Enabled {
		natsClient, err = messaging.NewNatsBroker(cfg.Nats)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to setup NATS client")
		}
		defer natsClient.Close()
	} else {
		log.Warn().Msg("NATS disabled, push notifications deliver inline")
	}

	// Shared services
	cache := services.NewCacheRepository(dbConn)
	subscriptions := services.NewSubscriptionRepository(dbConn)
	tokens := services.NewPushTokenRepository(dbConn)
	events := logger.NewEventLog(dbConn)

	renderer := portals.NewRemoteRenderer(cfg.Render)
	fetcher := portals.NewFetcher(renderer)
	gate := entitlement.NewGate(cfg.Entitlement, subscriptions, dbConn.Redis)

	// Notification pipeline: queue on JetStream, consume to Expo
	deliverer := notify.NewDeliverer(cfg.Push, tokens)
	notifier := notify.NewNotifier(natsClient, deliverer)

	if natsClient != nil {
		consumeCtx, err := deliverer.Start(ctx, natsClient)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to start push delivery consumer")
		}
		if consumeCtx != nil {
			defer consumeCtx.Stop()
		}
		log.Info().Msg("Push delivery consumer started")
	}

	// Drip scheduler
	scheduler := drip.NewScheduler(cfg.Drip, cache, gate, fetcher, notifier, events, dbConn.Redis)
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start drip scheduler")
	}
	defer scheduler.Stop()

	// INITIATE SERVER
	server, err := NewAppHttpServer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create the server")
	}

	// Inject dependencies
	server.SetDB(dbConn)
	server.SetFetcher(fetcher)
	server.SetGate(gate)
	server.SetScheduler(scheduler)

	// Setup routes
	server.setupRoute()

	// Start server in a goroutine
	go func() {
		if err := server.start(); err != nil {
			log.Error().Err(err).Msg("Server error")
			cancel()
		}
	}()

	log.Info().Str("address", cfg.Listen.Addr()).Msg("Server started successfully")

	// Wait for shutdown signal
	select {
	case <-shutdown:
		log.Info().Msg("Shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("Server context cancelled")
	}

	// Create a timeout context for graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Server gracefully stopped")
}
