package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/tdrizzle0202/hiddencash/common/config"
	"github.com/tdrizzle0202/hiddencash/common/db"
	"github.com/tdrizzle0202/hiddencash/common/logger"
	"github.com/tdrizzle0202/hiddencash/common/services"
	"github.com/tdrizzle0202/hiddencash/drip"
	"github.com/tdrizzle0202/hiddencash/entitlement"
	"github.com/tdrizzle0202/hiddencash/handler"
	"github.com/tdrizzle0202/hiddencash/portals"
	"github.com/tdrizzle0202/hiddencash/search"
)

type AppHttpServer struct {
	router *chi.Mux
	cfg    config.Config
	server *http.Server
	db     *db.DB

	fetcher   *portals.Fetcher
	gate      *entitlement.Gate
	scheduler *drip.Scheduler
}

func NewAppHttpServer(cfg config.Config) (*AppHttpServer, error) {
	r := chi.NewRouter()

	// Basic CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Scrapes block for minutes, not seconds: a cold search renders up to
	// five portals sequentially with scripted waits.
	r.Use(middleware.Timeout(10 * time.Minute))

	server := &AppHttpServer{
		router: r,
		cfg:    cfg,
	}
	return server, nil
}

// SetDB sets the database dependency
func (s *AppHttpServer) SetDB(db *db.DB) {
	s.db = db
}

// SetFetcher sets the portal fetcher dependency
func (s *AppHttpServer) SetFetcher(fetcher *portals.Fetcher) {
	s.fetcher = fetcher
}

// SetGate sets the entitlement gate dependency
func (s *AppHttpServer) SetGate(gate *entitlement.Gate) {
	s.gate = gate
}

// SetScheduler sets the drip scheduler dependency
func (s *AppHttpServer) SetScheduler(scheduler *drip.Scheduler) {
	s.scheduler = scheduler
}

func (s *AppHttpServer) setupRoute() {
	r := s.router

	// Public health endpoint (no authentication required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"hiddencash"}`))
	})

	cache := services.NewCacheRepository(s.db)
	profiles := services.NewProfileRepository(s.db)
	jobs := services.NewJobRepository(s.db)
	subscriptions := services.NewSubscriptionRepository(s.db)
	tokens := services.NewPushTokenRepository(s.db)
	events := logger.NewEventLog(s.db)

	orchestrator := search.NewOrchestrator(s.fetcher, cache, profiles, jobs, subscriptions, events)

	searchHandler := handler.NewSearchHandler(orchestrator)
	resultsHandler := handler.NewResultsHandler(cache, jobs, s.gate)
	pushTokenHandler := handler.NewPushTokenHandler(tokens)
	dripHandler := handler.NewDripHandler(s.scheduler)
	healthHandler := handler.NewHealthHandler(s.db)

	r.Route("/v1", func(r chi.Router) {
		r.Mount("/health", healthHandler.Router())
		r.Mount("/drip", dripHandler.Router())

		r.Group(func(r chi.Router) {
			r.Use(handler.RequireUser)
			r.Mount("/search", searchHandler.Router())
			r.Mount("/results", resultsHandler.Router())
			r.Mount("/push-tokens", pushTokenHandler.Router())
		})
	})
}

func (s *AppHttpServer) start() error {
	r := s.router
	cfg := s.cfg
	log.Info().Msg("Starting up server...")

	s.server = &http.Server{
		Addr:    cfg.Listen.Addr(),
		Handler: r,
		// Write timeout must outlast a full sequential scrape.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// This starts the server in a goroutine from main
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// stop gracefully shuts down the server
func (s *AppHttpServer) stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
