// Package server provides the HTTP server and routing for the
// compliance oracle API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/compliance-oracle/internal/events"
	"github.com/aristath/compliance-oracle/internal/health"
	"github.com/aristath/compliance-oracle/internal/oracle"
	"github.com/aristath/compliance-oracle/internal/reasoner"
	"github.com/aristath/compliance-oracle/internal/rulesets"
)

// Config holds server configuration.
type Config struct {
	Log             zerolog.Logger
	Port            int
	DevMode         bool
	AllowedOrigins  []string
	Store           *rulesets.Store
	Gateway         *reasoner.Gateway
	Oracle          *oracle.Oracle
	Events          *events.Manager
	Health          *health.Checker
	UIFlagThreshold float64
}

// Server is the HTTP server for the compliance oracle API.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger

	store   *rulesets.Store
	gateway *reasoner.Gateway
	orc     *oracle.Oracle
	health  *health.Checker

	uiFlagThreshold float64
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:          chi.NewRouter(),
		log:             cfg.Log.With().Str("component", "server").Logger(),
		store:           cfg.Store,
		gateway:         cfg.Gateway,
		orc:             cfg.Oracle,
		health:          cfg.Health,
		uiFlagThreshold: cfg.UIFlagThreshold,
	}

	s.setupMiddleware(cfg.DevMode, cfg.AllowedOrigins)
	s.setupRoutes(cfg.Events)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool, allowedOrigins []string) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	origins := allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes(evts *events.Manager) {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		eventsStreamHandler := NewEventsStreamHandler(evts, s.log)
		r.Get("/events/stream", eventsStreamHandler.ServeHTTP)

		r.Post("/classify-jurisdiction", s.handleClassifyJurisdiction)
		r.Post("/resolve-conflicts", s.handleResolveConflicts)
		r.Post("/validate-token-compliance", s.handleValidateTokenCompliance)

		r.Route("/oracle", func(r chi.Router) {
			r.Post("/analyze", s.handleOracleAnalyze)
			r.Get("/pending", s.handleOraclePendingList)
			r.Get("/pending/{id}", s.handleOraclePendingGet)
			r.Post("/pending/{id}/approve", s.handleOraclePendingApprove)
			r.Post("/pending/{id}/reject", s.handleOraclePendingReject)
			r.Post("/pending/{id}/simulate", s.handleOraclePendingSimulate)
			r.Get("/pending/{id}/impact", s.handleOraclePendingImpact)
			r.Get("/pending/{id}/casualties", s.handleOraclePendingCasualties)
			r.Get("/history/{jurisdiction}", s.handleOracleHistory)
		})
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
