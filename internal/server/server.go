// Package server assembles the HTTP API of the sync server.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/gophgrade/internal/server/handlers"
	"github.com/iudanet/gophgrade/internal/server/middleware"
	"github.com/iudanet/gophgrade/internal/server/storage"
)

const healthPath = "/api/v1/health"

// Store is the storage the API is served from
type Store interface {
	storage.UserStorage
	storage.DataStorage
	Ping(ctx context.Context) error
}

// Config holds API settings
type Config struct {
	JWT       handlers.JWTConfig
	LoginRate int // попыток входа в минуту с одного адреса
}

// Server is the http.Handler of the API
type Server struct {
	handler http.Handler
	limiter *middleware.RateLimiter
}

// New builds the router with all middleware in place
func New(logger *slog.Logger, store Store, cfg Config) *Server {
	limiter := middleware.NewRateLimiter(cfg.LoginRate, time.Minute, logger)

	authHandler := handlers.NewAuthHandler(logger, store, cfg.JWT)
	changesHandler := handlers.NewChangesHandler(logger, store, cfg.JWT)
	healthHandler := handlers.NewHealthHandler(logger, store)

	authMW := middleware.AuthMiddleware(logger, cfg.JWT)
	rateMW := middleware.RateLimitMiddleware(limiter)

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/auth/login", rateMW(http.HandlerFunc(authHandler.Login)))
	mux.Handle("POST /api/v1/changes", authMW(http.HandlerFunc(changesHandler.Send)))
	mux.Handle("GET /api/v1/data", authMW(http.HandlerFunc(changesHandler.Data)))
	mux.HandleFunc("GET "+healthPath, healthHandler.Health)

	// recovery внутри logging: паника логируется как ответ 500
	var h http.Handler = mux
	h = middleware.RecoveryMiddleware(logger)(h)
	h = middleware.LoggingMiddleware(logger, healthPath)(h)

	return &Server{handler: h, limiter: limiter}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close stops background work of the middleware
func (s *Server) Close() {
	s.limiter.Stop()
}
