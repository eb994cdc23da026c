// Package api exposes the authentication service over HTTP/JSON.
// Routing and serialization only; all protocol decisions live in the
// services package.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/avoronov/jwt-auth/internal/logging"
	"github.com/avoronov/jwt-auth/internal/server/auth"
	"github.com/avoronov/jwt-auth/internal/server/models"
	"github.com/avoronov/jwt-auth/internal/server/services"
)

// AuthService is the slice of the auth orchestrator the transport needs.
type AuthService interface {
	Login(ctx context.Context, email string, password string) (*services.TokenPair, error)
	Register(ctx context.Context, email string, password string) (*models.User, error)
	CheckRefreshToken(ctx context.Context, userID int64, refreshToken string) error
	RefreshTokens(ctx context.Context, userID int64) (*services.TokenPair, error)
}

// UserService resolves authenticated subjects to user records.
type UserService interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

const shutdownTimeout = 5 * time.Second

type Server struct {
	address   string
	router    *mux.Router
	logger    logging.Logger
	auth      AuthService
	users     UserService
	validator *auth.TokenValidator
}

func NewServer(address string, logger logging.Logger, authService AuthService, userService UserService, validator *auth.TokenValidator) *Server {
	s := &Server{
		address:   address,
		logger:    logger.With("module", "http_server"),
		auth:      authService,
		users:     userService,
		validator: validator,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestIDMiddleware, s.loggingMiddleware)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/auth/login", s.login).Methods(http.MethodPost)
	v1.HandleFunc("/auth/register", s.register).Methods(http.MethodPost)
	v1.Handle("/auth/refresh", s.requireRefreshToken(http.HandlerFunc(s.refresh))).Methods(http.MethodPost)
	v1.Handle("/users/me", s.requireAccessToken(http.HandlerFunc(s.currentUser))).Methods(http.MethodGet)

	return r
}

// Handler returns the configured router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.address, Handler: s.router}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
