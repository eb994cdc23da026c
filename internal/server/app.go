// Package server initializes and runs the authentication server.
// It opens the database, applies migrations, wires the services and the
// HTTP transport, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/avoronov/jwt-auth/internal/logging"
	"github.com/avoronov/jwt-auth/internal/server/api"
	"github.com/avoronov/jwt-auth/internal/server/auth"
	"github.com/avoronov/jwt-auth/internal/server/config"
	"github.com/avoronov/jwt-auth/internal/server/repositories/repomanager"
	"github.com/avoronov/jwt-auth/internal/server/services"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	authService *services.AuthService
	userService *services.UserService
	validator   *auth.TokenValidator
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	s := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(s)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	secret := []byte(c.SecretKey)
	issuer := auth.NewTokenIssuer(secret, c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration)
	validator := auth.NewTokenValidator(secret)
	hasher := auth.NewPasswordHasher(c.BcryptCost)

	as := services.NewAuthService(db, rm, issuer, hasher, logger)
	us := services.NewUserService(db, rm, logger)

	return &App{
		config:      c,
		logger:      logger,
		db:          db,
		authService: as,
		userService: us,
		validator:   validator,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := api.NewServer(app.config.EndpointAddr, app.logger, app.authService, app.userService, app.validator)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
}
