// Package app assembles the process: settings, logger, database engine,
// unit-of-work provider, auth service and HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/fusion/internal/auth"
	"github.com/mesh-intelligence/fusion/internal/config"
	"github.com/mesh-intelligence/fusion/internal/engine"
	"github.com/mesh-intelligence/fusion/internal/logging"
	"github.com/mesh-intelligence/fusion/internal/server"
	"github.com/mesh-intelligence/fusion/internal/uow"
)

// Options tune Open.
type Options struct {
	// Console mirrors log output to stdout in human-readable form.
	Console bool
	// SkipMigrate leaves the schema alone.
	SkipMigrate bool
}

// App owns every long-lived component. Close releases them in reverse order.
type App struct {
	Settings *config.Settings
	Log      *logging.Log
	Engine   *engine.Engine
	Provider *uow.Provider
	Auth     *auth.Service
}

// Open loads settings from configDir, opens the configured backend and
// ensures the users schema exists.
func Open(ctx context.Context, configDir string, opts Options) (*App, error) {
	settings, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	return OpenWith(ctx, settings, opts)
}

// OpenWith is Open for settings that are already resolved.
func OpenWith(ctx context.Context, settings *config.Settings, opts Options) (*App, error) {
	b := logging.New().FromPath(settings.LogFile).Level(logging.ParseLevel(settings.LogLevel))
	if opts.Console {
		b = b.Console()
	}
	log, err := b.Make()
	if err != nil {
		return nil, err
	}
	a := &App{Settings: settings, Log: log}
	logger := log.Logger.With().Str("app", settings.App.Name).Logger()

	if settings.IsProduction() && settings.InsecureSecret() {
		logger.Warn().Msg("jwt_secret_key is the shipped default; set JWT_SECRET_KEY")
	}

	dbCfg, err := settings.DatabaseConfig()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Engine, err = engine.Open(ctx, dbCfg, engine.WithLogger(logger))
	if err != nil {
		a.Close()
		return nil, err
	}
	if !opts.SkipMigrate {
		if err := a.Engine.Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	a.Provider = uow.NewProvider(a.Engine, uow.WithLogger(logger))
	a.Auth, err = auth.New(auth.Config{
		SecretKey:      settings.JWTSecretKey,
		Algorithm:      settings.JWTAlgorithm,
		AccessTokenTTL: settings.AccessTokenTTL(),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Server builds the HTTP server over the app's components.
func (a *App) Server() *server.Server {
	return server.New(server.Deps{
		Settings: a.Settings,
		Engine:   a.Engine,
		Provider: a.Provider,
		Auth:     a.Auth,
		Logger:   a.Log.Logger,
	})
}

// Close disposes of the engine and closes the log file.
func (a *App) Close() error {
	var errs []error
	if a.Engine != nil {
		errs = append(errs, a.Engine.Close())
	}
	errs = append(errs, a.Log.Close())
	return errors.Join(errs...)
}
