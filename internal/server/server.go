// Package server exposes the HTTP API and serves the built single-page
// frontend. Every API request that touches user records runs inside its own
// unit of work, acquired by middleware and released when the handler returns.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/fusion/internal/auth"
	"github.com/mesh-intelligence/fusion/internal/config"
	"github.com/mesh-intelligence/fusion/internal/engine"
	"github.com/mesh-intelligence/fusion/internal/uow"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Deps are the collaborators a Server needs. All are required.
type Deps struct {
	Settings *config.Settings
	Engine   *engine.Engine
	Provider *uow.Provider
	Auth     *auth.Service
	Logger   zerolog.Logger
}

// Server routes HTTP requests to the API handlers and the frontend.
type Server struct {
	settings *config.Settings
	engine   *engine.Engine
	provider *uow.Provider
	auth     *auth.Service
	log      zerolog.Logger
	handler  http.Handler
}

// New builds the router and middleware chain.
func New(d Deps) *Server {
	s := &Server{
		settings: d.Settings,
		engine:   d.Engine,
		provider: d.Provider,
		auth:     d.Auth,
		log:      d.Logger.With().Str("component", "http").Logger(),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the complete handler, middleware included.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "Not found")
	})

	api := router.PathPrefix(s.settings.APIPrefix).Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// Routes below share one unit of work per request.
	db := api.NewRoute().Subrouter()
	db.Use(s.unitOfWork)
	db.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	db.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	db.HandleFunc("/auth/me", s.handleMe).Methods(http.MethodGet)
	db.HandleFunc("/users", s.handleListUsers).Methods(http.MethodGet)

	router.PathPrefix("/").Handler(newSPAHandler(s.settings.FrontendBuildPath, s.settings.APIPrefix))

	var h http.Handler = router
	if s.settings.IsDevelopment() {
		h = s.requestLogging(h)
	}
	h = s.recovery(h)
	h = cors(s.settings.CORSOriginList())(h)
	return h
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.settings.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.settings.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. Requests still in
// flight get a few seconds to complete.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("backend", string(s.engine.Kind())).
		Str("mode", s.settings.Mode).
		Msg("http server listening")

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}
