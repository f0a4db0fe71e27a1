package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/mikepodsy/my-finance-app/internal/auth"
	"github.com/mikepodsy/my-finance-app/internal/config"
	"github.com/mikepodsy/my-finance-app/internal/metrics"
)

// maxBodyBytes caps request bodies on the auth endpoints.
const maxBodyBytes = 1 << 20

// Dependencies are the collaborators the HTTP layer serves.
type Dependencies struct {
	Auth    *auth.Service
	Cookies *auth.CookieWriter
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type Api struct {
	Config  config.Config
	Router  *chi.Mux
	auth    *auth.Service
	cookies *auth.CookieWriter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewApi(cfg config.Config, deps Dependencies) (*Api, error) {
	if cfg.Server.Port == 0 {
		return nil, errors.New("must have at least a port to start API")
	}
	if deps.Auth == nil || deps.Cookies == nil {
		return nil, errors.New("auth service and cookie writer are required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	api := &Api{
		Config:  cfg,
		Router:  chi.NewRouter(),
		auth:    deps.Auth,
		cookies: deps.Cookies,
		metrics: deps.Metrics,
		logger:  deps.Logger,
	}
	api.setupRoutes()
	return api, nil
}

func (api *Api) setupRoutes() {
	r := api.Router

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   api.Config.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(api.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/heartbeat"))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusNotFound, "Not found.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed.")
	})

	r.Post("/register", api.RegisterHandler)
	r.Post("/login", api.LoginHandler)
	r.Post("/logout", api.LogoutHandler)

	r.Group(func(r chi.Router) {
		r.Use(api.RequireSession)
		r.Get("/session", api.SessionHandler)
	})

	r.Handle("/metrics", api.metrics.Handler())
}

func (api *Api) newServer() *http.Server {
	return &http.Server{
		Addr:         api.Config.Addr(),
		Handler:      api.Router,
		ReadTimeout:  api.Config.Server.ReadTimeout,
		WriteTimeout: api.Config.Server.WriteTimeout,
		IdleTimeout:  api.Config.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(api.logger.Handler(), slog.LevelError),
	}
}

// Serve listens on the configured port until ctx is cancelled, then shuts
// down gracefully.
func (api *Api) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", api.Config.Addr())
	if err != nil {
		return err
	}
	return api.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled. In-flight requests get
// up to server.shutdown_timeout to finish.
func (api *Api) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := api.newServer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		api.logger.Info("Starting API server", "addr", ln.Addr().String(), "tls", api.Config.Server.TLS)
		var err error
		if api.Config.Server.TLS {
			err = srv.ServeTLS(ln, api.Config.Server.TLSCert, api.Config.Server.TLSKey)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), api.Config.Server.ShutdownTimeout)
		defer cancel()
		api.logger.Info("Shutting down API server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
