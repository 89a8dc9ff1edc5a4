// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opshield/incident-sentry/internal/alerts"
	"github.com/opshield/incident-sentry/internal/alerts/notify"
	"github.com/opshield/incident-sentry/internal/config"
	"github.com/opshield/incident-sentry/internal/dashboard"
	"github.com/opshield/incident-sentry/internal/domain"
	"github.com/opshield/incident-sentry/internal/identity"
	"github.com/opshield/incident-sentry/internal/identity/jwt"
	identitypostgres "github.com/opshield/incident-sentry/internal/identity/postgres"
	"github.com/opshield/incident-sentry/internal/incidents"
	incidentspostgres "github.com/opshield/incident-sentry/internal/incidents/postgres"
	"github.com/opshield/incident-sentry/internal/pkg/ctxlog"
	"github.com/opshield/incident-sentry/internal/pkg/httputil"
	"github.com/opshield/incident-sentry/internal/pkg/metrics"
	"github.com/opshield/incident-sentry/internal/pkg/postgres"
	"github.com/opshield/incident-sentry/internal/realtime"
	"github.com/opshield/incident-sentry/internal/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	hub           *realtime.Hub
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	startedAt     time.Time
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	// Unmapped errors carry their message in dev and test; production
	// responses stay generic and the detail goes to the logs only.
	httputil.ExposeErrorDetails(!cfg.IsProduction())

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		hub:           realtime.NewHub(),
		metricsCancel: metricsCancel,
		startedAt:     time.Now(),
	}

	go app.collectDBMetrics(metricsCtx)

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           app.setupRouter(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"env", a.config.Env,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	// Disconnect realtime clients before the listener stops accepting
	a.hub.Close()

	// Shutdown both servers in parallel
	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	a.db.Close()

	return errors.Join(errs...)
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Hub returns the realtime hub instance. Used in tests.
func (a *App) Hub() *realtime.Hub {
	return a.hub
}

func (a *App) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.Error(w, http.StatusNotFound, "endpoint not found")
	})

	r.Get("/health", a.healthHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	// Websocket endpoint stays outside the /api timeout group: connections
	// are long-lived by design.
	r.Get("/ws", a.hub.ServeWS)

	identityRepo := identitypostgres.NewRepository(a.db)
	jwtAuth := jwt.NewAuthenticator(jwt.Config{
		SecretKey:     a.config.JWT.SecretKey,
		TokenDuration: a.config.JWT.TokenDuration,
	}, identityRepo)
	identityService := identity.NewService(identityRepo, jwtAuth)
	identityHandler := identity.NewHandler(identityService)

	incidentsRepo := incidentspostgres.NewRepository(a.db)
	incidentsService := incidents.NewService(incidentsRepo, a.hub)
	incidentsHandler := incidents.NewHandler(incidentsService)

	dashboardService := dashboard.NewService(incidentsRepo)
	dashboardHandler := dashboard.NewHandler(dashboardService)

	notifier := notify.NewSender(notify.Config{URL: a.config.Webhook.NotifyURL})
	alertsService := alerts.NewService(incidentsService, identityRepo, notifier, alerts.Config{
		DefaultOwnerID:     a.config.Webhook.DefaultOwnerID,
		FallbackAdminEmail: a.config.Webhook.FallbackAdminEmail,
	})
	alertsHandler := alerts.NewHandler(alertsService, incidentsService)

	generalLimiter := httputil.NewRateLimiter(a.config.RateLimit.RPS, a.config.RateLimit.Burst)
	authLimiter := httputil.NewRateLimiter(a.config.RateLimit.AuthRPS, a.config.RateLimit.AuthBurst)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		if a.config.RateLimit.Enabled {
			r.Use(generalLimiter.Middleware)
		}

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if a.config.RateLimit.Enabled {
					r.Use(authLimiter.Middleware)
				}
				identityHandler.RegisterPublicRoutes(r)
			})

			r.Group(func(r chi.Router) {
				r.Use(httputil.AuthMiddleware(jwtAuth))

				identityHandler.RegisterProtectedRoutes(r)

				r.Group(func(r chi.Router) {
					r.Use(httputil.RequireRole(domain.RoleAdmin))
					identityHandler.RegisterAdminRoutes(r)
				})
			})
		})

		// External systems post alerts here without credentials; a valid
		// bearer token, when present, makes the caller the incident owner
		r.Route("/alerts", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(httputil.OptionalAuthMiddleware(jwtAuth))
				alertsHandler.RegisterPublicRoutes(r)
			})

			r.Group(func(r chi.Router) {
				r.Use(httputil.AuthMiddleware(jwtAuth))
				alertsHandler.RegisterProtectedRoutes(r)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(jwtAuth))

			r.Route("/incidents", incidentsHandler.RegisterRoutes)
			r.Route("/dashboard", dashboardHandler.RegisterRoutes)

			// Kept for frontend compatibility; search runs on the database
			r.Get("/elasticsearch/ping", func(w http.ResponseWriter, _ *http.Request) {
				httputil.SuccessFields(w, http.StatusOK, map[string]interface{}{
					"message": "ok",
				})
			})
		})
	})

	return r
}

func (a *App) healthHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"status":      "OK",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"uptime":      time.Since(a.startedAt).Seconds(),
		"environment": a.config.Env,
	})
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
