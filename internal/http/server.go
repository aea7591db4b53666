package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/smart-ratings/internal/config"
	"github.com/Clark-Hu/smart-ratings/internal/logging"
	"github.com/Clark-Hu/smart-ratings/internal/monitoring"
	"github.com/Clark-Hu/smart-ratings/internal/ratings"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg      config.Config
	health   HealthChecker
	svc      *ratings.Service
	featured *ratings.FeaturedScheduler
	logger   zerolog.Logger
	router   chi.Router
	httpSrv  *http.Server
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, health HealthChecker, svc *ratings.Service, featured *ratings.FeaturedScheduler) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger)
	r.Use(monitoring.Middleware)
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:      cfg,
		health:   health,
		svc:      svc,
		featured: featured,
		logger:   logging.NewLogger("http"),
		router:   r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Method(http.MethodGet, "/metrics", monitoring.Handler())
	s.router.Get("/categories", s.handleListCategories)
	s.router.Get("/featured", s.handleListFeatured)

	s.router.Route("/entities", func(r chi.Router) {
		r.Get("/", s.handleListEntities)
		r.With(s.requireAdmin).Post("/", s.handleCreateEntity)
		r.Route("/{entityID}", func(r chi.Router) {
			r.Get("/", s.handleGetEntity)
			r.Get("/summary", s.handleGetEntitySummary)
			r.Route("/ratings/{categoryID}", func(r chi.Router) {
				r.Post("/", s.handleSubmitRating)
				r.Get("/", s.handleGetRating)
				r.Get("/stats", s.handleGetRatingStats)
			})
		})
	})

	s.router.Post("/ratings/{ratingID}/reports", s.handleFileReport)

	s.router.Route("/admin", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Put("/entities/{entityID}/seeds/{categoryID}", s.handleSetSeed)
		r.Delete("/entities/{entityID}/seeds/{categoryID}", s.handleResetSeed)
		r.Get("/audit", s.handleListAudit)
		r.Post("/featured/refresh", s.handleRefreshFeatured)
		r.Get("/reports", s.handleListReports)
		r.Get("/reports/{reportID}", s.handleGetReport)
		r.Put("/reports/{reportID}", s.handleReviewReport)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start boots the HTTP server and blocks until ctx is done or serving fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpSrv.Addr).Msg("http server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.health == nil {
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Store not configured")
		return
	}
	if err := s.health.HealthCheck(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("health check failed")
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Database unreachable")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
