// Package api exposes the prediction service and the read-side HTTP
// endpoints over the cleaned property data.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/urbanytics/urbanytics/internal/store"
)

// Options tunes the HTTP server.
type Options struct {
	Port      int
	RateLimit float64 // requests per second, 0 disables limiting
	RateBurst int
}

// Server routes HTTP traffic to the store and the model service.
type Server struct {
	store  store.Store
	models *ModelService
	opts   Options
	router chi.Router
}

// NewServer builds the router with all endpoints and middleware attached.
func NewServer(st store.Store, models *ModelService, opts Options) *Server {
	s := &Server{store: st, models: models, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if opts.RateLimit > 0 {
		r.Use(rateLimiter(rate.Limit(opts.RateLimit), opts.RateBurst))
	}

	r.Get("/health", s.handleHealth)
	r.Post("/train", s.handleTrain)
	r.Post("/predict", s.handlePredict)
	r.Get("/model/info", s.handleModelInfo)
	r.Get("/model/runs", s.handleModelRuns)
	r.Get("/data/stats", s.handleDataStats)

	r.Get("/properties", s.handleListProperties)
	r.Get("/properties/{serial}", s.handleGetProperty)

	r.Route("/catalog", func(r chi.Router) {
		r.Get("/towns", s.handleTowns)
		r.Get("/property-types", s.handlePropertyTypes)
		r.Get("/residential-types", s.handleResidentialTypes)
		r.Get("/years", s.handleListYears)
	})

	r.Route("/analytics", func(r chi.Router) {
		r.Get("/kpis", s.handleKPIs)
		r.Get("/trends", s.handleTrends)
	})

	s.router = r
	return s
}

// Handler returns the root http.Handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", s.opts.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "api: server listen")
	}
	return nil
}

// requestLogger logs one line per request through the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

// rateLimiter applies a process-wide token bucket across all clients.
func rateLimiter(limit rate.Limit, burst int) func(http.Handler) http.Handler {
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(limit, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
