// Package api exposes the HTTP interface for the screenshot service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pagesnap/pagesnap/internal/metrics"
	"github.com/pagesnap/pagesnap/internal/snapshot"
	"github.com/pagesnap/pagesnap/internal/sweeper"
)

// Resolver serves screenshot requests, from cache or by rendering.
type Resolver interface {
	Resolve(ctx context.Context, req snapshot.RenderRequest) (snapshot.RenderResult, error)
}

// Cleaner runs a single expiry sweep on demand.
type Cleaner interface {
	Sweep(ctx context.Context) (sweeper.Result, error)
}

// Server wires HTTP handlers to the cache coordinator and sweeper.
type Server struct {
	router    chi.Router
	resolver  Resolver
	cleaner   Cleaner
	artifacts snapshot.ArtifactStore
	limits    snapshot.Limits
	logger    *zap.Logger
}

// Config carries the request-shaping knobs the handlers need.
type Config struct {
	// Limits bounds the accepted viewport; zero means snapshot.DefaultLimits.
	Limits snapshot.Limits
	// RequestTimeout bounds each request end to end, render included.
	RequestTimeout time.Duration
}

// NewServer constructs a Server with middleware and routes.
func NewServer(resolver Resolver, cleaner Cleaner, artifacts snapshot.ArtifactStore, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Limits == (snapshot.Limits{}) {
		cfg.Limits = snapshot.DefaultLimits
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		resolver:  resolver,
		cleaner:   cleaner,
		artifacts: artifacts,
		limits:    cfg.Limits,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/screenshot", s.getScreenshot)
		r.Post("/cleanup", s.cleanup)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// envelope is the uniform response shape for all JSON endpoints.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// screenshotDTO is the wire form of a render result.
type screenshotDTO struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Keywords    string    `json:"keywords,omitempty"`
	ArtifactURL string    `json:"artifactUrl"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	FullPage    bool      `json:"fullPage"`
	Cached      bool      `json:"cached"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toScreenshotDTO(res snapshot.RenderResult) screenshotDTO {
	return screenshotDTO{
		ID:          res.ID,
		URL:         res.URL,
		Title:       res.Title,
		Description: res.Description,
		Keywords:    res.Keywords,
		ArtifactURL: res.ArtifactURL,
		Width:       res.Width,
		Height:      res.Height,
		FullPage:    res.FullPage,
		Cached:      res.Cached,
		CreatedAt:   res.CreatedAt,
	}
}

func (s *Server) getScreenshot(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseScreenshotRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, resolveErr := s.resolver.Resolve(r.Context(), req)
	if resolveErr != nil {
		s.writeResolveError(w, req.URL, resolveErr)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: toScreenshotDTO(res)})
}

func (s *Server) writeResolveError(w http.ResponseWriter, pageURL string, err error) {
	switch {
	case errors.Is(err, snapshot.ErrRenderTimeout):
		s.logger.Warn("render timed out", zap.String("url", pageURL))
		writeError(w, http.StatusGatewayTimeout, "page render timed out")
	case errors.Is(err, snapshot.ErrRenderFailure):
		s.logger.Warn("render failed", zap.String("url", pageURL), zap.Error(err))
		writeError(w, http.StatusBadGateway, "page could not be rendered")
	default:
		s.logger.Error("screenshot request failed", zap.String("url", pageURL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) parseScreenshotRequest(r *http.Request) (snapshot.RenderRequest, error) {
	q := r.URL.Query()

	rawURL := q.Get("url")
	if rawURL == "" {
		return snapshot.RenderRequest{}, errors.New("url parameter is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return snapshot.RenderRequest{}, errors.New("url must be a valid http or https URL")
	}

	width, err := parseDimension(q.Get("width"), "width", snapshot.DefaultWidth, s.limits.MinWidth, s.limits.MaxWidth)
	if err != nil {
		return snapshot.RenderRequest{}, err
	}
	height, err := parseDimension(q.Get("height"), "height", snapshot.DefaultHeight, s.limits.MinHeight, s.limits.MaxHeight)
	if err != nil {
		return snapshot.RenderRequest{}, err
	}

	fullPage := false
	if raw := q.Get("fullPage"); raw != "" {
		fullPage, err = strconv.ParseBool(raw)
		if err != nil {
			return snapshot.RenderRequest{}, errors.New("fullPage must be true or false")
		}
	}

	return snapshot.RenderRequest{
		URL:      rawURL,
		Width:    width,
		Height:   height,
		FullPage: fullPage,
	}, nil
}

func parseDimension(raw, name string, def, min, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s must be between %d and %d", name, min, max)
	}
	return v, nil
}

func (s *Server) cleanup(w http.ResponseWriter, r *http.Request) {
	res, err := s.cleaner.Sweep(r.Context())
	if err != nil {
		s.logger.Error("cleanup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data:    res,
		Message: fmt.Sprintf("deleted %d expired screenshots", res.DeletedRecords),
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if s.artifacts != nil {
		if err := s.artifacts.HealthCheck(ctx); err != nil {
			s.logger.Warn("artifact store unhealthy", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, envelope{
				Success: false,
				Error:   "artifact store unavailable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "ok"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}
