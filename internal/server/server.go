// Package server wires the stores, handlers and middleware into one router.
package server

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/milkdiary/internal/handler"
	"github.com/dukerupert/milkdiary/internal/middleware"
	"github.com/dukerupert/milkdiary/internal/store"
	"github.com/dukerupert/milkdiary/internal/task"
	ws "github.com/dukerupert/milkdiary/internal/websocket"
	"github.com/dukerupert/milkdiary/web"
)

// Refresh is limited per client address.
const (
	refreshLimit  = 6
	refreshWindow = time.Minute
)

type Config struct {
	Variant   task.Variant
	Location  *time.Location
	CacheName string
	// OriginPatterns are extra hosts allowed to open the websocket.
	OriginPatterns []string
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	taskH       *handler.TaskHandler
	pageH       *handler.PageHandler
	pwaH        *handler.PWAHandler
	rateLimiter *middleware.RateLimiter
	origins     []string
	logger      *slog.Logger
}

// New builds the server. refresher may be nil when no sheet source is
// configured; POST /api/refresh then answers 503.
func New(db *sql.DB, hub *ws.Hub, refresher handler.SheetRefresher, cfg Config, logger *slog.Logger) (*Server, error) {
	sheetStore := store.NewSheetStore(db)
	completionStore := store.NewCompletionStore(db)
	rows := handler.NewRows(sheetStore, completionStore)

	pageH, err := handler.NewPageHandler(rows, completionStore, hub, cfg.Variant, cfg.Location, logger)
	if err != nil {
		return nil, fmt.Errorf("page handler: %w", err)
	}
	pwaH, err := handler.NewPWAHandler(cfg.CacheName, logger)
	if err != nil {
		return nil, fmt.Errorf("pwa handler: %w", err)
	}

	return &Server{
		db:          db,
		hub:         hub,
		taskH:       handler.NewTaskHandler(rows, completionStore, refresher, hub, logger.With("component", "task")),
		pageH:       pageH,
		pwaH:        pwaH,
		rateLimiter: middleware.NewRateLimiter(),
		origins:     cfg.OriginPatterns,
		logger:      logger,
	}, nil
}

func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.Handler(s.hub, s.origins...))

	// Installable app
	mux.HandleFunc("GET /manifest.webmanifest", s.pwaH.Manifest)
	mux.HandleFunc("GET /sw.js", s.pwaH.ServiceWorker)
	mux.HandleFunc("GET /static/icons/{file}", s.pwaH.Icon)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(web.Static())))

	// Pages and partials
	mux.HandleFunc("GET /{$}", s.pageH.Daily)
	mux.HandleFunc("GET /daily", s.pageH.Daily)
	mux.HandleFunc("GET /schedule", s.pageH.Schedule)
	mux.HandleFunc("GET /partials/daily", s.pageH.DailyList)
	mux.HandleFunc("GET /partials/daily/stats", s.pageH.DailyStats)
	mux.HandleFunc("GET /partials/schedule", s.pageH.ScheduleTimeline)
	mux.HandleFunc("POST /partials/task/{id}/stage/{stage}", s.pageH.ToggleStage)
	mux.HandleFunc("POST /partials/task/{id}/complete", s.pageH.ToggleComplete)

	// JSON API
	mux.HandleFunc("POST /api/task/stage", s.taskH.Stage)
	mux.HandleFunc("POST /api/task/complete", s.taskH.Complete)
	mux.HandleFunc("GET /api/task/{type}/{id}", s.taskH.Get)
	mux.HandleFunc("GET /api/tables", s.taskH.Tables)
	mux.HandleFunc("GET /api/progress", s.taskH.Progress)
	mux.HandleFunc("GET /api/completions/stats", s.taskH.Stats)
	mux.HandleFunc("POST /api/refresh", s.rateLimitedHandler(s.taskH.Refresh))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		status = "db unavailable"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, refreshLimit, refreshWindow)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
