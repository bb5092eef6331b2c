package server

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/glotcast/relay/internal/batch"
	"github.com/glotcast/relay/internal/config"
	"github.com/glotcast/relay/internal/sessionlog"
	"github.com/glotcast/relay/internal/settings"
	"github.com/glotcast/relay/internal/stream"
)

// Server wires the boundary handlers to the core components.
type Server struct {
	engine    *batch.Engine
	hub       *stream.Hub
	log       *sessionlog.Log
	settings  *settings.Store
	config    *config.Config
	limiter   *rate.Limiter
	logger    *zap.Logger
	startedAt time.Time
}

func NewServer(engine *batch.Engine, hub *stream.Hub, log *sessionlog.Log, st *settings.Store, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		engine:    engine,
		hub:       hub,
		log:       log,
		settings:  st,
		config:    cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.Ingest.RatePerSecond), cfg.Ingest.Burst),
		logger:    logger,
		startedAt: time.Now(),
	}
}

func NewRouter(s *Server, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(zapLoggerMiddleware(logger))

	// Long-lived push channels stay outside the compression group so frames
	// are never buffered by an encoder.
	r.Get("/subscribe", s.hub.HandleSSE)
	if s.config.Server.WSEnabled {
		r.Get("/subscribe/ws", s.hub.HandleWS)
	}

	r.Group(func(api chi.Router) {
		api.Use(compressMiddleware())

		api.Post("/ingest", s.handleIngest)
		api.Post("/visitor-settings", s.handleVisitorSettings)
		api.Post("/preset-suggest", s.handlePresetSuggest)
		api.Get("/status", s.handleStatus)
		api.Get("/session-log", s.handleSessionLog)
		api.Get("/session-log/csv", s.handleSessionLogCSV)
		api.Get("/healthz", s.handleHealthz)
	})

	return r
}

// compressMiddleware builds chi's Compress handler with zstd registered
// alongside the stock gzip/deflate encoders.
func compressMiddleware() func(http.Handler) http.Handler {
	compressor := middleware.NewCompressor(5, "application/json", "text/csv")
	compressor.SetEncoder("zstd", func(w io.Writer, level int) io.Writer {
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil
		}
		return zw
	})
	return compressor.Handler
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remoteAddr", r.RemoteAddr),
			)
			next.ServeHTTP(w, r)
		})
	}
}
