package apihttp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"magnetcast/internal/domain"
	"magnetcast/internal/services/sources"
)

// DownloadRegistry is the subset of the session registry the HTTP layer
// needs. Satisfied by *registry.Registry.
type DownloadRegistry interface {
	GetOrCreate(ctx context.Context, id domain.InfoHash, magnet, name string) (domain.DownloadSession, bool, error)
	Get(id domain.InfoHash) (domain.DownloadSession, error)
	List() []domain.DownloadSession
	Remove(ctx context.Context, id domain.InfoHash) error
}

// SourcesSearcher looks up magnet candidates for a piece of media.
// Satisfied by *sources.Client.
type SourcesSearcher interface {
	Search(ctx context.Context, req sources.SearchRequest) ([]domain.SourceCandidate, error)
}

type Server struct {
	registry       DownloadRegistry
	sources        SourcesSearcher
	allowedOrigins []string
	rateLimitRPS   float64
	rateLimitBurst int
	logger         *slog.Logger
	handler        http.Handler
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithSources(searcher SourcesSearcher) ServerOption {
	return func(s *Server) {
		s.sources = searcher
	}
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted (development mode).
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		s.rateLimitRPS = rps
		s.rateLimitBurst = burst
	}
}

func NewServer(reg DownloadRegistry, opts ...ServerOption) *Server {
	s := &Server{
		registry:       reg,
		rateLimitRPS:   100,
		rateLimitBurst: 200,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/torrent/download", s.handleDownload)
	mux.HandleFunc("/api/torrent/download/", s.handleDownloadByHash)
	mux.HandleFunc("/api/torrent/status/", s.handleStatus)
	mux.HandleFunc("/api/torrent/list", s.handleList)
	mux.HandleFunc("/api/torrent/stream/", s.handleStream)
	mux.HandleFunc("/api/sources", s.handleSources)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "magnetcast",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/api/health"
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(s.rateLimitRPS, s.rateLimitBurst, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
