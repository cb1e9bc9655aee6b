package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"hdbdash/internal/core"
	"hdbdash/internal/log"
	"hdbdash/internal/middleware/security"
	"hdbdash/internal/middleware/trace"
	"hdbdash/internal/observability"
	appweb "hdbdash/web"
)

// DashboardBuilder runs the dashboard pipeline for a selection.
type DashboardBuilder interface {
	Build(ctx context.Context, sel core.Selection) (core.DashboardView, error)
}

type Server struct {
	http.Server
	templates *template.Template
	dashboard DashboardBuilder
	logger    *log.Logger
	events    *log.StructuredLogger
	metrics   *observability.Metrics

	traceMiddleware *trace.Middleware
	started         time.Time
	shutdownOnce    sync.Once
}

type Option func(*Server)

func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		s.logger = l.WithComponent(log.ComponentHTTP)
	}
}

// WithMetrics mounts /metrics and records dashboard outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, dashboard DashboardBuilder, opts ...Option) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
		},
		dashboard: dashboard,
		logger:    log.Default(log.ComponentHTTP),
		started:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = log.NewStructuredLogger(s.logger)
	s.traceMiddleware = trace.NewMiddleware(extractClientIP, s.logger)

	t, err := parseTemplates()
	if err != nil {
		s.logger.Warn("Failed parsing templates", log.FieldError, err)
	}
	s.templates = t

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /ui/dashboard", s.handleDashboardPartial)
	mux.HandleFunc("GET /api/dashboard", s.handleDashboardAPI)
	mux.HandleFunc("GET /api/catalog", s.handleCatalog)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	var handler http.Handler = mux
	handler = log.RequestIDMiddleware(trace.RequestID)(handler)
	handler = log.Middleware(s.logger)(handler)
	handler = headers.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)
	s.Handler = handler

	return s
}

// parseTemplates loads the embedded templates with the view helpers.
func parseTemplates() (*template.Template, error) {
	return template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
