package http

import (
	"net/http"
	"time"

	"hdbdash/internal/core"
	"hdbdash/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	}
	_ = writeJSON(w, http.StatusOK, health)
}

// handleReady reports whether the server can render dashboards
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if s.dashboard == nil {
		checks["dashboard"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["dashboard"] = "ok"
	}

	checks["requests"] = s.traceMiddleware.GetMetrics().TotalRequests

	response := map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}
	_ = writeJSON(w, httpStatus, response)
}

type metricOption struct {
	Value core.Metric
	Label string
}

// indexData feeds index.html: the controls plus the first dashboard.
type indexData struct {
	Towns        []string
	FlatTypes    []string
	Metrics      []metricOption
	MaxTowns     int
	MaxFlatTypes int
	Map          core.MapMarker
	Dashboard    dashboardData
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())
	if s.templates == nil {
		logger.ErrorContext(r.Context(), "Templates not loaded",
			log.FieldPath, r.URL.Path,
			"error_type", log.ErrorTypeConfiguration)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	status, dash := s.renderDashboard(r)
	data := indexData{
		Towns:     core.Towns,
		FlatTypes: core.FlatTypes,
		Metrics: []metricOption{
			{Value: core.MetricRawPrice, Label: "Resale price"},
			{Value: core.MetricPricePerArea, Label: "Price per sqm"},
		},
		MaxTowns:     core.MaxSelectedTowns,
		MaxFlatTypes: core.MaxSelectedFlatTypes,
		Map:          core.DefaultMapMarker(),
		Dashboard:    dash,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		logger.ErrorContext(r.Context(), "Index template execution failed",
			log.FieldError, err,
			"template", "index.html")
	}
}

// handleCatalog lists the values the controls accept.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]any{
		"towns":          core.Towns,
		"flat_types":     core.FlatTypes,
		"metrics":        []core.Metric{core.MetricRawPrice, core.MetricPricePerArea},
		"max_towns":      core.MaxSelectedTowns,
		"max_flat_types": core.MaxSelectedFlatTypes,
		"default":        core.DefaultSelection(),
	})
}
