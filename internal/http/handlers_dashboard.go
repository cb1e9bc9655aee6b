package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"hdbdash/internal/core"
	"hdbdash/internal/log"
)

// dashboardData feeds the "dashboard" template.
type dashboardData struct {
	View     core.DashboardView
	Error    string
	ViewJSON string
}

// apiError is the JSON body of a failed /api/dashboard call.
type apiError struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// statusForError maps pipeline failures to HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidSelection):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNetwork), errors.Is(err, core.ErrMalformedResponse):
		return http.StatusBadGateway
	case errors.Is(err, core.ErrDivision), errors.Is(err, core.ErrInvalidNumber):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// userMessage is the banner text for a pipeline failure.
func userMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidSelection):
		return "Invalid selection."
	case errors.Is(err, core.ErrNetwork):
		return "Could not reach the resale data service."
	case errors.Is(err, core.ErrMalformedResponse):
		return "The resale data service returned an unexpected response."
	case errors.Is(err, core.ErrDivision), errors.Is(err, core.ErrInvalidNumber):
		return "Some resale records could not be aggregated."
	default:
		return "Something went wrong while building the dashboard."
	}
}

func (s *Server) renderDashboard(r *http.Request) (int, dashboardData) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	sel, err := ParseSelection(r.URL.Query())
	if err != nil {
		logger.WarnContext(ctx, "Rejected dashboard selection",
			log.FieldOperation, log.OpValidate,
			log.FieldQuery, r.URL.RawQuery,
			log.FieldError, err)
		return http.StatusUnprocessableEntity, dashboardData{
			View:  core.DashboardView{Selection: core.DefaultSelection()},
			Error: userMessage(err) + " " + err.Error(),
		}
	}

	view, err := s.dashboard.Build(ctx, sel)
	if err != nil {
		s.events.LogError(ctx, "Dashboard build failed", err, log.ComponentDashboard, log.OpRender,
			log.NewFields().WithSelection(sel.Towns, sel.FlatTypes, string(sel.Metric)))
		return statusForError(err), dashboardData{
			View:  core.DashboardView{Selection: sel},
			Error: userMessage(err),
		}
	}

	raw, err := json.Marshal(view)
	if err != nil {
		s.events.LogError(ctx, "Dashboard encode failed", err, log.ComponentHTTP, log.OpRender, nil)
		return http.StatusInternalServerError, dashboardData{
			View:  core.DashboardView{Selection: sel},
			Error: userMessage(err),
		}
	}

	aggregates := 0
	for _, cs := range view.Series {
		aggregates += len(cs.Points)
	}
	s.events.LogDashboardRendered(ctx, sel.Towns, sel.FlatTypes, string(sel.Metric), view.Records, aggregates)

	return http.StatusOK, dashboardData{View: view, ViewJSON: string(raw)}
}

// handleDashboardPartial renders the dashboard fragment swapped in by HTMX.
func (s *Server) handleDashboardPartial(w http.ResponseWriter, r *http.Request) {
	status, data := s.renderDashboard(r)

	if s.templates == nil {
		InternalServerError("templates not loaded").Write(w)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "dashboard", data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Dashboard template execution failed",
			log.FieldError, err,
			"template", "dashboard")
		InternalServerError("Error rendering dashboard").Write(w)
		return
	}

	resp := NewHTMXResponse().Status(status).Body(buf.Bytes()).
		Header("Content-Type", "text/html; charset=utf-8")
	switch {
	case data.Error != "":
		resp.TriggerErrorNotification(data.Error)
	case data.View.Empty:
		resp.TriggerWarningNotification(data.View.Warning)
	default:
		resp.TriggerDashboardRendered(len(data.View.Series), data.View.Records).
			Header("HX-Push-Url", "/?"+Query(data.View.Selection).Encode())
	}
	resp.Write(w)
}

// handleDashboardAPI returns the dashboard view as JSON.
func (s *Server) handleDashboardAPI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sel, err := ParseSelection(r.URL.Query())
	if err != nil {
		_ = writeJSON(w, http.StatusUnprocessableEntity, apiError{Error: userMessage(err), Detail: err.Error()})
		return
	}

	view, err := s.dashboard.Build(ctx, sel)
	if err != nil {
		s.events.LogError(ctx, "Dashboard build failed", err, log.ComponentDashboard, log.OpRender,
			log.NewFields().WithSelection(sel.Towns, sel.FlatTypes, string(sel.Metric)))
		_ = writeJSON(w, statusForError(err), apiError{Error: userMessage(err), Detail: err.Error()})
		return
	}

	if err := writeJSON(w, http.StatusOK, view); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Failed to write dashboard JSON", log.FieldError, err)
	}
}
