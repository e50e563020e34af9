// This file implements the captured-form endpoints.
//
// Routes:
//   - POST   /api/v1/forms                  -> HandleCapture
//   - GET    /api/v1/forms                  -> HandleList
//   - GET    /api/v1/forms/{localID}        -> HandleGet
//   - DELETE /api/v1/forms/{localID}        -> HandleDelete
//   - POST   /api/v1/forms/{localID}/retry  -> HandleRetry
//   - GET    /api/v1/form-types             -> HandleFormTypes
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/conformly/fieldsync/internal/domain"
	"github.com/conformly/fieldsync/internal/forms"
	"github.com/conformly/fieldsync/internal/metrics"
	"github.com/conformly/fieldsync/internal/queue"
)

// FormHandler serves capture and queue inspection endpoints.
type FormHandler struct {
	store    queue.Store
	registry *forms.Registry
	orgID    string
	logger   *slog.Logger
}

// NewFormHandler creates a new FormHandler. orgID is stamped onto every
// capture; the remote backend scopes records by organization.
func NewFormHandler(store queue.Store, registry *forms.Registry, orgID string, logger *slog.Logger) *FormHandler {
	return &FormHandler{
		store:    store,
		registry: registry,
		orgID:    orgID,
		logger:   logger,
	}
}

// RegisterRoutes registers form routes on the provided mux.
func (h *FormHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/forms", h.HandleCapture)
	mux.HandleFunc("GET /api/v1/forms", h.HandleList)
	mux.HandleFunc("GET /api/v1/forms/{localID}", h.HandleGet)
	mux.HandleFunc("DELETE /api/v1/forms/{localID}", h.HandleDelete)
	mux.HandleFunc("POST /api/v1/forms/{localID}/retry", h.HandleRetry)
	mux.HandleFunc("GET /api/v1/form-types", h.HandleFormTypes)
}

// CaptureRequest is the request body for POST /api/v1/forms.
type CaptureRequest struct {
	FormType         string                     `json:"form_type"`
	ProjectID        string                     `json:"project_id"`
	InspectorName    string                     `json:"inspector_name"`
	InspectionDate   time.Time                  `json:"inspection_date"`
	InspectionStatus string                     `json:"inspection_status"`
	Comments         string                     `json:"comments"`
	Fields           map[string]any             `json:"fields"`
	Results          domain.InspectionResultSet `json:"results"`
	Evidence         []domain.EvidenceFile      `json:"evidence"`
	// Submit marks the capture as final rather than a working draft.
	Submit bool `json:"submit"`
}

// HandleCapture validates a capture and enqueues it for sync. A capture that
// fails validation is never written to the queue.
func (h *FormHandler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	const op = "handler.capture"

	var req CaptureRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var ve *domain.ValidationError

	formType := domain.FormType(req.FormType)
	if !formType.IsValid() {
		ve = domain.AddFieldError(ve, "form_type", "unsupported form type")
	}
	if req.ProjectID == "" {
		ve = domain.AddFieldError(ve, "project_id", "is required")
	}
	if req.InspectorName == "" {
		ve = domain.AddFieldError(ve, "inspector_name", "is required")
	}
	if req.InspectionDate.IsZero() {
		ve = domain.AddFieldError(ve, "inspection_date", "is required")
	}
	if req.InspectionStatus == "" {
		req.InspectionStatus = string(domain.InspectionStatusPending)
	}
	if !domain.InspectionStatus(req.InspectionStatus).IsValid() {
		ve = domain.AddFieldError(ve, "inspection_status", "must be pending, approved, or rejected")
	}
	for section, items := range req.Results {
		for item, record := range items {
			if record.Result != "" && !record.Result.IsValid() {
				ve = domain.AddFieldError(ve, "results."+section+"."+item, "result must be pass, fail, or na")
			}
		}
	}
	for i, f := range req.Evidence {
		if f.Name == "" {
			ve = domain.AddFieldError(ve, "evidence["+strconv.Itoa(i)+"].name", "is required")
		}
	}

	fields := req.Fields
	if formType.IsValid() {
		normalized, err := h.registry.Validate(formType, req.Fields)
		var fieldErr *domain.ValidationError
		switch {
		case errors.As(err, &fieldErr):
			for name, reason := range fieldErr.Fields {
				ve = domain.AddFieldError(ve, name, reason)
			}
		case err != nil:
			ErrorResponse(w, r, h.logger, err)
			return
		default:
			fields = normalized
		}
	}

	if ve != nil {
		ve.Op = op
		ValidationErrorResponse(w, r, h.logger, ve)
		return
	}

	completion := domain.CalculateCompletion(req.Results)
	form := &domain.CapturedForm{
		LocalID:          domain.NewLocalID(formType),
		FormType:         formType,
		ProjectID:        req.ProjectID,
		OrganizationID:   h.orgID,
		InspectorName:    req.InspectorName,
		InspectionDate:   req.InspectionDate,
		InspectionStatus: domain.InspectionStatus(req.InspectionStatus),
		Comments:         req.Comments,
		Fields:           fields,
		Results:          req.Results,
		CompletionPct:    completion,
		OverallStatus:    domain.DeriveStatus(req.Submit, completion, ""),
		Evidence:         req.Evidence,
		SyncStatus:       domain.SyncStatusPending,
	}

	localID, err := h.store.Save(r.Context(), form)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	metrics.FormsCaptured.WithLabelValues(string(formType)).Inc()
	h.logger.Info("form captured",
		"local_id", localID,
		"form_type", formType,
		"project_id", req.ProjectID,
		"completion_pct", completion,
	)

	saved, err := h.store.Get(r.Context(), localID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// ListResponse is the response body for GET /api/v1/forms.
type ListResponse struct {
	Forms []domain.CapturedForm `json:"forms"`
	Count int                   `json:"count"`
}

// HandleList returns queued forms, optionally filtered by form_type,
// project_id, and sync_status query parameters.
func (h *FormHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	var filter queue.ListFilter

	q := r.URL.Query()
	if v := q.Get("form_type"); v != "" {
		ft := domain.FormType(v)
		if !ft.IsValid() {
			ErrorResponse(w, r, h.logger, domain.Invalid("handler.list", "unsupported form type filter"))
			return
		}
		filter.FormType = ft
	}
	if v := q.Get("project_id"); v != "" {
		filter.ProjectID = v
	}
	if v := q.Get("sync_status"); v != "" {
		ss := domain.SyncStatus(v)
		if !ss.IsValid() {
			ErrorResponse(w, r, h.logger, domain.Invalid("handler.list", "sync_status must be pending, synced, or failed"))
			return
		}
		filter.SyncStatus = ss
	}

	records, err := h.store.List(r.Context(), filter)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, ListResponse{Forms: records, Count: len(records)})
}

// HandleGet returns a single queued form by local ID.
func (h *FormHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	form, err := h.store.Get(r.Context(), r.PathValue("localID"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

// HandleDelete removes a form from the queue. Deleting a record that does
// not exist is a no-op.
func (h *FormHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), r.PathValue("localID")); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRetry requeues a failed form so the next sweep picks it up again.
func (h *FormHandler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	const op = "handler.retry"

	localID := r.PathValue("localID")
	form, err := h.store.Get(r.Context(), localID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if form.SyncStatus != domain.SyncStatusFailed {
		ErrorResponse(w, r, h.logger,
			domain.Conflict(op, "only failed forms can be retried"))
		return
	}

	err = h.store.UpdateSyncStatus(r.Context(), queue.UpdateSyncStatusParams{
		LocalID: localID,
		Status:  domain.SyncStatusPending,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("form requeued for sync", "local_id", localID)

	form, err = h.store.Get(r.Context(), localID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

// HandleFormTypes lists the form types this agent can capture.
func (h *FormHandler) HandleFormTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]domain.FormType{
		"form_types": h.registry.Types(),
	})
}
