package runs

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tariffdesk/tariffdesk/internal/classify"
	"github.com/tariffdesk/tariffdesk/pkg/handlers"
	"github.com/tariffdesk/tariffdesk/pkg/pagination"
	"github.com/tariffdesk/tariffdesk/pkg/routes"
	"github.com/tariffdesk/tariffdesk/pkg/storage"
)

// Handler provides HTTP endpoints for bulk run operations.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// ClarifyRequest carries the reviewer's answers for one bulk item.
type ClarifyRequest struct {
	Answers []string `json:"clarification_answers"`
}

// SearchRequest combines pagination and filter criteria for the search endpoint.
type SearchRequest struct {
	pagination.PageRequest
	Filters
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(
	sys System,
	logger *slog.Logger,
	pagination pagination.Config,
) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "runs"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for run endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/runs",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "POST", Pattern: "", Handler: h.Start},
			{Method: "POST", Pattern: "/search", Handler: h.Search},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find},
			{Method: "POST", Pattern: "/{id}/cancel", Handler: h.Cancel},
			{Method: "GET", Pattern: "/{id}/items", Handler: h.Items},
			{Method: "POST", Pattern: "/{id}/items/{itemId}/clarify", Handler: h.Clarify},
			{Method: "GET", Pattern: "/{id}/export", Handler: h.Export},
			{Method: "GET", Pattern: "/{id}/source", Handler: h.Source},
		},
	}
}

// Start accepts a multipart upload (file + user_id) and begins a bulk run.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("file field required: %w", err))
		return
	}
	defer file.Close()

	view, err := h.sys.StartRun(r.Context(), r.FormValue("user_id"), header.Filename, file)
	if err != nil {
		handlers.RespondError(w, h.logger, h.status(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, view)
}

// List returns a page of runs with optional query parameter filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Search returns a page of runs from JSON body criteria.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	result, err := h.sys.List(r.Context(), req.PageRequest, req.Filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Find returns the run row plus its live snapshot. Clients poll this
// endpoint; each response fully replaces their view of the run.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	view, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, h.status(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, view)
}

// Cancel requests best-effort cancellation of a run.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	view, err := h.sys.Cancel(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, h.status(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, view)
}

// Items returns the persisted result history for a run.
func (h *Handler) Items(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	items, err := h.sys.Items(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, h.status(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, items)
}

// Clarify submits clarification answers for one item within a run.
func (h *Handler) Clarify(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req ClarifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	if err := h.sys.ClarifyItem(r.Context(), id, r.PathValue("itemId"), req.Answers); err != nil {
		handlers.RespondError(w, h.logger, h.status(err), err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Export streams a terminal run's items as CSV.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="run-%s.csv"`, id))

	if err := h.sys.Export(r.Context(), id, w); err != nil {
		handlers.RespondError(w, h.logger, h.status(err), err)
		return
	}
}

// Source streams the archived upload file for a run.
func (h *Handler) Source(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	result, name, err := h.sys.SourceFile(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, h.status(err), err)
		return
	}
	defer result.Body.Close()

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	if result.ContentLength > 0 {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", result.ContentLength))
	}

	if _, err := io.Copy(w, result.Body); err != nil {
		h.logger.Warn("source stream interrupted", "runId", id, "error", err)
	}
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) status(err error) int {
	if status := classify.MapHTTPStatus(err); status != http.StatusInternalServerError {
		return status
	}
	if status := storage.MapHTTPStatus(err); status != http.StatusInternalServerError {
		return status
	}
	return MapHTTPStatus(err)
}
