package exceptions

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tariffdesk/tariffdesk/pkg/handlers"
	"github.com/tariffdesk/tariffdesk/pkg/pagination"
	"github.com/tariffdesk/tariffdesk/pkg/routes"
)

// Handler provides HTTP endpoints for the review queue.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// ApproveRequest identifies the reviewer accepting a result.
type ApproveRequest struct {
	ApprovedBy string `json:"approved_by"`
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(
	sys System,
	logger *slog.Logger,
	pagination pagination.Config,
) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "exceptions"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for review queue endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/exceptions",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "POST", Pattern: "/{resultId}/approve", Handler: h.Approve},
		},
	}
}

// List returns the current review queue, lowest confidence first.
// Scope to one reviewer with the user_id query parameter.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)

	result, err := h.sys.List(r.Context(), page, r.URL.Query().Get("user_id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Approve accepts a below-threshold result, removing it from the queue.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("resultId"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return
	}

	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	if err := h.sys.Approve(r.Context(), id, req.ApprovedBy); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
