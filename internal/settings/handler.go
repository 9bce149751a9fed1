package settings

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"

	"github.com/tariffdesk/tariffdesk/internal/policy"
	"github.com/tariffdesk/tariffdesk/pkg/handlers"
	"github.com/tariffdesk/tariffdesk/pkg/pagination"
	"github.com/tariffdesk/tariffdesk/pkg/routes"
)

// Handler provides HTTP endpoints for reviewer configuration.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(
	sys System,
	logger *slog.Logger,
	pagination pagination.Config,
) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "settings"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for settings endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/settings",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "GET", Pattern: "/{userId}", Handler: h.Find},
			{Method: "PUT", Pattern: "/{userId}", Handler: h.Upsert},
			{Method: "DELETE", Pattern: "/{userId}", Handler: h.Delete},
		},
	}
}

// List returns a paginated list of reviewer configurations.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)

	result, err := h.sys.List(r.Context(), page)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Find returns a single reviewer's configuration. Unconfigured reviewers
// receive the policy default rather than a 404 so clients never special-case
// first use.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	setting, err := h.sys.Find(r.Context(), userID)
	if errors.Is(err, ErrNotFound) {
		handlers.RespondJSON(w, http.StatusOK, Setting{
			UserID:           userID,
			ThresholdPercent: int(math.Round(policy.DefaultThreshold * 100)),
		})
		return
	}
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, setting)
}

// Upsert creates or replaces a reviewer's configuration from a JSON body.
func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	var cmd UpdateCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	setting, err := h.sys.Upsert(r.Context(), r.PathValue("userId"), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, setting)
}

// Delete removes a reviewer's configuration, reverting them to the default.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.sys.Delete(r.Context(), r.PathValue("userId")); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
