package engine

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/rhinocodelab/idms-v3/internal/activity"
	"github.com/rhinocodelab/idms-v3/internal/queue"
	"github.com/rhinocodelab/idms-v3/internal/workflows"
	"github.com/rhinocodelab/idms-v3/pkg/handlers"
	"github.com/rhinocodelab/idms-v3/pkg/pagination"
	"github.com/rhinocodelab/idms-v3/pkg/routes"
)

var errInvalidID = errors.New("invalid id")

// Handler provides HTTP endpoints for workflows, their queues, and activity.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "engine"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for engine endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/workflows", Handler: h.ListWorkflows},
			{Method: "POST", Pattern: "/workflows", Handler: h.CreateWorkflow},
			{Method: "GET", Pattern: "/workflows/{id}", Handler: h.FindWorkflow},
			{Method: "PUT", Pattern: "/workflows/{id}", Handler: h.UpdateWorkflow},
			{Method: "DELETE", Pattern: "/workflows/{id}", Handler: h.DeleteWorkflow},
			{Method: "POST", Pattern: "/workflows/{id}/start", Handler: h.StartWorkflow},
			{Method: "POST", Pattern: "/workflows/{id}/stop", Handler: h.StopWorkflow},
			{Method: "GET", Pattern: "/workflows/{id}/logs", Handler: h.WorkflowActivity},
			{Method: "GET", Pattern: "/queue", Handler: h.ListQueue},
			{Method: "POST", Pattern: "/queue/{id}/retry", Handler: h.RetryItem},
			{Method: "GET", Pattern: "/logs", Handler: h.ListActivity},
			{Method: "GET", Pattern: "/dashboard", Handler: h.Dashboard},
		},
	}
}

// ListWorkflows returns a paginated list of workflows with optional query parameter filters.
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters, err := workflows.FiltersFromQuery(r.URL.Query())
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	result, err := h.sys.ListWorkflows(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) FindWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	wf, err := h.sys.FindWorkflow(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, wf)
}

// CreateWorkflow defines a new stopped workflow.
func (h *Handler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var cmd workflows.CreateCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	wf, err := h.sys.CreateWorkflow(r.Context(), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, wf)
}

// UpdateWorkflow replaces the editable fields of a workflow that is not running.
func (h *Handler) UpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var cmd workflows.UpdateCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	wf, err := h.sys.UpdateWorkflow(r.Context(), id, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, wf)
}

func (h *Handler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.sys.DeleteWorkflow(r.Context(), id); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) StartWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	wf, err := h.sys.StartWorkflow(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, wf)
}

// StopWorkflow responds once the runner has exited and the stopped status is stored.
func (h *Handler) StopWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	wf, err := h.sys.StopWorkflow(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, wf)
}

// WorkflowActivity lists activity entries scoped to one workflow.
func (h *Handler) WorkflowActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters, err := activity.FiltersFromQuery(r.URL.Query())
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}
	filters.WorkflowID = &id

	result, err := h.sys.ListActivity(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// ListQueue returns queue items, optionally filtered by workflow_id, status, or file_name.
func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters, err := queue.FiltersFromQuery(r.URL.Query())
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	result, err := h.sys.ListQueue(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// RetryItem returns a failed item to pending.
func (h *Handler) RetryItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	item, err := h.sys.RetryItem(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, item)
}

func (h *Handler) ListActivity(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters, err := activity.FiltersFromQuery(r.URL.Query())
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	result, err := h.sys.ListActivity(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.sys.Dashboard(r.Context())
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, d)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
