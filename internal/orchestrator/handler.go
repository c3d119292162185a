package orchestrator

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/vigil/internal/faults"
	"github.com/JaimeStill/vigil/internal/reconciler"
	"github.com/JaimeStill/vigil/internal/results"
	"github.com/JaimeStill/vigil/internal/tasks"
	"github.com/JaimeStill/vigil/pkg/handlers"
	"github.com/JaimeStill/vigil/pkg/pagination"
	"github.com/JaimeStill/vigil/pkg/routes"
)

// Handler provides HTTP endpoints for task lifecycle operations.
type Handler struct {
	sys           System
	reconciler    reconciler.System
	logger        *slog.Logger
	pagination    pagination.Config
	maxUploadSize int64
}

// SearchRequest combines pagination and filter criteria for the search endpoint.
type SearchRequest struct {
	pagination.PageRequest
	tasks.Filters
}

// StatusRequest is an externally signalled status change.
type StatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// NewHandler creates a Handler.
func NewHandler(
	sys System,
	rec reconciler.System,
	logger *slog.Logger,
	pagination pagination.Config,
	maxUploadSize int64,
) *Handler {
	return &Handler{
		sys:           sys,
		reconciler:    rec,
		logger:        logger.With("handler", "tasks"),
		pagination:    pagination,
		maxUploadSize: maxUploadSize,
	}
}

// Routes returns the route group definition for task endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/tasks",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "POST", Pattern: "", Handler: h.Create},
			{Method: "POST", Pattern: "/search", Handler: h.Search},
			{Method: "GET", Pattern: "/{id}", Handler: h.Get},
			{Method: "DELETE", Pattern: "/{id}", Handler: h.Delete},
		},
		Children: []routes.Group{
			{
				Prefix: "/{id}",
				Routes: []routes.Route{
					{Method: "POST", Pattern: "/files", Handler: h.Upload},
					{Method: "POST", Pattern: "/start", Handler: h.Start},
					{Method: "PUT", Pattern: "/status", Handler: h.UpdateStatus},
					{Method: "POST", Pattern: "/reconcile", Handler: h.Reconcile},
					{Method: "POST", Pattern: "/reviews", Handler: h.RecordReview},
				},
			},
		},
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	handlers.RespondError(w, h.logger, faults.HTTPStatus(err), err)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := handlers.DecodeJSON(r, dst); err != nil {
		h.fail(w, fmt.Errorf("%w: %w", faults.ErrValidation, err))
		return false
	}
	return true
}

func (h *Handler) taskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.fail(w, fmt.Errorf("%w: invalid task id %q", faults.ErrValidation, r.PathValue("id")))
		return uuid.Nil, false
	}
	return id, true
}

// List returns a page of tasks filtered by query parameters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := tasks.FiltersFromQuery(r.URL.Query())

	result, err := h.sys.ListTasks(r.Context(), page, filters)
	if err != nil {
		h.fail(w, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Search accepts pagination and filter criteria as a JSON body.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !h.decode(w, r, &req) {
		return
	}

	req.PageRequest.Normalize(h.pagination)

	result, err := h.sys.ListTasks(r.Context(), req.PageRequest, req.Filters)
	if err != nil {
		h.fail(w, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Create registers a new task.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var cmd CreateCommand
	if !h.decode(w, r, &cmd) {
		return
	}

	t, err := h.sys.CreateTask(r.Context(), cmd)
	if err != nil {
		h.fail(w, err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, t)
}

// Get returns a task with its metrics.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	view, err := h.sys.GetTask(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, view)
}

// Upload stores a multipart file under the task's input location.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, ErrFileTooLarge)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, fmt.Errorf("%w: file field required", faults.ErrValidation))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.fail(w, fmt.Errorf("%w: read upload: %w", faults.ErrValidation, err))
		return
	}

	meta, err := h.sys.UploadFile(r.Context(), id, UploadCommand{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		h.fail(w, err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, meta)
}

// Start begins moderation of a task's inputs.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	t, err := h.sys.StartModeration(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, t)
}

// Delete removes a task and reports any cascade step that failed.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	report, err := h.sys.DeleteTask(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, report)
}

// UpdateStatus applies an externally signalled status change.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	var req StatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	status, err := tasks.ParseStatus(req.Status)
	if err != nil {
		h.fail(w, err)
		return
	}

	t, err := h.reconciler.UpdateStatus(r.Context(), id, status, req.Reason)
	if err != nil {
		h.fail(w, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, t)
}

// Reconcile re-derives a task's status from its collaborators.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	t, err := h.reconciler.Reconcile(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, t)
}

// RecordReview stores the outcome of a human review for one item.
func (h *Handler) RecordReview(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	var rv results.Review
	if !h.decode(w, r, &rv) {
		return
	}
	if rv.FilePath == "" {
		h.fail(w, fmt.Errorf("%w: file_path is required", faults.ErrValidation))
		return
	}

	item, err := h.reconciler.RecordReview(r.Context(), id, rv)
	if err != nil {
		h.fail(w, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, item)
}
