package reports

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/vigil/internal/faults"
	"github.com/JaimeStill/vigil/pkg/handlers"
	"github.com/JaimeStill/vigil/pkg/routes"
)

// Handler provides HTTP endpoints for reports and exports.
type Handler struct {
	sys    System
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "reports"),
	}
}

// Routes returns the route group definition for report endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/reports/{id}",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "", Handler: h.Report},
			{Method: "POST", Pattern: "/export", Handler: h.Export},
			{Method: "GET", Pattern: "/unflagged", Handler: h.Unflagged},
		},
	}
}

// request parses the task id and optional filter body.
func (h *Handler) request(w http.ResponseWriter, r *http.Request) (uuid.UUID, Filters, bool) {
	var filters Filters

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.fail(w, fmt.Errorf("%w: invalid task id %q", faults.ErrValidation, r.PathValue("id")))
		return uuid.Nil, filters, false
	}

	if err := handlers.DecodeJSON(r, &filters); err != nil && !errors.Is(err, handlers.ErrEmptyBody) {
		h.fail(w, fmt.Errorf("%w: %w", faults.ErrValidation, err))
		return uuid.Nil, filters, false
	}
	return id, filters, true
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	handlers.RespondError(w, h.logger, faults.HTTPStatus(err), err)
}

// Report computes the aggregate report of a task.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	id, filters, ok := h.request(w, r)
	if !ok {
		return
	}

	report, err := h.sys.ComputeReport(r.Context(), id, filters)
	if err != nil {
		h.fail(w, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, report)
}

// Export writes the flagged rows of a task and returns a download link.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	id, filters, ok := h.request(w, r)
	if !ok {
		return
	}

	export, err := h.sys.ExportFlagged(r.Context(), id, filters)
	if err != nil {
		h.fail(w, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, export)
}

// Unflagged lists the clean items of a task.
func (h *Handler) Unflagged(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.fail(w, fmt.Errorf("%w: invalid task id %q", faults.ErrValidation, r.PathValue("id")))
		return
	}

	items, err := h.sys.ListUnflagged(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, items)
}
