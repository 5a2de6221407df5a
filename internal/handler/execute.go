package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/kernel-server/internal/service"
)

// ExecuteHandler serves the batch execution and bash endpoints.
type ExecuteHandler struct {
	exec   *service.ExecutionService
	logger *slog.Logger
}

func NewExecuteHandler(exec *service.ExecutionService, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		exec:   exec,
		logger: logger,
	}
}

type executeRequest struct {
	WorkspaceID string `json:"workspace_id"`
	CellID      string `json:"cell_id,omitempty"`
}

// HandleExecute runs one cell or all code cells of a workspace.
//
// The response is always 200 with a report body; execution failures are
// carried as success=false so the client sees the outputs produced before
// the failure.
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid execute request body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid request body",
		})
		return
	}

	report := h.exec.Execute(r.Context(), req.WorkspaceID, req.CellID)
	writeJSON(w, http.StatusOK, report)
}

// HandleExecuteCell is the path-parameter alias for running one cell.
func (h *ExecuteHandler) HandleExecuteCell(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	cellID := chi.URLParam(r, "cellID")

	report := h.exec.Execute(r.Context(), workspaceID, cellID)
	writeJSON(w, http.StatusOK, report)
}

type bashRequest struct {
	WorkspaceID string `json:"workspace_id"`
	Command     string `json:"command"`
}

// HandleBash runs a shell command in the workspace's kernel container.
func (h *ExecuteHandler) HandleBash(w http.ResponseWriter, r *http.Request) {
	var req bashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid bash request body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid request body",
		})
		return
	}

	result, err := h.exec.Bash(r.Context(), req.WorkspaceID, req.Command)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
