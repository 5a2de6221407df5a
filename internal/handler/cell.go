package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/kernel-server/internal/model"
	"github.com/sakif/kernel-server/internal/service"
)

// CellHandler serves cell management and workspace preference endpoints.
type CellHandler struct {
	cells  *service.CellService
	logger *slog.Logger
}

func NewCellHandler(cells *service.CellService, logger *slog.Logger) *CellHandler {
	return &CellHandler{
		cells:  cells,
		logger: logger,
	}
}

// HandleList returns the workspace's cells in notebook order.
func (h *CellHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	cells, err := h.cells.List(r.Context(), chi.URLParam(r, "workspaceID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if cells == nil {
		cells = []model.Cell{}
	}
	writeJSON(w, http.StatusOK, cells)
}

type createCellRequest struct {
	Kind       string `json:"kind,omitempty"`
	Content    string `json:"content"`
	Language   string `json:"language,omitempty"`
	OrderIndex int    `json:"order_index,omitempty"`
}

// HandleCreate adds a cell to the workspace.
func (h *CellHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createCellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid request body",
		})
		return
	}

	cell, err := h.cells.Create(r.Context(), chi.URLParam(r, "workspaceID"), model.Cell{
		Kind:       req.Kind,
		Content:    req.Content,
		Language:   req.Language,
		OrderIndex: req.OrderIndex,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cell)
}

type updateCellRequest struct {
	Content    *string `json:"content,omitempty"`
	Language   *string `json:"language,omitempty"`
	OrderIndex *int    `json:"order_index,omitempty"`
}

// HandleUpdate applies a partial update; absent fields are unchanged.
func (h *CellHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateCellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid request body",
		})
		return
	}

	cell, err := h.cells.Update(r.Context(),
		chi.URLParam(r, "workspaceID"), chi.URLParam(r, "cellID"),
		req.Content, req.Language, req.OrderIndex)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cell)
}

// HandleOutputs returns a cell's persisted outputs.
func (h *CellHandler) HandleOutputs(w http.ResponseWriter, r *http.Request) {
	outputs, err := h.cells.Outputs(r.Context(),
		chi.URLParam(r, "workspaceID"), chi.URLParam(r, "cellID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outputs)
}

type acceleratorRequest struct {
	Accelerator string `json:"accelerator"`
}

// HandleSetAccelerator stores the workspace's accelerator preference.
func (h *CellHandler) HandleSetAccelerator(w http.ResponseWriter, r *http.Request) {
	var req acceleratorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid request body",
		})
		return
	}

	accelerator, err := h.cells.SetAccelerator(r.Context(),
		chi.URLParam(r, "workspaceID"), req.Accelerator)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"accelerator": accelerator})
}
