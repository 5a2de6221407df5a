package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/kernel-server/internal/service"
)

// KernelHandler serves the kernel lifecycle endpoints.
type KernelHandler struct {
	kernels *service.KernelService
	logger  *slog.Logger
}

func NewKernelHandler(kernels *service.KernelService, logger *slog.Logger) *KernelHandler {
	return &KernelHandler{
		kernels: kernels,
		logger:  logger,
	}
}

// HandleStatus reports whether the workspace's kernel is running.
func (h *KernelHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.kernels.Status(r.Context(), chi.URLParam(r, "workspaceID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type startRequest struct {
	Accelerator string `json:"accelerator,omitempty"`
}

// HandleStart starts a fresh kernel, replacing any running one. The body
// is optional; when present it may carry an accelerator override.
func (h *KernelHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid request body",
		})
		return
	}

	status, err := h.kernels.Start(r.Context(), chi.URLParam(r, "workspaceID"), req.Accelerator)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleStop terminates the workspace's kernel.
func (h *KernelHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	stopped, err := h.kernels.Stop(r.Context(), chi.URLParam(r, "workspaceID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

// HandleRestart replaces the kernel with a fresh one, losing all state.
func (h *KernelHandler) HandleRestart(w http.ResponseWriter, r *http.Request) {
	status, err := h.kernels.Restart(r.Context(), chi.URLParam(r, "workspaceID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
