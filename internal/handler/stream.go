package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/kernel-server/internal/apperror"
	"github.com/sakif/kernel-server/internal/kernel"
	"github.com/sakif/kernel-server/internal/service"
)

// StreamHandler serves streaming cell execution as NDJSON.
type StreamHandler struct {
	exec   *service.ExecutionService
	logger *slog.Logger
}

func NewStreamHandler(exec *service.ExecutionService, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		exec:   exec,
		logger: logger,
	}
}

// HandleStream executes one cell and streams its events as they happen.
//
// The response is NDJSON regardless of outcome: setup failures (unknown
// cell, markdown cell, kernel that refuses to start) arrive as an error
// event followed by done, not as an HTTP error status. Clients read one
// protocol, not two.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	cellID := chi.URLParam(r, "cellID")

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Tells nginx-style proxies not to buffer the stream.
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, canFlush := w.(http.Flusher)
	sink := func(line []byte) error {
		if _, err := w.Write(line); err != nil {
			return err
		}
		if canFlush {
			flusher.Flush()
		}
		return nil
	}

	if err := h.exec.Stream(r.Context(), workspaceID, cellID, sink); err != nil {
		// The client may already have received events; all we can do is
		// append an error event and terminate the stream cleanly.
		h.logger.Error("streaming execution failed",
			slog.String("workspace", workspaceID),
			slog.String("cell", cellID),
			slog.String("error", err.Error()),
		)
		_ = sink(kernel.Event{Type: kernel.EventError, Message: streamErrorMessage(err)}.Encode())
		_ = sink(kernel.Event{Type: kernel.EventDone}.Encode())
	}
	// On success the wrapper's own done event already closed the stream.
}

// streamErrorMessage keeps typed error messages and hides the rest, the
// streaming counterpart of writeError.
func streamErrorMessage(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "An internal error occurred"
}
