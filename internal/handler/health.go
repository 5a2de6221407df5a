package handler

import (
	"context"
	"net/http"
)

// StorePinger is the slice of the state store the health probe needs.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the service banner and health probe.
type HealthHandler struct {
	version string
	store   StorePinger
}

func NewHealthHandler(version string, store StorePinger) *HealthHandler {
	return &HealthHandler{
		version: version,
		store:   store,
	}
}

// HandleRoot is the service banner.
func (h *HealthHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "kernel-server",
		"version": h.version,
	})
}

type healthResponse struct {
	Status          string `json:"status"`
	StoreConfigured bool   `json:"store_configured"`
}

// HandleHealth reports liveness and whether the state store is reachable.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", StoreConfigured: true}
	if err := h.store.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.StoreConfigured = false
	}
	writeJSON(w, http.StatusOK, resp)
}
