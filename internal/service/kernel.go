package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/kernel-server/internal/apperror"
	"github.com/sakif/kernel-server/internal/kernel"
	"github.com/sakif/kernel-server/internal/model"
	"github.com/sakif/kernel-server/internal/store"
)

// KernelService exposes the kernel lifecycle operations: status, explicit
// start with an optional accelerator override, stop, and restart.
type KernelService struct {
	manager *kernel.Manager
	store   store.Store
	logger  *slog.Logger
}

func NewKernelService(manager *kernel.Manager, st store.Store, logger *slog.Logger) *KernelService {
	return &KernelService{
		manager: manager,
		store:   st,
		logger:  logger,
	}
}

// Status reports whether the workspace's kernel is running.
func (s *KernelService) Status(ctx context.Context, workspaceID string) (*model.KernelStatus, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return nil, apperror.ValidationFailed("workspace_id", "workspace_id is required")
	}

	status, err := s.manager.Status(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("reading kernel status: %w", err)
	}
	return &status, nil
}

// Start creates a fresh kernel for the workspace, tearing down any
// existing one first. A non-empty accelerator becomes the workspace's
// stored preference before the kernel is created; unrecognized tokens
// fall back to the default.
func (s *KernelService) Start(ctx context.Context, workspaceID, accelerator string) (*model.KernelStatus, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return nil, apperror.ValidationFailed("workspace_id", "workspace_id is required")
	}

	if accelerator = strings.TrimSpace(accelerator); accelerator != "" {
		accelerator = model.NormalizeAccelerator(accelerator)
		if err := s.store.SetAccelerator(ctx, workspaceID, accelerator); err != nil {
			return nil, fmt.Errorf("storing accelerator preference: %w", err)
		}
	}

	// Terminate before create so a running kernel is replaced rather
	// than orphaned. Failure to tear down the old one is logged by the
	// manager and does not block the new kernel.
	if _, err := s.manager.Terminate(ctx, workspaceID); err != nil {
		return nil, fmt.Errorf("terminating previous kernel: %w", err)
	}

	if _, err := s.manager.Create(ctx, workspaceID, accelerator); err != nil {
		return nil, fmt.Errorf("starting kernel: %w", err)
	}

	status, err := s.manager.Status(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("reading kernel status: %w", err)
	}
	return &status, nil
}

// Stop terminates the workspace's kernel. The returned flag reports
// whether a kernel was actually running.
func (s *KernelService) Stop(ctx context.Context, workspaceID string) (bool, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return false, apperror.ValidationFailed("workspace_id", "workspace_id is required")
	}

	stopped, err := s.manager.Terminate(ctx, workspaceID)
	if err != nil {
		return false, fmt.Errorf("stopping kernel: %w", err)
	}
	return stopped, nil
}

// Restart replaces the workspace's kernel with a fresh one. All
// interpreter state is lost; the persisted pickle snapshot does not
// survive a restart because it lives inside the old container.
func (s *KernelService) Restart(ctx context.Context, workspaceID string) (*model.KernelStatus, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return nil, apperror.ValidationFailed("workspace_id", "workspace_id is required")
	}

	if _, err := s.manager.Recreate(ctx, workspaceID); err != nil {
		return nil, fmt.Errorf("restarting kernel: %w", err)
	}

	status, err := s.manager.Status(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("reading kernel status: %w", err)
	}
	return &status, nil
}
