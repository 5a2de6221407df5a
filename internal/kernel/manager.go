package kernel

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/kernel-server/internal/model"
	"github.com/sakif/kernel-server/internal/sandbox"
	"github.com/sakif/kernel-server/internal/store"
)

// Manager maps workspaces to live execution contexts.
//
// At most one context is considered current for a workspace: the one whose
// id the state store holds. The invariant is advisory only. Two callers
// racing Ensure/Create can both create sandboxes and the last SetContextID
// write wins; the loser is reaped by the provider's own lifetime limits.
// Callers are expected to serialize requests per workspace.
type Manager struct {
	provider sandbox.Provider
	store    store.Store
	logger   *slog.Logger
}

func NewManager(provider sandbox.Provider, st store.Store, logger *slog.Logger) *Manager {
	return &Manager{
		provider: provider,
		store:    st,
		logger:   logger,
	}
}

// Ensure returns the workspace's current context id, verifying it still
// resolves at the provider. A stale stored id is cleared and replaced by a
// freshly created context.
func (m *Manager) Ensure(ctx context.Context, workspaceID string) (string, error) {
	contextID, err := m.store.GetContextID(ctx, workspaceID)
	if err != nil {
		return "", fmt.Errorf("reading context id: %w", err)
	}

	if contextID != "" {
		if _, err := m.provider.Lookup(ctx, contextID); err == nil {
			return contextID, nil
		}
		m.logger.Warn("stored context no longer valid",
			slog.String("workspace", workspaceID),
			slog.String("context", contextID),
		)
		if err := m.store.SetContextID(ctx, workspaceID, ""); err != nil {
			m.logger.Error("failed to clear stale context id", slog.String("error", err.Error()))
		}
	}

	return m.Create(ctx, workspaceID, "")
}

// Create always creates a fresh context for the workspace and stores its
// id, overwriting any previous value. An empty accelerator means "use the
// workspace's stored preference".
func (m *Manager) Create(ctx context.Context, workspaceID, accelerator string) (string, error) {
	if accelerator == "" {
		var err error
		accelerator, err = m.store.GetAccelerator(ctx, workspaceID)
		if err != nil {
			return "", fmt.Errorf("reading accelerator: %w", err)
		}
	}
	accelerator = model.NormalizeAccelerator(accelerator)

	contextID, err := m.provider.Create(ctx, sandbox.CreateOptions{
		Accelerator: accelerator,
		WorkspaceID: workspaceID,
	})
	if err != nil {
		return "", fmt.Errorf("creating execution context: %w", err)
	}

	if err := m.store.SetContextID(ctx, workspaceID, contextID); err != nil {
		return "", fmt.Errorf("storing context id: %w", err)
	}

	m.logger.Info("execution context created",
		slog.String("workspace", workspaceID),
		slog.String("context", contextID),
		slog.String("accelerator", accelerator),
	)
	return contextID, nil
}

// Terminate tears down the workspace's context. The stored id is cleared
// even when provider termination fails; the return value reports whether
// termination itself succeeded. A workspace with no stored context is a
// no-op returning false.
func (m *Manager) Terminate(ctx context.Context, workspaceID string) (bool, error) {
	contextID, err := m.store.GetContextID(ctx, workspaceID)
	if err != nil {
		return false, fmt.Errorf("reading context id: %w", err)
	}
	if contextID == "" {
		return false, nil
	}

	terminated := true
	if err := m.provider.Terminate(ctx, contextID); err != nil {
		m.logger.Error("failed to terminate context",
			slog.String("workspace", workspaceID),
			slog.String("context", contextID),
			slog.String("error", err.Error()),
		)
		terminated = false
	}

	if err := m.store.SetContextID(ctx, workspaceID, ""); err != nil {
		return terminated, fmt.Errorf("clearing context id: %w", err)
	}

	m.logger.Info("execution context terminated",
		slog.String("workspace", workspaceID),
		slog.String("context", contextID),
		slog.Bool("clean", terminated),
	)
	return terminated, nil
}

// Recreate tears down the current context (if any) and creates a fresh
// one. Used by the executors' context-loss recovery.
func (m *Manager) Recreate(ctx context.Context, workspaceID string) (string, error) {
	if _, err := m.Terminate(ctx, workspaceID); err != nil {
		return "", err
	}
	return m.Create(ctx, workspaceID, "")
}

// Status reports whether the workspace's context is running. A stored id
// that no longer resolves is cleared and reported as stopped.
func (m *Manager) Status(ctx context.Context, workspaceID string) (model.KernelStatus, error) {
	status := model.KernelStatus{WorkspaceID: workspaceID}

	contextID, err := m.store.GetContextID(ctx, workspaceID)
	if err != nil {
		return status, fmt.Errorf("reading context id: %w", err)
	}
	if contextID == "" {
		status.Status = model.StatusNotFound
		return status, nil
	}

	if _, err := m.provider.Lookup(ctx, contextID); err != nil {
		if err := m.store.SetContextID(ctx, workspaceID, ""); err != nil {
			m.logger.Error("failed to clear stale context id", slog.String("error", err.Error()))
		}
		status.Status = model.StatusStopped
		return status, nil
	}

	accelerator, err := m.store.GetAccelerator(ctx, workspaceID)
	if err != nil {
		return status, fmt.Errorf("reading accelerator: %w", err)
	}

	status.ContextID = contextID
	status.Status = model.StatusRunning
	status.Accelerator = accelerator
	return status, nil
}
