package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/kernel-server/internal/apperror"
	"github.com/sakif/kernel-server/internal/model"
	"github.com/sakif/kernel-server/internal/store"
)

// Validation bounds for cell content.
const (
	MaxCellContentLength = 100000
)

// CellService manages a workspace's cells and its accelerator
// preference.
type CellService struct {
	store  store.Store
	logger *slog.Logger
}

func NewCellService(st store.Store, logger *slog.Logger) *CellService {
	return &CellService{
		store:  st,
		logger: logger,
	}
}

// List returns the workspace's cells in notebook order.
func (s *CellService) List(ctx context.Context, workspaceID string) ([]model.Cell, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return nil, apperror.ValidationFailed("workspace_id", "workspace_id is required")
	}

	cells, err := s.store.GetCells(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("listing cells: %w", err)
	}
	return cells, nil
}

// Get returns one cell by id or display id, scoped to the workspace.
func (s *CellService) Get(ctx context.Context, workspaceID, cellID string) (*model.Cell, error) {
	cellID = strings.TrimSpace(cellID)
	if cellID == "" {
		return nil, apperror.ValidationFailed("cell_id", "cell ID is required")
	}

	cell, err := s.store.GetCell(ctx, cellID)
	if err != nil {
		return nil, err
	}
	if cell.WorkspaceID != strings.TrimSpace(workspaceID) {
		return nil, apperror.NotFound("cell", cellID)
	}
	return cell, nil
}

// Create validates and saves a new cell. Kind defaults to code.
func (s *CellService) Create(ctx context.Context, workspaceID string, cell model.Cell) (*model.Cell, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return nil, apperror.ValidationFailed("workspace_id", "workspace_id is required")
	}
	if len(cell.Content) > MaxCellContentLength {
		return nil, apperror.ValidationFailed("content",
			fmt.Sprintf("cell content must be %d characters or less", MaxCellContentLength))
	}
	if cell.Kind != "" && cell.Kind != model.CellKindCode && cell.Kind != model.CellKindMarkdown {
		return nil, apperror.ValidationFailed("kind", "cell kind must be code or markdown")
	}

	cell.WorkspaceID = workspaceID
	if err := s.store.CreateCell(ctx, &cell); err != nil {
		s.logger.Error("failed to create cell",
			slog.String("workspace", workspaceID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating cell: %w", err)
	}

	s.logger.Info("cell created",
		slog.String("workspace", workspaceID),
		slog.String("cell", cell.ID),
	)
	return &cell, nil
}

// Update applies new content, language, or position to an existing cell.
func (s *CellService) Update(ctx context.Context, workspaceID, cellID string, content, language *string, orderIndex *int) (*model.Cell, error) {
	cell, err := s.Get(ctx, workspaceID, cellID)
	if err != nil {
		return nil, err
	}

	if content != nil {
		if len(*content) > MaxCellContentLength {
			return nil, apperror.ValidationFailed("content",
				fmt.Sprintf("cell content must be %d characters or less", MaxCellContentLength))
		}
		cell.Content = *content
	}
	if language != nil {
		cell.Language = *language
	}
	if orderIndex != nil {
		cell.OrderIndex = *orderIndex
	}

	if err := s.store.UpdateCell(ctx, cell); err != nil {
		s.logger.Error("failed to update cell",
			slog.String("cell", cell.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating cell: %w", err)
	}
	return cell, nil
}

// Outputs returns a cell's persisted outputs in arrival order.
func (s *CellService) Outputs(ctx context.Context, workspaceID, cellID string) ([]model.CellOutput, error) {
	cell, err := s.Get(ctx, workspaceID, cellID)
	if err != nil {
		return nil, err
	}

	outputs, err := s.store.GetOutputs(ctx, cell.ID)
	if err != nil {
		return nil, fmt.Errorf("loading outputs: %w", err)
	}
	if outputs == nil {
		outputs = []model.CellOutput{}
	}
	return outputs, nil
}

// SetAccelerator stores the workspace's accelerator preference. The
// token is normalized first, so an unrecognized value falls back to the
// default rather than failing. Takes effect on the next kernel start.
func (s *CellService) SetAccelerator(ctx context.Context, workspaceID, accelerator string) (string, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return "", apperror.ValidationFailed("workspace_id", "workspace_id is required")
	}
	if strings.TrimSpace(accelerator) == "" {
		return "", apperror.ValidationFailed("accelerator", "accelerator is required")
	}

	normalized := model.NormalizeAccelerator(accelerator)
	if err := s.store.SetAccelerator(ctx, workspaceID, normalized); err != nil {
		return "", fmt.Errorf("storing accelerator preference: %w", err)
	}

	s.logger.Info("accelerator preference set",
		slog.String("workspace", workspaceID),
		slog.String("accelerator", normalized),
	)
	return normalized, nil
}
