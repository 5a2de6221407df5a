// Package store defines the workspace state store boundary: cell
// definitions, per-cell output records, the workspace's accelerator
// preference, and its active execution-context id.
package store

import (
	"context"

	"github.com/sakif/kernel-server/internal/model"
)

// Store is the keyed workspace state store. The kernel core treats it as an
// external collaborator; persistence and consistency are its problem.
//
// SetContextID with an empty id clears the stored context.
type Store interface {
	GetAccelerator(ctx context.Context, workspaceID string) (string, error)
	SetAccelerator(ctx context.Context, workspaceID, accelerator string) error

	GetContextID(ctx context.Context, workspaceID string) (string, error)
	SetContextID(ctx context.Context, workspaceID, contextID string) error

	GetCells(ctx context.Context, workspaceID string) ([]model.Cell, error)
	GetCell(ctx context.Context, id string) (*model.Cell, error)
	CreateCell(ctx context.Context, cell *model.Cell) error
	UpdateCell(ctx context.Context, cell *model.Cell) error

	SaveOutput(ctx context.Context, output model.CellOutput) error
	ClearOutputs(ctx context.Context, cellID string) error
	GetOutputs(ctx context.Context, cellID string) ([]model.CellOutput, error)
}
