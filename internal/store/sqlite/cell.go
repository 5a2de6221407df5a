package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/kernel-server/internal/apperror"
	"github.com/sakif/kernel-server/internal/model"
)

// GetCells returns all cells of a workspace ordered by their notebook
// position.
func (db *DB) GetCells(ctx context.Context, workspaceID string) ([]model.Cell, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, workspace_id, display_id, kind, content, language, order_index, status,
		        created_at, updated_at
		 FROM cells
		 WHERE workspace_id = ?
		 ORDER BY order_index ASC, created_at ASC`,
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing cells for %s: %w", workspaceID, err)
	}
	defer rows.Close()

	var cells []model.Cell
	for rows.Next() {
		var c model.Cell
		if err := rows.Scan(
			&c.ID, &c.WorkspaceID, &c.DisplayID, &c.Kind, &c.Content, &c.Language,
			&c.OrderIndex, &c.Status, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning cell row: %w", err)
		}
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating cells: %w", err)
	}

	return cells, nil
}

// GetCell fetches one cell by its storage id or its display id. Callers
// address cells either way, matching the two identifiers every output
// record carries.
func (db *DB) GetCell(ctx context.Context, id string) (*model.Cell, error) {
	var c model.Cell
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, workspace_id, display_id, kind, content, language, order_index, status,
		        created_at, updated_at
		 FROM cells
		 WHERE id = ? OR display_id = ?`,
		id, id,
	).Scan(
		&c.ID, &c.WorkspaceID, &c.DisplayID, &c.Kind, &c.Content, &c.Language,
		&c.OrderIndex, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("cell", id)
		}
		return nil, fmt.Errorf("sqlite: getting cell %s: %w", id, err)
	}
	return &c, nil
}

// CreateCell inserts a new cell, generating its id (and display id, when
// the caller supplied none).
func (db *DB) CreateCell(ctx context.Context, cell *model.Cell) error {
	cell.ID = xid.New().String()
	if cell.DisplayID == "" {
		cell.DisplayID = xid.New().String()
	}
	if cell.Kind == "" {
		cell.Kind = model.CellKindCode
	}
	if cell.Status == "" {
		cell.Status = "idle"
	}

	now := time.Now()
	cell.CreatedAt = now
	cell.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO cells (id, workspace_id, display_id, kind, content, language,
		                    order_index, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cell.ID, cell.WorkspaceID, cell.DisplayID, cell.Kind, cell.Content,
		cell.Language, cell.OrderIndex, cell.Status, cell.CreatedAt, cell.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating cell: %w", err)
	}
	return nil
}

// UpdateCell updates a cell's mutable fields.
func (db *DB) UpdateCell(ctx context.Context, cell *model.Cell) error {
	cell.UpdatedAt = time.Now()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE cells
		 SET content = ?, kind = ?, language = ?, order_index = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		cell.Content, cell.Kind, cell.Language, cell.OrderIndex, cell.Status,
		cell.UpdatedAt, cell.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating cell %s: %w", cell.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("cell", cell.ID)
	}
	return nil
}
