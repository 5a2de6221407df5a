package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/kernel-server/internal/model"
	"github.com/sakif/kernel-server/internal/store"
)

// Compile-time check that *DB implements the store interface.
var _ store.Store = (*DB)(nil)

// GetAccelerator returns the workspace's accelerator preference, falling
// back to the default for missing workspaces and unrecognized tokens.
func (db *DB) GetAccelerator(ctx context.Context, workspaceID string) (string, error) {
	var accelerator string
	err := db.conn.QueryRowContext(ctx,
		`SELECT accelerator FROM workspaces WHERE id = ?`, workspaceID,
	).Scan(&accelerator)
	if err == sql.ErrNoRows {
		return model.DefaultAccelerator, nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: getting accelerator for %s: %w", workspaceID, err)
	}
	return model.NormalizeAccelerator(accelerator), nil
}

// SetAccelerator stores the workspace's accelerator preference.
func (db *DB) SetAccelerator(ctx context.Context, workspaceID, accelerator string) error {
	if err := db.touchWorkspace(workspaceID); err != nil {
		return fmt.Errorf("sqlite: ensuring workspace %s: %w", workspaceID, err)
	}
	_, err := db.conn.ExecContext(ctx,
		`UPDATE workspaces SET accelerator = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		accelerator, workspaceID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting accelerator for %s: %w", workspaceID, err)
	}
	return nil
}

// GetContextID returns the stored execution-context id, or "" when none is
// stored.
func (db *DB) GetContextID(ctx context.Context, workspaceID string) (string, error) {
	var contextID string
	err := db.conn.QueryRowContext(ctx,
		`SELECT context_id FROM workspaces WHERE id = ?`, workspaceID,
	).Scan(&contextID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: getting context id for %s: %w", workspaceID, err)
	}
	return contextID, nil
}

// SetContextID stores the execution-context id for a workspace. An empty id
// clears it.
func (db *DB) SetContextID(ctx context.Context, workspaceID, contextID string) error {
	if err := db.touchWorkspace(workspaceID); err != nil {
		return fmt.Errorf("sqlite: ensuring workspace %s: %w", workspaceID, err)
	}
	_, err := db.conn.ExecContext(ctx,
		`UPDATE workspaces SET context_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		contextID, workspaceID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting context id for %s: %w", workspaceID, err)
	}
	return nil
}
