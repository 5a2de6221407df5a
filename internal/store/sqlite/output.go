package sqlite

import (
	"context"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/kernel-server/internal/model"
)

// SaveOutput appends one output record for a cell. Records are append-only;
// re-execution clears them first via ClearOutputs.
func (db *DB) SaveOutput(ctx context.Context, output model.CellOutput) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO cell_outputs (id, cell_id, display_id, kind, content)
		 VALUES (?, ?, ?, ?, ?)`,
		xid.New().String(), output.CellID, output.DisplayID, output.Kind, output.Content,
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving output for cell %s: %w", output.CellID, err)
	}
	return nil
}

// ClearOutputs removes all output records of a cell.
func (db *DB) ClearOutputs(ctx context.Context, cellID string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM cell_outputs WHERE cell_id = ?`, cellID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: clearing outputs for cell %s: %w", cellID, err)
	}
	return nil
}

// GetOutputs returns a cell's output records in insertion order. xid values
// are time-ordered, so sorting by id preserves arrival order even within
// one timestamp.
func (db *DB) GetOutputs(ctx context.Context, cellID string) ([]model.CellOutput, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT cell_id, display_id, kind, content
		 FROM cell_outputs
		 WHERE cell_id = ?
		 ORDER BY id ASC`,
		cellID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing outputs for cell %s: %w", cellID, err)
	}
	defer rows.Close()

	var outputs []model.CellOutput
	for rows.Next() {
		var o model.CellOutput
		if err := rows.Scan(&o.CellID, &o.DisplayID, &o.Kind, &o.Content); err != nil {
			return nil, fmt.Errorf("sqlite: scanning output row: %w", err)
		}
		outputs = append(outputs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating outputs: %w", err)
	}

	return outputs, nil
}
