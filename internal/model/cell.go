// Package model defines the data structures used throughout the application.
package model

import "time"

// Cell kinds. Only code cells are executable; markdown cells are stored for
// completeness but skipped by the execution service.
const (
	CellKindCode     = "code"
	CellKindMarkdown = "markdown"
)

// Cell represents one notebook cell belonging to a workspace.
//
// A cell carries two identifiers: ID is the storage identifier (primary key
// in the state store) and DisplayID is the identifier the collaborative
// editor uses to address the cell's rendered outputs. Both travel with every
// execution so outputs can be routed either way.
type Cell struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	DisplayID   string    `json:"displayId"`
	Kind        string    `json:"kind"`
	Content     string    `json:"content"`
	Language    string    `json:"language,omitempty"`
	OrderIndex  int       `json:"orderIndex"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Executable reports whether the execution service should run this cell.
// Cells without a language default to python.
func (c Cell) Executable() bool {
	return c.Kind == CellKindCode && (c.Language == "" || c.Language == "python")
}
