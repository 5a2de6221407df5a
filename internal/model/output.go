package model

// Output kinds persisted to the workspace state store and returned to
// batch callers. The kernel wire protocol uses its own event types (see
// internal/kernel); these are the store-facing names.
const (
	OutputStdout    = "stdout"
	OutputStderr    = "stderr"
	OutputError     = "error"
	OutputImage     = "image"
	OutputResult    = "result"
	OutputDataframe = "dataframe"
)

// CellOutput is one persisted output record for a cell.
type CellOutput struct {
	CellID    string `json:"cell_id"`
	DisplayID string `json:"display_id"`
	Kind      string `json:"type"`
	Content   string `json:"content"`
}

// ResultPayload is the formatted value of a fragment's last bare expression.
// Format is "dataframe" for recognized tabular values (Content then holds the
// record-oriented JSON serialization) and "text" otherwise.
type ResultPayload struct {
	Format  string `json:"format"`
	Content string `json:"content"`
}

// ExecutionResult is the aggregate output record of one batch execution,
// parsed from the single JSON line the batch wrapper prints on exit.
type ExecutionResult struct {
	CellID    string         `json:"cell_id"`
	DisplayID string         `json:"display_id"`
	Stdout    string         `json:"stdout"`
	Stderr    string         `json:"stderr"`
	Error     string         `json:"error,omitempty"`
	Images    []string       `json:"images"`
	Result    *ResultPayload `json:"result,omitempty"`
}

// KernelStatus describes the state of a workspace's kernel.
type KernelStatus struct {
	WorkspaceID string `json:"workspace_id"`
	ContextID   string `json:"context_id,omitempty"`
	Status      string `json:"status"` // running, stopped, not_found
	Accelerator string `json:"accelerator,omitempty"`
}

// Kernel status values reported by the context manager.
const (
	StatusNotFound = "not_found"
	StatusRunning  = "running"
	StatusStopped  = "stopped"
)
