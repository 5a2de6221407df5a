package kernel

import (
	"context"
	"log/slog"

	"github.com/sakif/kernel-server/internal/model"
	"github.com/sakif/kernel-server/internal/store"
)

// Router adapts execution results and stream summaries into the state
// store's output records.
//
// Persistence failures are logged and swallowed: a dead store must never
// block returning execution results to the caller, and each output piece
// is persisted independently so a failing piece never blocks the others.
type Router struct {
	store  store.Store
	logger *slog.Logger
}

func NewRouter(st store.Store, logger *slog.Logger) *Router {
	return &Router{
		store:  st,
		logger: logger,
	}
}

// PersistResult saves every populated piece of a batch output record and
// returns the persisted records in order.
func (r *Router) PersistResult(ctx context.Context, result *model.ExecutionResult) []model.CellOutput {
	var outputs []model.CellOutput

	if result.Stdout != "" {
		outputs = append(outputs, r.save(ctx, result.CellID, result.DisplayID, model.OutputStdout, result.Stdout))
	}
	if result.Stderr != "" {
		outputs = append(outputs, r.save(ctx, result.CellID, result.DisplayID, model.OutputStderr, result.Stderr))
	}
	if result.Error != "" {
		outputs = append(outputs, r.save(ctx, result.CellID, result.DisplayID, model.OutputError, result.Error))
	}
	for _, img := range result.Images {
		outputs = append(outputs, r.save(ctx, result.CellID, result.DisplayID, model.OutputImage, img))
	}
	if result.Result != nil {
		outputs = append(outputs, r.save(ctx, result.CellID, result.DisplayID,
			resultKind(result.Result.Format), result.Result.Content))
	}

	return outputs
}

// PersistSummary saves a drained stream's accumulated outputs.
func (r *Router) PersistSummary(ctx context.Context, cell model.Cell, summary *StreamSummary) {
	if summary.Stdout != "" {
		r.save(ctx, cell.ID, cell.DisplayID, model.OutputStdout, summary.Stdout)
	}
	for _, img := range summary.Images {
		r.save(ctx, cell.ID, cell.DisplayID, model.OutputImage, img)
	}
	if summary.Result != nil {
		r.save(ctx, cell.ID, cell.DisplayID, resultKind(summary.Result.Format), summary.Result.Content)
	}
	if summary.Error != "" {
		r.save(ctx, cell.ID, cell.DisplayID, model.OutputError, summary.Error)
	}
	if summary.Stderr != "" {
		r.save(ctx, cell.ID, cell.DisplayID, model.OutputStderr, summary.Stderr)
	}
}

// ClearOutputs removes a cell's previous outputs before re-execution.
// Failures are logged and swallowed like writes.
func (r *Router) ClearOutputs(ctx context.Context, cellID string) {
	if err := r.store.ClearOutputs(ctx, cellID); err != nil {
		r.logger.Error("failed to clear outputs",
			slog.String("cell", cellID),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Router) save(ctx context.Context, cellID, displayID, kind, content string) model.CellOutput {
	output := model.CellOutput{
		CellID:    cellID,
		DisplayID: displayID,
		Kind:      kind,
		Content:   content,
	}
	if err := r.store.SaveOutput(ctx, output); err != nil {
		r.logger.Error("failed to save output",
			slog.String("cell", cellID),
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
	}
	return output
}

// resultKind maps a result payload's format tag to its store-facing output
// kind.
func resultKind(format string) string {
	if format == model.OutputDataframe {
		return model.OutputDataframe
	}
	return model.OutputResult
}
