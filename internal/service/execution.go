// Package service contains the business logic layer: it validates input,
// orchestrates the kernel executors and the state store, and returns
// domain errors for the handlers to translate.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sakif/kernel-server/internal/apperror"
	"github.com/sakif/kernel-server/internal/kernel"
	"github.com/sakif/kernel-server/internal/model"
	"github.com/sakif/kernel-server/internal/sandbox"
	"github.com/sakif/kernel-server/internal/store"
)

// MaxCommandLength bounds bash commands; anything longer is almost
// certainly a mistake or abuse.
const MaxCommandLength = 100000

// ExecuteReport is the outcome of a batch run. A report is always
// produced: orchestration failures surface as Success=false with a
// message, never as a raised error.
type ExecuteReport struct {
	Success bool               `json:"success"`
	Outputs []model.CellOutput `json:"outputs"`
	Message string             `json:"message,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// BashResult is the outcome of running a shell command in the
// workspace's kernel container.
type BashResult struct {
	Success  bool   `json:"success"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// ExecutionService orchestrates cell execution against a workspace's
// kernel: batch runs over one or all code cells, streaming runs of a
// single cell, and raw bash commands.
type ExecutionService struct {
	provider sandbox.Provider
	manager  *kernel.Manager
	batch    *kernel.BatchRunner
	stream   *kernel.StreamRunner
	router   *kernel.Router
	store    store.Store
	logger   *slog.Logger
}

func NewExecutionService(
	provider sandbox.Provider,
	manager *kernel.Manager,
	batch *kernel.BatchRunner,
	stream *kernel.StreamRunner,
	router *kernel.Router,
	st store.Store,
	logger *slog.Logger,
) *ExecutionService {
	return &ExecutionService{
		provider: provider,
		manager:  manager,
		batch:    batch,
		stream:   stream,
		router:   router,
		store:    st,
		logger:   logger,
	}
}

// Execute runs one cell (cellID non-empty) or every code cell of the
// workspace in order. Prior outputs are cleared per cell before it runs
// and each output piece is persisted. User-code errors are ordinary
// error-typed outputs and do not stop the run or fail the report; only
// orchestration failures (kernel cannot start, context unrecoverable)
// flip Success to false.
func (s *ExecutionService) Execute(ctx context.Context, workspaceID, cellID string) *ExecuteReport {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return &ExecuteReport{Outputs: []model.CellOutput{}, Error: "workspace_id is required"}
	}

	cells, err := s.resolveCells(ctx, workspaceID, cellID)
	if err != nil {
		return &ExecuteReport{Outputs: []model.CellOutput{}, Error: err.Error()}
	}
	if len(cells) == 0 {
		return &ExecuteReport{
			Success: true,
			Outputs: []model.CellOutput{},
			Message: "No code cells to execute",
		}
	}

	contextID, err := s.manager.Ensure(ctx, workspaceID)
	if err != nil {
		s.logger.Error("failed to ensure execution context",
			slog.String("workspace", workspaceID),
			slog.String("error", err.Error()),
		)
		return &ExecuteReport{
			Outputs: []model.CellOutput{},
			Error:   fmt.Sprintf("Failed to start kernel: %v", err),
		}
	}

	report := &ExecuteReport{Success: true, Outputs: []model.CellOutput{}}
	for _, cell := range cells {
		s.router.ClearOutputs(ctx, cell.ID)

		result, usedID, err := s.batch.Run(ctx, workspaceID, contextID, cell)
		if err != nil {
			s.logger.Error("cell execution failed",
				slog.String("workspace", workspaceID),
				slog.String("cell", cell.ID),
				slog.String("error", err.Error()),
			)
			report.Success = false
			report.Error = fmt.Sprintf("Execution failed: %v", err)
			return report
		}
		// A recreate-and-retry produced a fresh context; later cells
		// run against it.
		contextID = usedID

		// Record-level errors ride along as error-typed output pieces;
		// the remaining cells still run against the shared namespace.
		report.Outputs = append(report.Outputs, s.router.PersistResult(ctx, result)...)
	}

	return report
}

// Stream runs one cell in streaming mode, forwarding NDJSON event lines
// to sink. Unlike Execute, setup failures are returned as errors: the
// handler turns them into error+done events on the wire.
func (s *ExecutionService) Stream(ctx context.Context, workspaceID, cellID string, sink kernel.Sink) error {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return apperror.ValidationFailed("workspace_id", "workspace_id is required")
	}
	cellID = strings.TrimSpace(cellID)
	if cellID == "" {
		return apperror.ValidationFailed("cell_id", "cell_id is required")
	}

	cell, err := s.store.GetCell(ctx, cellID)
	if err != nil {
		return err
	}
	if cell.WorkspaceID != workspaceID {
		return apperror.NotFound("cell", cellID)
	}
	if !cell.Executable() {
		return apperror.ValidationFailed("cell_id", "cell is not an executable code cell")
	}

	contextID, err := s.manager.Ensure(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("ensuring execution context: %w", err)
	}

	s.router.ClearOutputs(ctx, cell.ID)

	if _, err := s.stream.Run(ctx, workspaceID, contextID, *cell, sink); err != nil {
		return fmt.Errorf("streaming execution: %w", err)
	}
	return nil
}

// Bash runs a shell command inside the workspace's kernel container and
// returns its captured output and exit code. Success means exit code 0.
func (s *ExecutionService) Bash(ctx context.Context, workspaceID, command string) (*BashResult, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return nil, apperror.ValidationFailed("workspace_id", "workspace_id is required")
	}
	if strings.TrimSpace(command) == "" {
		return nil, apperror.ValidationFailed("command", "command is required")
	}
	if len(command) > MaxCommandLength {
		return nil, apperror.ValidationFailed("command",
			fmt.Sprintf("command must be %d characters or less", MaxCommandLength))
	}

	contextID, err := s.manager.Ensure(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("ensuring execution context: %w", err)
	}

	handle, err := s.provider.Lookup(ctx, contextID)
	if err != nil {
		if sandbox.IsNotFound(err) {
			return nil, apperror.ContextLost(contextID, err)
		}
		return nil, fmt.Errorf("resolving execution context: %w", err)
	}

	proc, err := handle.Spawn(ctx, []string{"bash", "-c", command})
	if err != nil {
		return nil, fmt.Errorf("spawning command: %w", err)
	}

	stdout, err := io.ReadAll(proc.Stdout())
	if err != nil {
		return nil, fmt.Errorf("reading command stdout: %w", err)
	}
	stderr, err := io.ReadAll(proc.Stderr())
	if err != nil {
		return nil, fmt.Errorf("reading command stderr: %w", err)
	}
	exitCode, err := proc.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("waiting for command: %w", err)
	}

	s.logger.Info("bash command executed",
		slog.String("workspace", workspaceID),
		slog.Int("exit_code", exitCode),
	)

	return &BashResult{
		Success:  exitCode == 0,
		Stdout:   string(stdout),
		Stderr:   string(stderr),
		ExitCode: exitCode,
	}, nil
}

// resolveCells loads the cells a batch run covers: the one named cell, or
// every executable cell of the workspace in order.
func (s *ExecutionService) resolveCells(ctx context.Context, workspaceID, cellID string) ([]model.Cell, error) {
	if cellID = strings.TrimSpace(cellID); cellID != "" {
		cell, err := s.store.GetCell(ctx, cellID)
		if err != nil {
			return nil, err
		}
		if cell.WorkspaceID != workspaceID {
			return nil, apperror.NotFound("cell", cellID)
		}
		if !cell.Executable() {
			return nil, apperror.ValidationFailed("cell_id", "cell is not an executable code cell")
		}
		return []model.Cell{*cell}, nil
	}

	cells, err := s.store.GetCells(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("loading cells: %w", err)
	}
	executable := cells[:0]
	for _, cell := range cells {
		if cell.Executable() {
			executable = append(executable, cell)
		}
	}
	return executable, nil
}
