package kernel

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sakif/kernel-server/internal/apperror"
	"github.com/sakif/kernel-server/internal/magic"
	"github.com/sakif/kernel-server/internal/model"
	"github.com/sakif/kernel-server/internal/sandbox"
	"github.com/sakif/kernel-server/internal/wrapper"
)

// rawOutputLimit bounds how much raw kernel output a synthesized parse
// error carries for diagnosis.
const rawOutputLimit = 500

// BatchRunner executes a cell's code in batch mode: the wrapper program
// runs to completion and its last stdout line is the authoritative output
// record.
//
// On any execution failure, including a context that no longer resolves,
// the runner terminates the context, creates a fresh one, and retries
// exactly once. Malformed or missing wrapper output is not a failure; it
// is synthesized into an error-typed record, so a batch run always yields
// a record.
type BatchRunner struct {
	provider sandbox.Provider
	manager  *Manager
	logger   *slog.Logger
}

func NewBatchRunner(provider sandbox.Provider, manager *Manager, logger *slog.Logger) *BatchRunner {
	return &BatchRunner{
		provider: provider,
		manager:  manager,
		logger:   logger,
	}
}

// Run executes the cell on the given context and returns the output record
// plus the context id the result came from (which differs from contextID
// after a recreate-and-retry).
func (r *BatchRunner) Run(ctx context.Context, workspaceID, contextID string, cell model.Cell) (*model.ExecutionResult, string, error) {
	code := magic.Preprocess(cell.Content)
	program := wrapper.Batch(code, cell.ID, cell.DisplayID)

	result, err := r.runOnce(ctx, contextID, cell, program)
	if err == nil {
		return result, contextID, nil
	}

	r.logger.Warn("batch execution failed, recreating context",
		slog.String("workspace", workspaceID),
		slog.String("context", contextID),
		slog.String("error", err.Error()),
	)

	freshID, rerr := r.manager.Recreate(ctx, workspaceID)
	if rerr != nil {
		return nil, "", fmt.Errorf("recreating context after failure: %w", rerr)
	}

	result, err = r.runOnce(ctx, freshID, cell, program)
	if err != nil {
		if sandbox.IsNotFound(err) {
			return nil, "", apperror.ContextLost(freshID, err)
		}
		return nil, "", fmt.Errorf("retry on fresh context failed: %w", err)
	}
	return result, freshID, nil
}

func (r *BatchRunner) runOnce(ctx context.Context, contextID string, cell model.Cell, program string) (*model.ExecutionResult, error) {
	handle, err := r.provider.Lookup(ctx, contextID)
	if err != nil {
		return nil, err
	}

	proc, err := handle.Spawn(ctx, []string{"python", "-c", program})
	if err != nil {
		return nil, err
	}

	lines, err := readLines(proc.Stdout())
	if err != nil {
		return nil, fmt.Errorf("reading kernel stdout: %w", err)
	}

	stderrBytes, err := io.ReadAll(proc.Stderr())
	if err != nil {
		return nil, fmt.Errorf("reading kernel stderr: %w", err)
	}
	stderr := string(stderrBytes)

	if _, err := proc.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for kernel process: %w", err)
	}

	if len(lines) == 0 {
		msg := stderr
		if msg == "" {
			msg = "No output from kernel"
		}
		return &model.ExecutionResult{
			CellID:    cell.ID,
			DisplayID: cell.DisplayID,
			Error:     msg,
			Images:    []string{},
		}, nil
	}

	var result model.ExecutionResult
	last := strings.TrimSpace(lines[len(lines)-1])
	if err := json.Unmarshal([]byte(last), &result); err != nil {
		allOutput := strings.Join(lines, "")
		perr := apperror.Protocol(fmt.Sprintf("Kernel output parse error: %v\nRaw output: %s",
			err, truncate(allOutput, rawOutputLimit)))
		r.logger.Warn("kernel record parse failed",
			slog.String("cell", cell.ID),
			slog.String("error", perr.Error()),
		)
		return &model.ExecutionResult{
			CellID:    cell.ID,
			DisplayID: cell.DisplayID,
			Stdout:    allOutput,
			Stderr:    stderr,
			Error:     perr.Message,
			Images:    []string{},
		}, nil
	}

	// Process-level stderr (wrapper crashes, interpreter warnings) is
	// appended to whatever the wrapper itself captured.
	if stderr != "" {
		if result.Stderr != "" {
			result.Stderr += "\n" + stderr
		} else {
			result.Stderr = stderr
		}
	}

	return &result, nil
}

// readLines consumes the reader to EOF, returning complete lines with
// their newlines plus any unterminated remainder as the final element.
func readLines(r io.Reader) ([]string, error) {
	var lines []string
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			lines = append(lines, line)
		}
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
