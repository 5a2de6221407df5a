package kernel

import (
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

// restartNotice is streamed to the caller before a context-loss retry, so
// the client can tell the fresh context's output from the stale one's.
const restartNotice = "[Kernel restarting...]\n"

// Sink receives one newline-terminated NDJSON line per call, in arrival
// order. A Sink error stops consumption; the kernel process keeps running
// and its remaining output is discarded.
type Sink func(line []byte) error

// StreamSummary accumulates a stream's events for persistence after the
// stream ends.
type StreamSummary struct {
	Stdout string
	Images []string
	Result *model.ResultPayload
	Error  string
	Stderr string

	// done records whether the wrapper's own done event arrived.
	done bool
}

// StreamRunner executes a cell's code in streaming mode, forwarding NDJSON
// events to the caller as the underlying lines complete and persisting an
// accumulated summary once the stream is drained.
//
// The stdout stream arrives in arbitrary chunks; the runner buffers bytes
// and processes one complete line at a time, never assuming chunk
// boundaries align with event boundaries. Lines that are not valid JSON
// events are treated as literal stdout content and re-emitted as
// synthesized stdout events, so the forwarded stream is NDJSON all the way
// through.
type StreamRunner struct {
	provider sandbox.Provider
	manager  *Manager
	router   *Router
	logger   *slog.Logger
}

func NewStreamRunner(provider sandbox.Provider, manager *Manager, router *Router, logger *slog.Logger) *StreamRunner {
	return &StreamRunner{
		provider: provider,
		manager:  manager,
		router:   router,
		logger:   logger,
	}
}

// Run streams the cell's execution to sink and returns the context id the
// completed run used. On a context-loss failure it recreates the context
// and restarts the whole fragment once; output already streamed before the
// failure is not retracted.
func (r *StreamRunner) Run(ctx context.Context, workspaceID, contextID string, cell model.Cell, sink Sink) (string, error) {
	code := magic.Preprocess(cell.Content)
	program := wrapper.Streaming(code, cell.ID, cell.DisplayID)

	retried := false
	for {
		summary, err := r.runStream(ctx, contextID, program, sink)
		if err != nil {
			if sandbox.IsNotFound(err) && !retried {
				r.logger.Warn("context lost mid-stream, recreating",
					slog.String("workspace", workspaceID),
					slog.String("context", contextID),
				)
				if serr := sink(stdoutEvent(restartNotice).Encode()); serr != nil {
					return "", serr
				}
				freshID, rerr := r.manager.Recreate(ctx, workspaceID)
				if rerr != nil {
					return "", fmt.Errorf("recreating context after failure: %w", rerr)
				}
				contextID = freshID
				retried = true
				continue
			}
			if sandbox.IsNotFound(err) {
				return "", apperror.ContextLost(contextID, err)
			}
			return "", err
		}

		r.router.PersistSummary(ctx, cell, summary)
		return contextID, nil
	}
}

// runStream performs one streaming attempt: spawn, forward, drain.
func (r *StreamRunner) runStream(ctx context.Context, contextID, program string, sink Sink) (*StreamSummary, error) {
	handle, err := r.provider.Lookup(ctx, contextID)
	if err != nil {
		return nil, err
	}

	proc, err := handle.Spawn(ctx, []string{"python", "-u", "-c", program})
	if err != nil {
		return nil, err
	}

	summary := &StreamSummary{}
	var lineBuf string
	buf := make([]byte, 4096)
	stdout := proc.Stdout()

	for {
		n, readErr := stdout.Read(buf)
		if n > 0 {
			lineBuf += string(buf[:n])
			for {
				line, rest, found := strings.Cut(lineBuf, "\n")
				if !found {
					break
				}
				lineBuf = rest
				if err := r.processLine(line, summary, sink); err != nil {
					return nil, err
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("reading kernel stdout: %w", readErr)
		}
	}

	// Drain: the unterminated remainder is processed as one final line.
	if strings.TrimSpace(lineBuf) != "" {
		if err := r.processLine(lineBuf, summary, sink); err != nil {
			return nil, err
		}
	}

	stderrBytes, err := io.ReadAll(proc.Stderr())
	if err != nil {
		return nil, fmt.Errorf("reading kernel stderr: %w", err)
	}
	if _, err := proc.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for kernel process: %w", err)
	}

	if len(stderrBytes) > 0 {
		summary.Stderr = string(stderrBytes)
		if err := sink(stderrEvent(summary.Stderr).Encode()); err != nil {
			return nil, err
		}
	}

	// A process that exited without its done event (killed, interpreter
	// startup crash) must not leave the caller with an unterminated
	// sequence: synthesize an error-typed fallback and close the stream.
	if !summary.done {
		if summary.Error == "" {
			msg := strings.TrimSpace(summary.Stderr)
			if msg == "" {
				msg = "No output from kernel"
			}
			summary.Error = msg
			if err := sink(errorEvent(msg).Encode()); err != nil {
				return nil, err
			}
		}
		if err := sink(doneEvent().Encode()); err != nil {
			return nil, err
		}
	}

	return summary, nil
}

// processLine parses one complete line as a JSON event, updates the
// accumulators, and forwards the line. Non-JSON lines become literal
// stdout content.
func (r *StreamRunner) processLine(line string, summary *StreamSummary, sink Sink) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	var event Event
	if err := json.Unmarshal([]byte(line), &event); err != nil {
		// Raw stdout that escaped the wrapper's interception. Both
		// accumulated and forwarded, wrapped so the stream stays NDJSON.
		summary.Stdout += line + "\n"
		return sink(stdoutEvent(line + "\n").Encode())
	}

	switch event.Type {
	case EventStdout:
		summary.Stdout += event.Data
	case EventImage:
		summary.Images = append(summary.Images, event.Data)
	case EventResult:
		// Latest result wins.
		summary.Result = &model.ResultPayload{Format: event.Format, Content: event.Content}
	case EventError:
		summary.Error = event.Message
	case EventDone:
		summary.done = true
	}

	return sink(append([]byte(line), '\n'))
}
