package kernel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/sakif/kernel-server/internal/apperror"
	"github.com/sakif/kernel-server/internal/model"
	"github.com/sakif/kernel-server/internal/sandbox"
)

// =========================================================================
// FAKE SANDBOX PROVIDER
// =========================================================================

// fakeProvider is an in-memory sandbox.Provider. Each created context gets
// a sequential id; spawn behavior is scripted per test via the spawn hook.
type fakeProvider struct {
	mu     sync.Mutex
	live   map[string]bool
	nextID int

	// spawn scripts the process a context returns for an exec.
	spawn func(contextID string, argv []string) sandbox.Process
	// deadOnArrival makes every created context immediately invalid,
	// simulating a provider that expires sandboxes instantly.
	deadOnArrival bool
	terminateErr  error

	created    []sandbox.CreateOptions
	terminated []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{live: map[string]bool{}}
}

func (p *fakeProvider) Create(_ context.Context, opts sandbox.CreateOptions) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := fmt.Sprintf("ctx-%d", p.nextID)
	p.live[id] = !p.deadOnArrival
	p.created = append(p.created, opts)
	return id, nil
}

func (p *fakeProvider) Lookup(_ context.Context, id string) (sandbox.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.live[id] {
		return nil, fmt.Errorf("context %s: %w", id, sandbox.ErrNotFound)
	}
	return &fakeHandle{provider: p, id: id}, nil
}

func (p *fakeProvider) Terminate(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminated = append(p.terminated, id)
	if p.terminateErr != nil {
		return p.terminateErr
	}
	delete(p.live, id)
	return nil
}

// kill invalidates a live context, as if the provider expired it.
func (p *fakeProvider) kill(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.live[id] = false
}

type fakeHandle struct {
	provider *fakeProvider
	id       string
}

func (h *fakeHandle) Spawn(_ context.Context, argv []string) (sandbox.Process, error) {
	if h.provider.spawn == nil {
		return &fakeProcess{}, nil
	}
	return h.provider.spawn(h.id, argv), nil
}

// fakeProcess replays scripted stdout/stderr streams.
type fakeProcess struct {
	stdout   io.Reader
	stderr   io.Reader
	exitCode int
}

func (p *fakeProcess) Stdout() io.Reader {
	if p.stdout == nil {
		return strings.NewReader("")
	}
	return p.stdout
}

func (p *fakeProcess) Stderr() io.Reader {
	if p.stderr == nil {
		return strings.NewReader("")
	}
	return p.stderr
}

func (p *fakeProcess) Wait(context.Context) (int, error) {
	return p.exitCode, nil
}

// procWith scripts a process from whole stdout/stderr strings.
func procWith(stdout, stderr string) sandbox.Process {
	return &fakeProcess{
		stdout: strings.NewReader(stdout),
		stderr: strings.NewReader(stderr),
	}
}

// chunkReader yields exactly one scripted chunk per Read call, so tests
// control where chunk boundaries fall relative to line boundaries.
type chunkReader struct {
	chunks []string
}

func (r *chunkReader) Read(b []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	chunk := r.chunks[0]
	r.chunks = r.chunks[1:]
	n := copy(b, chunk)
	if n < len(chunk) {
		r.chunks = append([]string{chunk[n:]}, r.chunks...)
	}
	return n, nil
}

// =========================================================================
// FAKE STATE STORE
// =========================================================================

type fakeStore struct {
	mu           sync.Mutex
	contextIDs   map[string]string
	accelerators map[string]string
	cells        map[string]*model.Cell
	outputs      []model.CellOutput
	saveErr      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		contextIDs:   map[string]string{},
		accelerators: map[string]string{},
		cells:        map[string]*model.Cell{},
	}
}

func (s *fakeStore) GetAccelerator(_ context.Context, workspaceID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accelerators[workspaceID]; ok {
		return a, nil
	}
	return model.DefaultAccelerator, nil
}

func (s *fakeStore) SetAccelerator(_ context.Context, workspaceID, accelerator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accelerators[workspaceID] = accelerator
	return nil
}

func (s *fakeStore) GetContextID(_ context.Context, workspaceID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contextIDs[workspaceID], nil
}

func (s *fakeStore) SetContextID(_ context.Context, workspaceID, contextID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contextIDs[workspaceID] = contextID
	return nil
}

func (s *fakeStore) GetCells(_ context.Context, workspaceID string) ([]model.Cell, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cells []model.Cell
	for _, c := range s.cells {
		if c.WorkspaceID == workspaceID {
			cells = append(cells, *c)
		}
	}
	return cells, nil
}

func (s *fakeStore) GetCell(_ context.Context, id string) (*model.Cell, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cells {
		if c.ID == id || c.DisplayID == id {
			cell := *c
			return &cell, nil
		}
	}
	return nil, apperror.NotFound("cell", id)
}

func (s *fakeStore) CreateCell(_ context.Context, cell *model.Cell) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cell.ID == "" {
		cell.ID = fmt.Sprintf("cell-%d", len(s.cells)+1)
	}
	stored := *cell
	s.cells[cell.ID] = &stored
	return nil
}

func (s *fakeStore) UpdateCell(_ context.Context, cell *model.Cell) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cells[cell.ID]; !ok {
		return apperror.NotFound("cell", cell.ID)
	}
	stored := *cell
	s.cells[cell.ID] = &stored
	return nil
}

func (s *fakeStore) SaveOutput(_ context.Context, output model.CellOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.outputs = append(s.outputs, output)
	return nil
}

func (s *fakeStore) ClearOutputs(_ context.Context, cellID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.outputs[:0]
	for _, o := range s.outputs {
		if o.CellID != cellID {
			kept = append(kept, o)
		}
	}
	s.outputs = kept
	return nil
}

func (s *fakeStore) GetOutputs(_ context.Context, cellID string) ([]model.CellOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var outputs []model.CellOutput
	for _, o := range s.outputs {
		if o.CellID == cellID {
			outputs = append(outputs, o)
		}
	}
	return outputs, nil
}

// =========================================================================
// SHARED HELPERS
// =========================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errSinkClosed = errors.New("sink closed")

// collectSink records every forwarded line.
type collectSink struct {
	lines []string
	fail  bool
}

func (s *collectSink) sink(line []byte) error {
	if s.fail {
		return errSinkClosed
	}
	s.lines = append(s.lines, string(line))
	return nil
}

func testCell() model.Cell {
	return model.Cell{
		ID:          "cell-1",
		WorkspaceID: "ws-1",
		DisplayID:   "disp-1",
		Kind:        model.CellKindCode,
		Content:     "print('hi')",
	}
}
