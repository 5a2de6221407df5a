package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/kernel-server/internal/model"
	"github.com/sakif/kernel-server/internal/sandbox"
	"github.com/sakif/kernel-server/internal/server"
)

// stubProvider backs the full HTTP stack without a docker daemon. Each
// spawned process replays whatever the proc hook scripts.
type stubProvider struct {
	mu     sync.Mutex
	live   map[string]bool
	nextID int

	proc func(argv []string) (stdout, stderr string, exitCode int)
}

func newStubProvider() *stubProvider {
	return &stubProvider{live: map[string]bool{}}
}

func (p *stubProvider) Create(_ context.Context, _ sandbox.CreateOptions) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := fmt.Sprintf("ctx-%d", p.nextID)
	p.live[id] = true
	return id, nil
}

func (p *stubProvider) Lookup(_ context.Context, id string) (sandbox.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.live[id] {
		return nil, fmt.Errorf("context %s: %w", id, sandbox.ErrNotFound)
	}
	return &stubHandle{provider: p}, nil
}

func (p *stubProvider) Terminate(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.live, id)
	return nil
}

type stubHandle struct {
	provider *stubProvider
}

func (h *stubHandle) Spawn(_ context.Context, argv []string) (sandbox.Process, error) {
	stdout, stderr, code := "", "", 0
	if h.provider.proc != nil {
		stdout, stderr, code = h.provider.proc(argv)
	}
	return &stubProcess{stdout: stdout, stderr: stderr, exitCode: code}, nil
}

type stubProcess struct {
	stdout   string
	stderr   string
	exitCode int
}

func (p *stubProcess) Stdout() io.Reader { return strings.NewReader(p.stdout) }
func (p *stubProcess) Stderr() io.Reader { return strings.NewReader(p.stderr) }
func (p *stubProcess) Wait(context.Context) (int, error) {
	return p.exitCode, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *stubProvider) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	provider := newStubProvider()

	srv, err := server.New(server.Config{
		Port:    0,
		DBPath:  ":memory:",
		Version: "test",
	}, provider, logger)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, provider
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

// createCell inserts a code cell through the HTTP API and returns its id.
func createCell(t *testing.T, ts *httptest.Server, workspaceID, content string) string {
	t.Helper()
	resp := postJSON(t, ts.URL+"/workspaces/"+workspaceID+"/cells", map[string]any{
		"content": content,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var cell model.Cell
	decodeBody(t, resp, &cell)
	return cell.ID
}

func TestHealthAndBanner(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health struct {
		Status          string `json:"status"`
		StoreConfigured bool   `json:"store_configured"`
	}
	decodeBody(t, resp, &health)
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.StoreConfigured)

	resp, err = http.Get(ts.URL + "/")
	require.NoError(t, err)
	var banner map[string]string
	decodeBody(t, resp, &banner)
	assert.Equal(t, "kernel-server", banner["service"])
}

func TestExecuteEndToEnd(t *testing.T) {
	ts, provider := newTestServer(t)

	cellID := createCell(t, ts, "ws-1", "print('hi')")
	provider.proc = func(argv []string) (string, string, int) {
		record, _ := json.Marshal(model.ExecutionResult{
			CellID: cellID, Stdout: "hi\n",
		})
		return string(record) + "\n", "", 0
	}

	resp := postJSON(t, ts.URL+"/execute", map[string]string{"workspace_id": "ws-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report struct {
		Success bool               `json:"success"`
		Outputs []model.CellOutput `json:"outputs"`
	}
	decodeBody(t, resp, &report)
	assert.True(t, report.Success)
	require.Len(t, report.Outputs, 1)
	assert.Equal(t, "hi\n", report.Outputs[0].Content)

	// The outputs are readable back through the cells API.
	resp, err := http.Get(ts.URL + "/workspaces/ws-1/cells/" + cellID + "/outputs")
	require.NoError(t, err)
	var outputs []model.CellOutput
	decodeBody(t, resp, &outputs)
	require.Len(t, outputs, 1)
	assert.Equal(t, model.OutputStdout, outputs[0].Kind)
}

func TestExecuteFailureStaysHTTP200(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/execute", map[string]string{
		"workspace_id": "ws-1",
		"cell_id":      "no-such-cell",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	decodeBody(t, resp, &report)
	assert.False(t, report.Success)
	assert.NotEmpty(t, report.Error)
}

func TestStreamEndpoint(t *testing.T) {
	ts, provider := newTestServer(t)

	cellID := createCell(t, ts, "ws-1", "print('hi')")
	provider.proc = func(argv []string) (string, string, int) {
		return `{"type":"stdout","data":"hi\n"}` + "\n" + `{"type":"done"}` + "\n", "", 0
	}

	resp, err := http.Get(ts.URL + "/stream/ws-1/" + cellID)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))

	var types []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var ev struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{"stdout", "done"}, types)
}

func TestStreamSetupFailureIsErrorAndDoneEvents(t *testing.T) {
	ts, _ := newTestServer(t)

	// Unknown cell: still HTTP 200, but the stream carries error then done.
	resp, err := http.Get(ts.URL + "/stream/ws-1/no-such-cell")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var types []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var ev struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{"error", "done"}, types)
}

func TestBashEndpoint(t *testing.T) {
	ts, provider := newTestServer(t)

	provider.proc = func(argv []string) (string, string, int) {
		assert.Equal(t, []string{"bash", "-c", "echo hi"}, argv)
		return "hi\n", "", 0
	}

	resp := postJSON(t, ts.URL+"/bash", map[string]string{
		"workspace_id": "ws-1",
		"command":      "echo hi",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Success  bool   `json:"success"`
		Stdout   string `json:"stdout"`
		ExitCode int    `json:"exit_code"`
	}
	decodeBody(t, resp, &result)
	assert.True(t, result.Success)
	assert.Equal(t, "hi\n", result.Stdout)
	assert.Equal(t, 0, result.ExitCode)
}

func TestBashValidationError(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/bash", map[string]string{"workspace_id": "ws-1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errResp struct {
		Error string `json:"error"`
	}
	decodeBody(t, resp, &errResp)
	assert.Equal(t, "validation_error", errResp.Error)
}

func TestKernelLifecycleEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/kernel/ws-1/status")
	require.NoError(t, err)
	var status model.KernelStatus
	decodeBody(t, resp, &status)
	assert.Equal(t, model.StatusNotFound, status.Status)

	resp = postJSON(t, ts.URL+"/kernel/ws-1/start", map[string]string{"accelerator": "A100"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &status)
	assert.Equal(t, model.StatusRunning, status.Status)
	assert.Equal(t, "A100", status.Accelerator)

	resp = postJSON(t, ts.URL+"/kernel/ws-1/restart", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	restarted := model.KernelStatus{}
	decodeBody(t, resp, &restarted)
	assert.Equal(t, model.StatusRunning, restarted.Status)
	assert.NotEqual(t, status.ContextID, restarted.ContextID)

	resp = postJSON(t, ts.URL+"/kernel/ws-1/stop", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stopResp map[string]bool
	decodeBody(t, resp, &stopResp)
	assert.True(t, stopResp["stopped"])
}

func TestCellCRUDAndAccelerator(t *testing.T) {
	ts, _ := newTestServer(t)

	cellID := createCell(t, ts, "ws-1", "x = 1")

	req, err := http.NewRequest(http.MethodPatch,
		ts.URL+"/workspaces/ws-1/cells/"+cellID,
		strings.NewReader(`{"content":"x = 2"}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var updated model.Cell
	decodeBody(t, resp, &updated)
	assert.Equal(t, "x = 2", updated.Content)

	resp, err = http.Get(ts.URL + "/workspaces/ws-1/cells")
	require.NoError(t, err)
	var cells []model.Cell
	decodeBody(t, resp, &cells)
	require.Len(t, cells, 1)

	req, err = http.NewRequest(http.MethodPut,
		ts.URL+"/workspaces/ws-1/accelerator",
		strings.NewReader(`{"accelerator":"H100"}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	var accel map[string]string
	decodeBody(t, resp, &accel)
	assert.Equal(t, "H100", accel["accelerator"])
}

func TestUnknownCellOutputsIs404(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/workspaces/ws-1/cells/missing/outputs")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
