package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// process is one `docker exec` inside a kernel container.
//
// Docker multiplexes stdout and stderr onto a single hijacked stream; a
// background goroutine demultiplexes with stdcopy as soon as the process is
// created. Stdout goes through a pipe so callers see bytes as they arrive
// (the streaming executor depends on that); stderr collects into a buffer
// that never blocks the demux, matching the sandbox.Process contract that
// stderr is read only after stdout is exhausted.
type process struct {
	cli    *client.Client
	execID string

	stdout *io.PipeReader
	stderr bytes.Buffer

	done    chan struct{}
	copyErr error
}

func newProcess(cli *client.Client, execID string, mux io.Reader, closeAttach func()) *process {
	stdoutR, stdoutW := io.Pipe()
	p := &process{
		cli:    cli,
		execID: execID,
		stdout: stdoutR,
		done:   make(chan struct{}),
	}

	go func() {
		_, err := stdcopy.StdCopy(stdoutW, &p.stderr, mux)
		closeAttach()
		p.copyErr = err
		stdoutW.CloseWithError(err)
		close(p.done)
	}()

	return p
}

func (p *process) Stdout() io.Reader {
	return p.stdout
}

func (p *process) Stderr() io.Reader {
	return &stderrReader{p: p}
}

// Wait blocks until the exec finishes, then reports its exit code.
func (p *process) Wait(ctx context.Context) (int, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	if p.copyErr != nil {
		return 0, fmt.Errorf("reading exec output: %w", p.copyErr)
	}

	inspect, err := p.cli.ContainerExecInspect(ctx, p.execID)
	if err != nil {
		return 0, fmt.Errorf("inspecting exec: %w", err)
	}
	return inspect.ExitCode, nil
}

// stderrReader defers reads until the demux goroutine has finished, so the
// buffer is never read and written concurrently.
type stderrReader struct {
	p      *process
	reader *bytes.Reader
}

func (r *stderrReader) Read(b []byte) (int, error) {
	<-r.p.done
	if r.reader == nil {
		r.reader = bytes.NewReader(r.p.stderr.Bytes())
	}
	return r.reader.Read(b)
}
