// Package sandbox defines the boundary to the sandbox provider: an opaque
// capability that creates isolated compute units and spawns processes in
// them. The kernel core never manages isolation, scheduling, or resource
// limits itself; it only consumes this interface.
package sandbox

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Lookup (and wrapped by provider errors) when a
// context id no longer resolves to a live sandbox. The kernel executors key
// their recreate-and-retry policy on this condition.
var ErrNotFound = errors.New("sandbox not found")

// IsNotFound reports whether err is a context-loss-class failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// CreateOptions describes the sandbox to create.
type CreateOptions struct {
	// Image is the container image the sandbox boots from.
	Image string
	// Accelerator is the workspace's accelerator token ("T4", "A100", ...).
	// "cpu" and the empty string request no accelerator.
	Accelerator string
	// MaxLifetime bounds the sandbox's absolute lifetime.
	MaxLifetime time.Duration
	// IdleLifetime bounds how long the sandbox may sit without activity.
	IdleLifetime time.Duration
	// WorkspaceID labels the sandbox with its owning workspace.
	WorkspaceID string
}

// Process is a spawned process inside a sandbox. Stdout is readable
// incrementally while the process runs; Stderr is fully readable once
// stdout reaches EOF. Wait blocks until exit and returns the exit code.
type Process interface {
	Stdout() io.Reader
	Stderr() io.Reader
	Wait(ctx context.Context) (int, error)
}

// Handle is a live sandbox that can spawn processes.
type Handle interface {
	Spawn(ctx context.Context, argv []string) (Process, error)
}

// Provider creates, resolves, and destroys sandboxes.
//
// Lookup must fail with an error satisfying IsNotFound when the id does not
// resolve to a live sandbox, including when the provider expired it.
type Provider interface {
	Create(ctx context.Context, opts CreateOptions) (string, error)
	Lookup(ctx context.Context, id string) (Handle, error)
	Terminate(ctx context.Context, id string) error
}
