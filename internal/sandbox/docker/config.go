package docker

import (
	"time"
)

// Config holds the configuration for docker-backed kernel sandboxes.
type Config struct {
	// Image is the container image kernels boot from. Production images
	// bake the scientific stack (numpy, pandas, matplotlib) so user code
	// and the wrapper's plotting capture work out of the box.
	Image string
	// MemoryLimit is the maximum memory per kernel container (bytes).
	MemoryLimit int64
	// CPULimit is the number of CPUs per kernel container.
	CPULimit float64
	// MaxLifetime and IdleLifetime are recorded as container labels so an
	// external reaper can enforce them. Sandbox expiry reaches the kernel
	// core only as a failed lookup.
	MaxLifetime  time.Duration
	IdleLifetime time.Duration
}

// DefaultConfig provides sensible defaults for a Python kernel sandbox.
func DefaultConfig() Config {
	return Config{
		Image:       "python:3.12-slim",
		MemoryLimit: 512 * 1024 * 1024,
		CPULimit:    1.0,
		// Mirrors the kernel lifetimes of the hosted provider: 4 hours
		// absolute, 30 minutes idle.
		MaxLifetime:  4 * time.Hour,
		IdleLifetime: 30 * time.Minute,
	}
}
