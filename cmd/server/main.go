// Package main is the entry point for the kernel server. Its job is
// to read configuration, build the sandbox provider, and hand off to
// internal/server.
package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sakif/kernel-server/internal/sandbox/docker"
	"github.com/sakif/kernel-server/internal/server"
)

const version = "0.1.0"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	port := 8080
	if portStr := os.Getenv("PORT"); portStr != "" {
		var err error
		port, err = strconv.Atoi(portStr)
		if err != nil {
			logger.Error("invalid PORT value", slog.String("value", portStr))
			os.Exit(1)
		}
	}

	dbPath := "data/kernel-server.db"
	if envDB := os.Getenv("DB_PATH"); envDB != "" {
		dbPath = envDB
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", filepath.Dir(dbPath)),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	dockerCfg := docker.DefaultConfig()
	if img := os.Getenv("KERNEL_IMAGE"); img != "" {
		dockerCfg.Image = img
	}
	if v := os.Getenv("KERNEL_IDLE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			logger.Error("invalid KERNEL_IDLE_TIMEOUT value", slog.String("value", v))
			os.Exit(1)
		}
		dockerCfg.IdleLifetime = d
	}
	if v := os.Getenv("KERNEL_MAX_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			logger.Error("invalid KERNEL_MAX_TIMEOUT value", slog.String("value", v))
			os.Exit(1)
		}
		dockerCfg.MaxLifetime = d
	}

	// Unlike optional features, a missing sandbox provider leaves nothing
	// for this service to do, so it is fatal at startup.
	provider, err := docker.New(dockerCfg, logger)
	if err != nil {
		logger.Error("docker sandbox provider unavailable", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer provider.Close()

	srv, err := server.New(server.Config{
		Port:    port,
		DBPath:  dbPath,
		Version: version,
	}, provider, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
