// Package server wires the HTTP surface: router, middleware, routes, and
// graceful shutdown. It is the composition root for everything below the
// sandbox provider, which the entry point supplies.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/kernel-server/internal/apperror"
	"github.com/sakif/kernel-server/internal/handler"
	"github.com/sakif/kernel-server/internal/kernel"
	"github.com/sakif/kernel-server/internal/middleware"
	"github.com/sakif/kernel-server/internal/sandbox"
	"github.com/sakif/kernel-server/internal/service"
	sqlitestore "github.com/sakif/kernel-server/internal/store/sqlite"
)

// Config holds server configuration.
type Config struct {
	Port    int
	DBPath  string
	Version string
}

// Server owns the router and the state store; the store is closed during
// graceful shutdown so the WAL is flushed and the file lock released.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqlitestore.DB
}

// New opens the state store and assembles the full dependency chain:
// store and provider feed the kernel manager and runners, those feed the
// services, and the services feed the handlers.
func New(cfg Config, provider sandbox.Provider, logger *slog.Logger) (*Server, error) {
	db, err := sqlitestore.New(cfg.DBPath)
	if err != nil {
		return nil, apperror.Configuration(fmt.Sprintf("opening database %s: %v", cfg.DBPath, err))
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}
	s.setupRoutes(provider)
	return s, nil
}

func (s *Server) setupRoutes(provider sandbox.Provider) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	manager := kernel.NewManager(provider, s.db, s.logger)
	batch := kernel.NewBatchRunner(provider, manager, s.logger)
	router := kernel.NewRouter(s.db, s.logger)
	stream := kernel.NewStreamRunner(provider, manager, router, s.logger)

	execService := service.NewExecutionService(provider, manager, batch, stream, router, s.db, s.logger)
	kernelService := service.NewKernelService(manager, s.db, s.logger)
	cellService := service.NewCellService(s.db, s.logger)

	healthHandler := handler.NewHealthHandler(s.config.Version, s.db)
	executeHandler := handler.NewExecuteHandler(execService, s.logger)
	streamHandler := handler.NewStreamHandler(execService, s.logger)
	kernelHandler := handler.NewKernelHandler(kernelService, s.logger)
	cellHandler := handler.NewCellHandler(cellService, s.logger)

	s.router.Get("/", healthHandler.HandleRoot)
	s.router.Get("/health", healthHandler.HandleHealth)

	s.router.Post("/execute", executeHandler.HandleExecute)
	s.router.Post("/execute/{workspaceID}/{cellID}", executeHandler.HandleExecuteCell)
	s.router.Get("/stream/{workspaceID}/{cellID}", streamHandler.HandleStream)
	s.router.Post("/bash", executeHandler.HandleBash)

	s.router.Route("/kernel/{workspaceID}", func(r chi.Router) {
		r.Get("/status", kernelHandler.HandleStatus)
		r.Post("/start", kernelHandler.HandleStart)
		r.Post("/stop", kernelHandler.HandleStop)
		r.Post("/restart", kernelHandler.HandleRestart)
	})

	s.router.Route("/workspaces/{workspaceID}", func(r chi.Router) {
		r.Get("/cells", cellHandler.HandleList)
		r.Post("/cells", cellHandler.HandleCreate)
		r.Patch("/cells/{cellID}", cellHandler.HandleUpdate)
		r.Get("/cells/{cellID}/outputs", cellHandler.HandleOutputs)
		r.Put("/accelerator", cellHandler.HandleSetAccelerator)
	})
}

// Handler exposes the assembled router, mainly for tests that drive the
// full HTTP surface without binding a port.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the state store without going through Start's shutdown
// path.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start runs the HTTP server until a shutdown signal or a listener error.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", s.config.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No write timeout: /stream responses stay open for as long as
		// the cell runs.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
