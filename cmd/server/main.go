package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	ollamawebui "github.com/MegaGrindStone/ollama-web-ui"
	"github.com/MegaGrindStone/ollama-web-ui/internal/handlers"
	"github.com/MegaGrindStone/ollama-web-ui/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return fmt.Errorf("error getting user config dir: %w", err)
	}
	cfgPath := filepath.Join(cfgDir, "ollamawebui")
	if err := os.MkdirAll(cfgPath, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	cfg, err := loadConfig(filepath.Join(cfgPath, "config.yaml"))
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.logLevel(),
	}))

	boltDB, err := services.NewBoltDB(filepath.Join(cfgPath, "store.db"))
	if err != nil {
		return err
	}
	defer func() {
		if err := boltDB.Close(); err != nil {
			logger.Error("Failed to close store", slog.String("error", err.Error()))
		}
	}()

	sandbox := services.NewSandbox(cfg.RunCode.Interpreter, cfg.RunCode.Dir, cfg.RunCode.Timeout, logger)

	var executor handlers.CodeExecutor = sandbox
	if cfg.RunCode.RemoteURL != "" {
		executor = services.NewRunCodeClient(cfg.RunCode.RemoteURL, cfg.RunCode.ClientTimeout, logger)
		logger.Info("Executing code remotely", slog.String("url", cfg.RunCode.RemoteURL))
	}

	m, err := handlers.NewMain(cfg.LLM.factory(logger), boltDB, sandbox, executor, cfg.LLM.settings(), logger)
	if err != nil {
		return err
	}

	// Serve static files
	staticFS, err := fs.Sub(ollamawebui.StaticFS, "static")
	if err != nil {
		return err
	}
	fileServer := http.FileServer(http.FS(staticFS))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handlers.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	r.Get("/", m.HandleHome)
	r.Get("/sse", m.HandleSSE)
	r.Get("/health", m.HandleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/chats", func(r chi.Router) {
		r.Post("/", m.HandleChats)
		r.Post("/stop", m.HandleStop)
		r.Post("/new", m.HandleNewChat)
	})
	r.Post("/execute", m.HandleExecute)

	r.Route("/settings", func(r chi.Router) {
		r.Get("/", m.HandleSettings)
		r.Post("/", m.HandleSettings)
		r.Post("/model", m.HandleSelectModel)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
			MaxAge:         300,
		}))

		r.Get("/models", m.HandleModels)
		r.With(httprate.LimitByIP(cfg.RunCode.RateLimit.Requests, cfg.RunCode.RateLimit.Window)).
			Post("/run-code", m.HandleRunCode)
	})

	// The SSE stream is long-lived, so there is no write timeout.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// m.Shutdown has to run while srv shuts down, since open SSE streams keep srv.Shutdown waiting.
	// The store is closed when run returns, so run waits for it to finish.
	shutdownDone := make(chan struct{})
	shutdownMain := func() {
		defer close(shutdownDone)
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown handlers", slog.String("error", err.Error()))
		}
	}
	srv.RegisterOnShutdown(shutdownMain)

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting", slog.String("port", cfg.Port))
		serverErrors <- srv.ListenAndServe()
	}()

	// Channel to listen for interrupt/terminate signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		shutdownMain()
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("error", err.Error()))
			if err := srv.Close(); err != nil {
				logger.Error("Forcing server close", slog.String("error", err.Error()))
			}
		}
		<-shutdownDone
	}

	return nil
}
