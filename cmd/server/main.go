package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/tendant/catalog-uploads/pkg/uploads/api"
	"github.com/tendant/catalog-uploads/pkg/uploads/config"
)

func main() {
	configPath := flag.String("config", "", "optional YAML or .env config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintln(flag.CommandLine.Output())
		config.Usage(flag.CommandLine.Output())
	}
	flag.Parse()

	// A missing .env file is fine
	_ = godotenv.Load()

	cfg, err := config.Load(config.WithConfigFile(*configPath), config.WithEnv())
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Environment)
	slog.SetDefault(logger)

	comps, err := cfg.Build(logger)
	if err != nil {
		logger.Error("Failed to build upload service", "error", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(comps.Metrics.Middleware)

	r.Handle("/metrics", comps.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Mount("/api", api.NewHandler(comps.Service, comps.Authorizer, logger).Routes())
	})

	// The dev store receives the browser's PUT; no request timeout so slow uploads finish
	if comps.DevStore != nil {
		r.Mount(config.DevStorePath, comps.DevStore)
		logger.Warn("dev object store enabled", "path", config.DevStorePath, "bucket", cfg.Store.Bucket)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Upload server starting",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"store_backend", cfg.Store.Backend,
			"bucket", cfg.Store.Bucket,
			"prefix", cfg.Upload.Prefix,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("Server exiting")
}

func newLogger(environment string) *slog.Logger {
	switch environment {
	case "local":
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen,
		}))
	case "production":
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
