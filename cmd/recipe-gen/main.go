// Command recipe-gen serves the AI recipe generator page and JSON API
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"recipe-gen/backend"
	"recipe-gen/config"
	"recipe-gen/generation"
	"recipe-gen/logger"
	"recipe-gen/server"
)

// Version is injected at build time
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to config file (default configs/config.yaml if present)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("recipe-gen exited", zap.Error(err))
	}
	log.Info("Server exited")
}

func run(cfg *config.Config, log *zap.Logger) error {
	genCfg, err := cfg.Generation()
	if err != nil {
		return err
	}

	log.Info("Starting recipe-gen",
		zap.String("version", Version),
		zap.String("env", cfg.App.Env),
		zap.String("model_dir", genCfg.ModelDir),
		zap.String("backend", string(genCfg.Backend)),
	)

	loader := generation.NewLoader(genCfg, backend.Build, log)
	defer func() {
		if err := loader.Close(); err != nil {
			log.Warn("Failed to release model", zap.Error(err))
		}
	}()

	srv, err := server.New(cfg.Server, loader, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	if cfg.Model.Preload {
		g.Go(func() error {
			// a failed load is served as "model is not loaded", not a crash
			_, _ = loader.Load(ctx)
			return nil
		})
	}
	g.Go(func() error {
		return srv.Run(ctx)
	})

	return g.Wait()
}
