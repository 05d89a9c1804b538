package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"planner/internal/config"
	"planner/internal/core/consolidate"
	"planner/internal/core/executor"
	"planner/internal/core/job"
	"planner/internal/core/notify"
	"planner/internal/core/orchestrator"
	"planner/internal/health"
	"planner/internal/logger"
	"planner/internal/platform/database"
	"planner/internal/platform/eino"
	rds "planner/internal/platform/redis"
	"planner/internal/platform/storage"
	"planner/internal/platform/tasks"
	"planner/internal/server"
	"planner/internal/worker"
	"planner/prompts"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the task worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve()
		},
	}
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logr := logger.NewWithConfig("main", logger.Config{AppEnv: cfg.AppEnv})
	logr.LogInfof("Starting planner at %s (env=%s)", cfg.HTTPAddr, cfg.AppEnv)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Redis backs asynq whatever the status store is
	redisSvc, err := rds.New(rds.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return err
	}
	defer redisSvc.Close()

	store, err := openStore(cfg, redisSvc)
	if err != nil {
		return err
	}
	logr.LogInfof("Status store: %s", cfg.StoreBackend)

	ctx := context.Background()
	blobs, err := storage.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}
	logr.LogInfof("Blob store: %s", cfg.BlobBackend)

	gen, err := eino.New(generatorConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialize generation service: %w", err)
	}
	sp, err := prompts.NewSystemPrompts()
	if err != nil {
		return err
	}

	taskClient := tasks.New(redisSvc)
	defer taskClient.Close()

	var notifier orchestrator.Notifier
	if cfg.NotifyWebhookURL != "" {
		notifier = notify.NewWebhook(cfg.NotifyWebhookURL, cfg.SystemAuthSecret)
	}

	orch := orchestrator.New(store, taskClient,
		executor.New(gen, sp, blobs),
		consolidate.New(gen, sp, blobs),
		orchestrator.Options{MaxRetry: cfg.TaskMaxRetries, Notifier: notifier},
	)
	jobs := job.NewManager(store, orch)

	// Worker
	mux := worker.NewMux()
	orch.Register(mux)
	asynqServer := worker.NewServer(redisSvc.AsynqRedisOpt(), cfg.WorkerConcurrency)
	if err := asynqServer.Start(mux.Mux()); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	// HTTP server
	app := fiber.New(fiber.Config{
		AppName: "Planner Engine",
		JSONEncoder: func(v interface{}) ([]byte, error) {
			var buf bytes.Buffer
			encoder := json.NewEncoder(&buf)
			encoder.SetEscapeHTML(false)
			if err := encoder.Encode(v); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
	})
	if cfg.BlobBackend == "local" {
		app.Static("/files", filepath.Join(cfg.DataDir, "artifacts"))
	}

	checks := map[string]health.Check{
		"redis":        redisSvc.HealthCheck,
		"status_store": storeCheck(store),
	}
	if hc, ok := blobs.(storage.HealthChecker); ok {
		checks["blob_store"] = hc.HealthCheck
	}
	healthHandler := server.RegisterRoutes(app, server.Dependencies{Jobs: jobs, Checks: checks})
	healthHandler.SetReady()

	// Graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		logr.LogInfo("Shutting down...")
		asynqServer.Shutdown()
		_ = app.ShutdownWithTimeout(5 * time.Second)
	}()

	if err := app.Listen(cfg.HTTPAddr); err != nil {
		return fmt.Errorf("server listen: %w", err)
	}
	orch.Wait()
	return nil
}

func openStore(cfg config.Config, redisSvc *rds.Service) (job.Store, error) {
	switch cfg.StoreBackend {
	case "sql":
		db, err := database.Open(database.Options{Driver: cfg.DatabaseDriver, DSN: cfg.DatabaseDSN})
		if err != nil {
			return nil, err
		}
		store, err := job.NewSQLStore(db)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory":
		return job.NewMemoryStore(), nil
	default:
		return job.NewRedisStore(redisSvc), nil
	}
}

// storeCheck reads a job id that never exists; not found means the store answered.
func storeCheck(store job.Store) health.Check {
	return func(ctx context.Context) error {
		_, err := store.Get(ctx, "health-probe")
		if err == nil || errors.Is(err, job.ErrNotFound) {
			return nil
		}
		return err
	}
}

func generatorConfig(cfg config.Config) eino.Config {
	c := eino.Config{Provider: cfg.LLMProvider, Model: cfg.DefaultLLMModel}
	switch strings.ToLower(cfg.LLMProvider) {
	case eino.ProviderOpenAI:
		c.APIKey = cfg.OpenAIAPIKey
		// the default model name targets gemini
		if strings.HasPrefix(c.Model, "gemini") {
			c.Model = ""
		}
	default:
		c.APIKey = cfg.GeminiAPIKey
	}
	return c
}
