// cmd/planner-server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"ai-planner/internal/common/config"
	"ai-planner/internal/common/logger"
	"ai-planner/internal/common/observability"
	"ai-planner/internal/models"
	"ai-planner/internal/web"
	generateplan "ai-planner/internal/workers/planning/generate-plan"
	"ai-planner/pkg/registry"
)

const (
	serviceName     = "ai-planner"
	shutdownTimeout = 10 * time.Second
	sweepInterval   = 5 * time.Minute
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "planner-server",
		Short: "AI project planner web app",
		Long: `planner-server serves a single page that turns a free-text project brief
into a structured 4-12 week plan using a Groq-hosted language model.

The API key is read from GROQ_API_KEY (or llm.api_key in the config file).`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port, overrides server.port")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", serviceName, Version)
		},
	})

	return cmd
}

func run(configPath string, port int) error {
	cfg, src, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if cfg.App.Version == "" || cfg.App.Version == "dev" {
		cfg.App.Version = Version
	}

	log, err := logger.FromConfig(cfg.App, cfg.Logging)
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting planner server", map[string]interface{}{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
		"envFile":     src.EnvFile,
		"configFile":  src.ConfigFile,
		"model":       cfg.LLM.Model,
	})
	if !cfg.LLM.HasCredential() {
		log.Warn("no API key configured, plan generation will fail until it is set", map[string]interface{}{
			"envVar": config.CredentialEnvVar,
		})
	}

	obs, err := observability.New(serviceName, nil)
	if err != nil {
		log.Warn("otel meter unavailable, continuing without it", map[string]interface{}{"error": err.Error()})
		obs = observability.NewNoop()
	}

	sessions, redisClient, err := web.NewSessionStore(cfg)
	if err != nil {
		return fmt.Errorf("session store init failed: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		err = retryWithBackoff(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return sessions.Ping(ctx)
		}, 5, time.Second, log, "redis connection")
		if err != nil {
			return err
		}
		log.Info("redis session store connected", map[string]interface{}{"address": cfg.Redis.Address})
	}

	examples, err := registry.LoadRegistry(cfg.Examples.Path)
	if err != nil {
		return fmt.Errorf("example registry load failed: %w", err)
	}

	generator := generateplan.NewHandler(
		generateplan.LoadConfig(cfg),
		log,
		generateplan.WithObservability(obs),
	)

	limiter := web.NewRateLimiter(cfg.RateLimit)
	server := web.NewServer(cfg, generator, sessions, examples, log, web.WithRateLimiter(limiter))
	httpServer := server.HTTPServer()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go maintain(ctx, sessions, limiter, log)

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", map[string]interface{}{"addr": httpServer.Addr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received, draining requests", nil)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.Error("otel shutdown failed", map[string]interface{}{"error": err.Error()})
	}

	log.Info("planner server stopped", nil)
	return nil
}

func loadConfig(path string) (*config.Config, *config.Sources, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// maintain drops expired in-memory sessions and idle rate-limit buckets.
func maintain(ctx context.Context, sessions models.SessionRepository, limiter *web.RateLimiter, log logger.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept := 0
			if mem, ok := sessions.(*web.MemoryStore); ok {
				swept = mem.Sweep()
			}
			idle := limiter.Cleanup()
			if swept > 0 || idle > 0 {
				log.Debug("maintenance sweep", map[string]interface{}{
					"expiredSessions": swept,
					"idleLimiters":    idle,
				})
			}
		}
	}
}

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}
