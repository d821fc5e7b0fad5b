// Command taskcastd runs the Taskcast HTTP API: task lifecycle, event streaming, and cleanup.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/weightwave/taskcast/pkg/api"
	"github.com/weightwave/taskcast/pkg/broadcast"
	"github.com/weightwave/taskcast/pkg/cleanup"
	"github.com/weightwave/taskcast/pkg/config"
	"github.com/weightwave/taskcast/pkg/memstore"
	"github.com/weightwave/taskcast/pkg/pgstore"
	"github.com/weightwave/taskcast/pkg/redisstore"
	"github.com/weightwave/taskcast/pkg/taskauth"
	"github.com/weightwave/taskcast/pkg/taskcast"
	"github.com/weightwave/taskcast/pkg/webhook"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v", envPath, err)
		log.Printf("continuing with existing environment variables")
	} else {
		log.Printf("loaded environment from %s", envPath)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	short, closeShort := buildShortTermStore(cfg)
	if closeShort != nil {
		defer closeShort()
	}

	long, closeLong := buildLongTermStore(cfg)
	if closeLong != nil {
		defer closeLong()
	}

	bcast, closeBroadcast := buildBroadcastProvider(cfg)
	if closeBroadcast != nil {
		defer closeBroadcast()
	}

	deliverer := webhook.New(nil)
	hooks := taskcast.Hooks{
		OnEventDropped: func(event taskcast.TaskEvent, reason error) {
			slog.Warn("event dropped from long-term archival", "task_id", event.TaskID, "event_id", event.ID, "error", reason)
		},
		OnWebhookFailed: func(taskID string, wh taskcast.WebhookConfig, reason error) {
			slog.Warn("webhook delivery failed", "task_id", taskID, "url", wh.URL, "error", reason)
		},
	}

	engine := taskcast.NewEngine(short, long, bcast, deliverer, hooks)

	authorizer := buildAuthorizer(cfg)

	if long != nil && cfg.CleanupInterval > 0 {
		cleanupSvc := cleanup.NewService(long, cfg.CleanupInterval)
		cleanupSvc.Start(ctx)
		defer cleanupSvc.Stop()
		slog.Info("cleanup service started", "interval", cfg.CleanupInterval)
	}

	server := api.NewServer(cfg, engine, long, authorizer)

	addr := ":" + strconv.Itoa(cfg.HTTPPort)
	slog.Info("starting taskcastd", "addr", addr, "store_backend", cfg.StoreBackend, "long_term_backend", cfg.LongTermBackend, "auth_mode", cfg.AuthMode)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		slog.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}

func buildShortTermStore(cfg *config.Config) (taskcast.ShortTermStore, func()) {
	switch cfg.StoreBackend {
	case config.StoreBackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid TASKCAST_REDIS_URL: %v", err)
		}
		client := redis.NewClient(opts)
		return redisstore.New(client, cfg.RedisPrefix), func() { _ = client.Close() }
	default:
		return memstore.New(), nil
	}
}

func buildLongTermStore(cfg *config.Config) (taskcast.LongTermStore, func()) {
	if cfg.LongTermBackend != config.LongTermBackendPostgres {
		return nil, nil
	}
	store, err := pgstore.Open(pgstore.Config{DSN: cfg.PostgresDSN, Prefix: cfg.PostgresPrefix})
	if err != nil {
		log.Fatalf("failed to open postgres long-term store: %v", err)
	}
	return store, func() { _ = store.Close() }
}

func buildBroadcastProvider(cfg *config.Config) (taskcast.BroadcastProvider, func()) {
	switch cfg.StoreBackend {
	case config.StoreBackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid TASKCAST_REDIS_URL: %v", err)
		}
		client := redis.NewClient(opts)
		return broadcast.NewRedisProvider(client, cfg.RedisPrefix), func() { _ = client.Close() }
	default:
		return broadcast.NewMemoryProvider(), nil
	}
}

func buildAuthorizer(cfg *config.Config) *taskauth.Authorizer {
	if cfg.AuthMode != config.AuthModeToken {
		return taskauth.NewNoneAuthorizer()
	}
	authCfg := taskauth.Config{
		Algorithm: taskauth.Algorithm(cfg.JWTAlgorithm),
		Secret:    []byte(cfg.JWTSecret),
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
	}
	if authCfg.Algorithm == taskauth.AlgRS256 {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.JWTPublicKey))
		if err != nil {
			log.Fatalf("invalid RSA public key from TASKCAST_JWT_PUBLIC_KEY_PATH: %v", err)
		}
		authCfg.PublicKey = key
	}
	return taskauth.NewTokenAuthorizer(authCfg)
}
