// cmd/notification-worker/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"notification-pipeline/internal/channels"
	"notification-pipeline/internal/common/config"
	"notification-pipeline/internal/common/crypto"
	"notification-pipeline/internal/common/database"
	commonhttp "notification-pipeline/internal/common/http"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/common/observability"
	"notification-pipeline/internal/queue"
	"notification-pipeline/internal/realtime"
	"notification-pipeline/internal/store"
	"notification-pipeline/internal/templates"
	"notification-pipeline/internal/vault"
	"notification-pipeline/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).With(map[string]interface{}{"service": "notification-worker"})

	zapLog.Info("Starting notification worker...", zap.String("version", cfg.App.Version))

	obs, err := observability.New("notification-worker")
	if err != nil {
		zapLog.Warn("observability disabled", zap.Error(err))
	}
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = database.RetryWithBackoff(ctx, func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, log, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = database.RetryWithBackoff(ctx, func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, log, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	cipher, err := crypto.NewCipher(cfg.Vault.EncryptionKey)
	if err != nil {
		zapLog.Fatal("invalid vault encryption key", zap.Error(err))
	}

	notifications := store.NewNotificationStore(pg.DB)
	pushTokens := store.NewPushTokenStore(pg.DB)

	credentials := vault.New(store.NewCredentialStore(pg.DB), cipher, vault.Options{
		MailClientTTL: config.GetDuration(cfg.Vault.MailClientTTL),
		AWSRegion:     cfg.Integrations.AWS.Region,
	}, log)

	// Rotations made by other processes arrive over Redis regardless of the realtime bus choice.
	invalidations := realtime.NewRedisBus(rdb.Client, log)
	defer invalidations.Close()
	if err := credentials.Watch(ctx, invalidations); err != nil {
		zapLog.Fatal("credential invalidation subscribe failed", zap.Error(err))
	}

	resolver := templates.NewResolver(
		store.NewTemplateStore(pg.DB),
		store.NewLayoutStore(pg.DB),
		store.NewTenantStore(pg.DB),
		log,
	)

	bus, err := realtime.OpenBus(ctx, cfg.Realtime, rdb.Client, log)
	if err != nil {
		zapLog.Fatal("realtime bus failed", zap.Error(err))
	}
	defer bus.Close()
	fanout := realtime.NewPublisher(bus, cfg.Realtime.Channel, obs, log)

	httpClient := commonhttp.NewClient(config.GetDuration(cfg.HTTP.ProviderTimeout))
	dispatchers := channels.NewRegistry(
		channels.NewEmailDispatcher(credentials, log),
		channels.NewSMSDispatcher(credentials, log,
			channels.DefaultSMSProviders(httpClient, channels.NewAWSSNSClient, cfg.Integrations.AWS.Region)...),
		channels.NewPushDispatcher(credentials, pushTokens, log),
		channels.NewInAppDispatcher(notifications, fanout, log),
	)

	jobs := queue.New(rdb.Client, queue.OptionsFromConfig(cfg.Queue), log)

	processor := worker.NewProcessor(notifications, resolver, dispatchers, obs, config.GetDuration(cfg.Worker.Timeout), log)
	pool := worker.NewPool(jobs, processor, cfg.Worker.Concurrency, config.GetDuration(cfg.Queue.PollInterval), log)
	sweeper := worker.NewRetentionSweeper(notifications, cfg.Retention.Days, config.GetDuration(cfg.Retention.SweepInterval), log)

	go jobs.RunMaintenance(ctx, config.GetDuration(cfg.Worker.MaintenanceInterval))
	go sweeper.Run(ctx)

	// --- Health & Metrics Server ---
	ops := newOpsServer(cfg.HTTP.OpsPort, func(ctx context.Context) error {
		if err := pg.Ping(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx)
	})
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.Int("port", cfg.HTTP.OpsPort))
		if err := ops.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	zapLog.Info("Worker pool started",
		zap.String("queue", cfg.Queue.Name),
		zap.Int("concurrency", cfg.Worker.Concurrency),
	)

	// Blocks until a shutdown signal arrives and in-flight jobs drain.
	pool.Run(ctx)

	zapLog.Info("Shutdown signal received, stopping worker...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := ops.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping ops server", zap.Error(err))
	}

	zapLog.Info("Notification worker stopped gracefully")
}

func newOpsServer(port int, ready func(ctx context.Context) error) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy", nil)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := ready(ctx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "not ready", err)
			return
		}
		writeStatus(w, http.StatusOK, "ready", nil)
	})
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func writeStatus(w http.ResponseWriter, code int, status string, err error) {
	body := map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	}
	if err != nil {
		body["error"] = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
