// cmd/notification-api/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"notification-pipeline/internal/api"
	"notification-pipeline/internal/audit"
	"notification-pipeline/internal/authcache"
	"notification-pipeline/internal/common/config"
	"notification-pipeline/internal/common/database"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/common/observability"
	"notification-pipeline/internal/ingest"
	"notification-pipeline/internal/queue"
	"notification-pipeline/internal/realtime"
	"notification-pipeline/internal/store"
	"notification-pipeline/internal/templates"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).With(map[string]interface{}{"service": "notification-api"})

	zapLog.Info("Starting notification API...", zap.String("version", cfg.App.Version))

	obs, err := observability.New("notification-api")
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

	// --- Audit sink: Elasticsearch when configured ---
	var sink audit.Sink = audit.NewLogSink(log)
	if cfg.Database.Elasticsearch.Enabled() {
		var es *database.ElasticsearchClient
		err = database.RetryWithBackoff(ctx, func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping(ctx)
		}, 5, 2*time.Second, log, "Elasticsearch connection")
		if err != nil {
			zapLog.Warn("elasticsearch unavailable, auditing to log", zap.Error(err))
		} else {
			esSink := audit.NewElasticsearchSink(es.Client, cfg.Database.Elasticsearch.AuditIndex, log)
			defer esSink.Flush()
			sink = esSink
			zapLog.Info("Elasticsearch connected successfully")
		}
	}

	tenants := store.NewTenantStore(pg.DB)
	notifications := store.NewNotificationStore(pg.DB)

	keys := authcache.New(tenants, authcache.Config{
		TTL:           config.GetDuration(cfg.AuthCache.TTL),
		MaxEntries:    cfg.AuthCache.MaxEntries,
		SweepInterval: config.GetDuration(cfg.AuthCache.SweepInterval),
	}, log)
	go keys.Run(ctx)

	jobs := queue.New(rdb.Client, queue.OptionsFromConfig(cfg.Queue), log)

	// --- Realtime transport side ---
	bus, err := realtime.OpenBus(ctx, cfg.Realtime, rdb.Client, log)
	if err != nil {
		zapLog.Fatal("realtime bus failed", zap.Error(err))
	}
	defer bus.Close()

	hub := realtime.NewHub(log)
	relay := realtime.NewLocal(hub, bus, cfg.Realtime.Channel, obs, log)
	if err := relay.Relay(ctx); err != nil {
		zapLog.Fatal("realtime relay failed", zap.Error(err))
	}

	server := api.NewServer(api.Dependencies{
		Auth:          keys,
		Sender:        ingest.NewService(notifications, jobs, sink, log),
		Notifications: notifications,
		PushTokens:    store.NewPushTokenStore(pg.DB),
		Templates: templates.NewResolver(
			store.NewTemplateStore(pg.DB),
			store.NewLayoutStore(pg.DB),
			tenants,
			log,
		),
		Audit:    sink,
		Realtime: realtime.NewTransport(hub, cfg.Realtime.AllowedOrigins, log),
		Ready: func(ctx context.Context) error {
			if err := pg.Ping(ctx); err != nil {
				return err
			}
			return rdb.Ping(ctx)
		},
	}, log)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTP.APIPort)
		zapLog.Info("API server listening", zap.String("addr", addr))
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			zapLog.Error("API server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	zapLog.Info("Shutdown signal received, stopping API...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping API server", zap.Error(err))
	}

	zapLog.Info("Notification API stopped gracefully")
}
