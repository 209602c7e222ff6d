// cmd/tools/notification-admin/main.go
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"notification-pipeline/internal/audit"
	"notification-pipeline/internal/common/config"
	"notification-pipeline/internal/common/crypto"
	"notification-pipeline/internal/common/database"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/models"
	"notification-pipeline/internal/queue"
	"notification-pipeline/internal/realtime"
	"notification-pipeline/internal/store"
	"notification-pipeline/internal/vault"
)

func main() {
	rotateCmd := flag.NewFlagSet("rotate", flag.ExitOnError)
	queueCmd := flag.NewFlagSet("queue", flag.ExitOnError)

	// Rotate command flags
	tenantID := rotateCmd.String("tenant", "", "Tenant ID")
	channel := rotateCmd.String("channel", "", "Channel (EMAIL, SMS, PUSH)")
	provider := rotateCmd.String("provider", "", "Provider name (e.g., smtp, ses, twilio, fcm)")
	configPath := rotateCmd.String("config", "", "Path to a JSON file with the provider settings")

	// Queue command flags
	jobID := queueCmd.String("job", "", "Job ID to inspect (optional)")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "genkey":
		if err := generateAPIKey(); err != nil {
			fail("generating API key", err)
		}

	case "genenckey":
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			fail("generating encryption key", err)
		}
		fmt.Println(hex.EncodeToString(buf))

	case "rotate":
		rotateCmd.Parse(os.Args[2:])
		if *tenantID == "" || *channel == "" || *provider == "" || *configPath == "" {
			fmt.Println("Error: tenant, channel, provider and config are required for rotate.")
			rotateCmd.Usage()
			os.Exit(1)
		}
		if err := rotateCredential(*tenantID, models.Channel(*channel), *provider, *configPath); err != nil {
			fail("rotating credential", err)
		}

	case "queue":
		queueCmd.Parse(os.Args[2:])
		if err := inspectQueue(*jobID); err != nil {
			fail("inspecting queue", err)
		}

	case "help":
		help()

	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		help()
		os.Exit(1)
	}
}

func generateAPIKey() error {
	raw, err := crypto.GenerateAPIKey()
	if err != nil {
		return err
	}
	hash, err := crypto.HashAPIKey(raw)
	if err != nil {
		return err
	}
	fmt.Printf("API key:  %s\n", raw)
	fmt.Printf("Prefix:   %s\n", crypto.LookupPrefix(raw))
	fmt.Printf("Hash:     %s\n", hash)
	fmt.Println("Store the prefix and hash on the app; the raw key is shown only once.")
	return nil
}

func rotateCredential(tenantID string, channel models.Channel, provider, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var values map[string]interface{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.NewStructured(cfg.Logging.Level, "console")

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return err
	}
	defer pg.Close()

	rdb, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	cipher, err := crypto.NewCipher(cfg.Vault.EncryptionKey)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	v := vault.New(store.NewCredentialStore(pg.DB), cipher, vault.Options{AWSRegion: cfg.Integrations.AWS.Region}, log)
	v.AnnounceOn(realtime.NewRedisBus(rdb.Client, log))

	cred, err := v.Rotate(ctx, tenantID, channel, provider, values)
	if err != nil && cred == nil {
		return err
	}
	announceErr := err

	var sink audit.Sink = audit.NewLogSink(log)
	if cfg.Database.Elasticsearch.Enabled() {
		if es, err := database.NewElasticsearch(cfg.Database.Elasticsearch); err == nil {
			esSink := audit.NewElasticsearchSink(es.Client, cfg.Database.Elasticsearch.AuditIndex, log)
			defer esSink.Flush()
			sink = esSink
		}
	}
	sink.Record(ctx, models.AuditEntry{
		TenantID:   tenantID,
		Action:     models.AuditCredentialRotated,
		Actor:      "cli:notification-admin",
		Resource:   "NotificationCredential",
		ResourceID: cred.ID,
		Details:    map[string]interface{}{"channel": string(channel), "provider": provider},
		CreatedAt:  time.Now().UTC(),
	})

	fmt.Printf("Rotated %s credential for tenant %s (provider %s, id %s)\n", channel, tenantID, provider, cred.ID)
	if announceErr != nil {
		return fmt.Errorf("workers were not told to drop cached clients, restart them: %w", announceErr)
	}
	return nil
}

func inspectQueue(jobID string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	rdb, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	q := queue.New(rdb.Client, queue.Options{Name: cfg.Queue.Name}, logger.NewNoOpLogger())

	if jobID != "" {
		state, lastErr, err := q.JobState(ctx, jobID)
		if err != nil {
			return err
		}
		fmt.Printf("Job %s: %s\n", jobID, state)
		if lastErr != "" {
			fmt.Printf("Last error: %s\n", lastErr)
		}
		return nil
	}

	counts, err := q.Counts(ctx)
	if err != nil {
		return err
	}
	states := make([]string, 0, len(counts))
	for s := range counts {
		states = append(states, s)
	}
	sort.Strings(states)
	fmt.Printf("Queue %s\n", cfg.Queue.Name)
	for _, s := range states {
		fmt.Printf("  %-10s %d\n", s, counts[s])
	}
	return nil
}

func fail(action string, err error) {
	fmt.Printf("Error %s: %v\n", action, err)
	os.Exit(1)
}

func help() {
	fmt.Println("Usage: notification-admin <command> [arguments]")
	fmt.Println("Commands:")
	fmt.Println("  genkey      Generate an app API key with its prefix and bcrypt hash")
	fmt.Println("  genenckey   Generate a credential encryption key (64 hex characters)")
	fmt.Println("  rotate      Replace a tenant's channel credential")
	fmt.Println("  queue       Show queue depth or the state of one job")
}
