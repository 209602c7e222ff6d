// internal/common/config/loader.go
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<env>.yaml and applies
// environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders left in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets from the well known env names used by deployments.
func overrideEmptyConfig(cfg *Config) {
	setIfEmpty(&cfg.Vault.EncryptionKey, "CREDENTIAL_ENCRYPTION_KEY")
	setIfEmpty(&cfg.Database.Postgres.User, "DB_USER")
	setIfEmpty(&cfg.Database.Postgres.Password, "DB_PASSWORD")
	setIfEmpty(&cfg.Database.Redis.Address, "REDIS_ADDRESS")
	setIfEmpty(&cfg.Database.Redis.Password, "REDIS_PASSWORD")
	setIfEmpty(&cfg.Integrations.AWS.Region, "AWS_REGION")
}

func setIfEmpty(dst *string, envKey string) {
	if *dst != "" {
		return
	}
	if val := os.Getenv(envKey); val != "" {
		*dst = val
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "notification-pipeline"
	}

	// Database defaults
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.AuditIndex == "" {
		cfg.Database.Elasticsearch.AuditIndex = "notification-audit"
	}

	// Queue defaults
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = "notifications"
	}
	if cfg.Queue.Attempts == 0 {
		cfg.Queue.Attempts = 3
	}
	if cfg.Queue.BackoffMs == 0 {
		cfg.Queue.BackoffMs = 2000
	}
	if cfg.Queue.KeepCompleted == 0 {
		cfg.Queue.KeepCompleted = 1000
	}
	if cfg.Queue.KeepFailed == 0 {
		cfg.Queue.KeepFailed = 5000
	}
	if cfg.Queue.PollInterval == 0 {
		cfg.Queue.PollInterval = 500
	}
	if cfg.Queue.LeaseMs == 0 {
		cfg.Queue.LeaseMs = 60000
	}

	// Worker defaults
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = 10
	}
	if cfg.Worker.Timeout == 0 {
		cfg.Worker.Timeout = 30000
	}
	if cfg.Worker.MaintenanceInterval == 0 {
		cfg.Worker.MaintenanceInterval = 1000
	}

	// Auth cache defaults
	if cfg.AuthCache.TTL == 0 {
		cfg.AuthCache.TTL = 5 * 60 * 1000
	}
	if cfg.AuthCache.MaxEntries == 0 {
		cfg.AuthCache.MaxEntries = 1000
	}
	if cfg.AuthCache.SweepInterval == 0 {
		cfg.AuthCache.SweepInterval = 60000
	}

	if cfg.Vault.MailClientTTL == 0 {
		cfg.Vault.MailClientTTL = 5 * 60 * 1000
	}

	// Realtime defaults
	if cfg.Realtime.Bus == "" {
		cfg.Realtime.Bus = "redis"
	}
	if cfg.Realtime.Channel == "" {
		cfg.Realtime.Channel = "socket:emit"
	}

	if cfg.Integrations.AWS.Region == "" {
		cfg.Integrations.AWS.Region = "us-east-1"
	}

	// HTTP defaults
	if cfg.HTTP.APIPort == 0 {
		cfg.HTTP.APIPort = 3000
	}
	if cfg.HTTP.OpsPort == 0 {
		cfg.HTTP.OpsPort = 8080
	}
	if cfg.HTTP.ProviderTimeout == 0 {
		cfg.HTTP.ProviderTimeout = 10000
	}

	if cfg.Retention.Days == 0 {
		cfg.Retention.Days = 20
	}
	if cfg.Retention.SweepInterval == 0 {
		cfg.Retention.SweepInterval = 60 * 60 * 1000
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	key, err := hex.DecodeString(cfg.Vault.EncryptionKey)
	if err != nil || len(key) != 32 {
		return fmt.Errorf("vault.encryption_key must be 64 hex characters")
	}

	switch cfg.Realtime.Bus {
	case "redis", "noop":
	case "pubsub":
		if cfg.Realtime.PubSub.ProjectID == "" || cfg.Realtime.PubSub.TopicID == "" {
			return fmt.Errorf("realtime.pubsub.project_id and topic_id are required for the pubsub bus")
		}
	default:
		return fmt.Errorf("realtime.bus %q is not supported", cfg.Realtime.Bus)
	}

	if cfg.Queue.Attempts < 1 {
		return fmt.Errorf("queue.attempts must be at least 1")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
