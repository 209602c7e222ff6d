// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig         `mapstructure:"app"`
	Database     DatabaseConfig    `mapstructure:"database"`
	Queue        QueueConfig       `mapstructure:"queue"`
	Worker       WorkerConfig      `mapstructure:"worker"`
	AuthCache    AuthCacheConfig   `mapstructure:"auth_cache"`
	Vault        VaultConfig       `mapstructure:"vault"`
	Realtime     RealtimeConfig    `mapstructure:"realtime"`
	Integrations IntegrationConfig `mapstructure:"integrations"`
	HTTP         HTTPConfig        `mapstructure:"http"`
	Retention    RetentionConfig   `mapstructure:"retention"`
	Logging      LoggingConfig     `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// ElasticsearchConfig backs the audit sink. Empty addresses disable it.
type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	AuditIndex string   `mapstructure:"audit_index"`
}

// Enabled reports whether an audit cluster is configured.
func (e ElasticsearchConfig) Enabled() bool {
	return len(e.Addresses) > 0
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Pipeline Config ---

// QueueConfig drives the durable notification job queue.
type QueueConfig struct {
	Name          string `mapstructure:"name"`
	Attempts      int    `mapstructure:"attempts"`
	BackoffMs     int    `mapstructure:"backoff_ms"`
	KeepCompleted int64  `mapstructure:"keep_completed"`
	KeepFailed    int64  `mapstructure:"keep_failed"`
	PollInterval  int    `mapstructure:"poll_interval_ms"`
	LeaseMs       int    `mapstructure:"lease_ms"`
}

// WorkerConfig sizes the consumer pool.
type WorkerConfig struct {
	Concurrency         int `mapstructure:"concurrency"`
	Timeout             int `mapstructure:"timeout"` // milliseconds
	MaintenanceInterval int `mapstructure:"maintenance_interval_ms"`
}

// AuthCacheConfig bounds the API key verification cache.
type AuthCacheConfig struct {
	TTL           int `mapstructure:"ttl_ms"`
	MaxEntries    int `mapstructure:"max_entries"`
	SweepInterval int `mapstructure:"sweep_interval_ms"`
}

// VaultConfig holds the credential encryption key and client cache policy.
type VaultConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"` // 64 hex chars
	MailClientTTL int    `mapstructure:"mail_client_ttl_ms"`
}

// RealtimeConfig selects the cross-process fan-out bus.
type RealtimeConfig struct {
	Bus            string   `mapstructure:"bus"` // redis | pubsub | noop
	Channel        string   `mapstructure:"channel"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	PubSub         struct {
		ProjectID      string `mapstructure:"project_id"`
		TopicID        string `mapstructure:"topic_id"`
		SubscriptionID string `mapstructure:"subscription_id"`
	} `mapstructure:"pubsub"`
}

// IntegrationConfig holds settings for provider SDKs that are not tenant scoped.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// HTTPConfig holds listener ports and the outbound provider timeout.
type HTTPConfig struct {
	APIPort         int `mapstructure:"api_port"`
	OpsPort         int `mapstructure:"ops_port"`
	ProviderTimeout int `mapstructure:"provider_timeout_ms"`
}

// RetentionConfig controls how long notifications are kept.
type RetentionConfig struct {
	Days          int `mapstructure:"days"`
	SweepInterval int `mapstructure:"sweep_interval_ms"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
