package domain

import (
	"os"
	"strconv"
	"time"
)

// Config holds the complete Kestrel configuration.
type Config struct {
	Server ServerConfig `json:"server"`

	// Tier determines backend availability
	Tier Tier `json:"tier"`

	Training TrainingConfig `json:"training"`
	Store    StoreConfig    `json:"store"`
	Index    IndexConfig    `json:"index"`
	Cache    CacheConfig    `json:"cache"`
	EventBus EventBusConfig `json:"eventBus"`
	Explain  ExplainConfig  `json:"explain"`

	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// TrainingConfig controls the one-time training phase.
type TrainingConfig struct {
	// SnapshotPath is the procurement CSV used to fit models and
	// statistics. A missing file triggers the deterministic fallback
	// snapshot and marks the engine degraded.
	SnapshotPath string `json:"snapshotPath"`

	// Seed drives every random choice at fit time. Same snapshot and
	// same seed produce bitwise-identical statistics and models.
	Seed int64 `json:"seed"`

	// SampleLimit bounds training cost; snapshots above this size are
	// sampled down with the fixed seed.
	SampleLimit int `json:"sampleLimit"`

	// EnableAutoencoder resolves the optional secondary model once at
	// startup. When false the ensemble runs primary-only.
	EnableAutoencoder bool `json:"enableAutoencoder"`
}

// StoreConfig holds append-only persistence settings.
type StoreConfig struct {
	// PredictionsPath is the JSONL prediction store.
	PredictionsPath string `json:"predictionsPath"`

	// AuditPath is the JSONL audit ledger.
	AuditPath string `json:"auditPath"`

	// WriteTimeout bounds best-effort persistence per request.
	WriteTimeout time.Duration `json:"writeTimeout"`

	// RecentLimit is how many recent records vendor history returns.
	RecentLimit int `json:"recentLimit"`
}

// IndexConfig holds settings for the optional SQL index that is
// co-maintained with the append log for by-id lookups.
type IndexConfig struct {
	Enabled bool `json:"enabled"`

	// Driver is "sqlite" or "postgres".
	Driver string `json:"driver"`

	SQLitePath string `json:"sqlitePath"`

	PostgresHost     string `json:"postgresHost"`
	PostgresPort     int    `json:"postgresPort"`
	PostgresUser     string `json:"postgresUser"`
	PostgresPassword string `json:"-"`
	PostgresDB       string `json:"postgresDb"`
	PostgresSSLMode  string `json:"postgresSslMode"`

	MaxOpenConns    int           `json:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
}

// ExplainConfig holds settings for the vendor-profile generator. The
// endpoint is OpenAI-compatible (Ollama serves one); when disabled or
// unreachable the deterministic templated summary is used instead.
type ExplainConfig struct {
	Enabled bool   `json:"enabled"`
	BaseURL string `json:"baseUrl"`
	Model   string `json:"model"`
	APIKey  string `json:"-"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + in-memory cache + channel bus.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + Redis + NATS.
	TierPro Tier = "pro"
)

// DefaultSeed matches the original training pipeline.
const DefaultSeed = 42

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Training: TrainingConfig{
			SnapshotPath:      "./government-procurement.csv",
			Seed:              DefaultSeed,
			SampleLimit:       10000,
			EnableAutoencoder: true,
		},
		Store: StoreConfig{
			PredictionsPath: "./predictions_store.jsonl",
			AuditPath:       "./fraud_predictions_audit.jsonl",
			WriteTimeout:    2 * time.Second,
			RecentLimit:     5,
		},
		Index: IndexConfig{
			Enabled:    true,
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     60 * time.Second,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Explain: ExplainConfig{
			Enabled: false,
			BaseURL: "http://localhost:11434/v1",
			Model:   "llama3:8b",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Index = IndexConfig{
		Enabled:      true,
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:      "redis",
		RedisAddr: "localhost:6379",
		LocalTTL:  60 * time.Second,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}

// ApplyEnv overrides configuration from KESTREL_* environment
// variables. Only a handful of operational knobs are exposed; deeper
// changes go through code.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("KESTREL_SNAPSHOT"); v != "" {
		c.Training.SnapshotPath = v
	}
	if v := os.Getenv("KESTREL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("KESTREL_STORE_PATH"); v != "" {
		c.Store.PredictionsPath = v
	}
	if v := os.Getenv("KESTREL_AUDIT_PATH"); v != "" {
		c.Store.AuditPath = v
	}
	if v := os.Getenv("KESTREL_AUTOENCODER"); v != "" {
		c.Training.EnableAutoencoder = v == "true"
	}
	if v := os.Getenv("KESTREL_OLLAMA_URL"); v != "" {
		c.Explain.Enabled = true
		c.Explain.BaseURL = v
	}
	if v := os.Getenv("KESTREL_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("KESTREL_NATS_URL"); v != "" {
		c.EventBus.NATSUrl = v
	}
	if v := os.Getenv("KESTREL_PG_PASSWORD"); v != "" {
		c.Index.PostgresPassword = v
	}
}
