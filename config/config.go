package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName            string        `env:"APP_NAME" env-default:"sortinghat"`
	Version            string        `env:"APP_VERSION" env-default:"dev"`
	Port               int           `env:"PORT" env-default:"9314"`
	LogLevel           string        `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs         bool          `env:"PRETTY_LOGS" env-default:"false"`
	StartupMaxAttempts int           `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"15s"`

	// PostgreSQL
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort                  int           `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:"sortinghat"`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"sortinghat"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      uint          `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`
	DatabaseMigrateOnStart        bool          `env:"DB_MIGRATE_ON_START" env-default:"true"`

	// Redis (distributed locks)
	RedisEnabled  bool          `env:"REDIS_ENABLED" env-default:"false"`
	RedisHost     string        `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int           `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string        `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int           `env:"REDIS_DB" env-default:"0"`
	RedisLockTTL  time.Duration `env:"REDIS_LOCK_TTL" env-default:"5m"`

	// Kafka (operation events)
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaTopic        string   `env:"KAFKA_TOPIC" env-default:"sortinghat-operations"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Graph Database (Memgraph)
	GraphDBEnabled  bool   `env:"GRAPH_DB_ENABLED" env-default:"false"`
	GraphDBHost     string `env:"GRAPH_DB_HOST" env-default:"localhost"`
	GraphDBPort     int    `env:"GRAPH_DB_PORT" env-default:"7687"`
	GraphDBUser     string `env:"GRAPH_DB_USER" env-default:""`
	GraphDBPassword string `env:"GRAPH_DB_PASSWORD" env-default:""`

	// Auth
	AuthEnabled   bool   `env:"AUTH_ENABLED" env-default:"false"`
	AuthIssuerURL string `env:"AUTH_ISSUER_URL" env-default:""`
	AuthClientID  string `env:"AUTH_CLIENT_ID" env-default:""`

	// Tracing
	TracingExporter string `env:"TRACING_EXPORTER" env-default:"none"` // none, console, otlp
	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol    string `env:"OTEL_EXPORTER_OTLP_PROTOCOL" env-default:"grpc"`
	OTLPInsecure    bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"true"`
	OTLPHeaders     string `env:"OTEL_EXPORTER_OTLP_HEADERS" env-default:""`

	// Unification
	UnifyMatcher      string `env:"UNIFY_MATCHER" env-default:"default"`
	UnifyRecoveryHome string `env:"UNIFY_RECOVERY_HOME" env-default:""`

	// Recommendations
	RecommendationCacheSize int           `env:"RECOMMENDATION_CACHE_SIZE" env-default:"1024"`
	GenderizeEnabled        bool          `env:"GENDERIZE_ENABLED" env-default:"false"`
	GenderizeEndpoint       string        `env:"GENDERIZE_ENDPOINT" env-default:"https://api.genderize.io"`
	GenderizeAPIKey         string        `env:"GENDERIZE_API_KEY" env-default:""`
	GenderizeTimeout        time.Duration `env:"GENDERIZE_TIMEOUT" env-default:"10s"`
	GenderizeMaxRetries     uint64        `env:"GENDERIZE_MAX_RETRIES" env-default:"5"`

	// Scheduler
	SchedulerEnabled      bool          `env:"SCHEDULER_ENABLED" env-default:"true"`
	SchedulerPollInterval time.Duration `env:"SCHEDULER_POLL_INTERVAL" env-default:"30s"`
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.AuthEnabled && (c.AuthIssuerURL == "" || c.AuthClientID == "") {
		return errors.New("AUTH_ISSUER_URL and AUTH_CLIENT_ID are required when AUTH_ENABLED is set")
	}
	switch c.TracingExporter {
	case "none", "console", "otlp":
	default:
		return fmt.Errorf("unknown TRACING_EXPORTER '%s'", c.TracingExporter)
	}
	return nil
}

// DatabaseDSN is the lib/pq connection URL.
func (c *Config) DatabaseDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DatabaseUserName, c.DatabasePassword),
		Host:     fmt.Sprintf("%s:%d", c.DatabaseHost, c.DatabasePort),
		Path:     c.DatabaseName,
		RawQuery: url.Values{"sslmode": {c.DatabaseSSLMode}}.Encode(),
	}
	return u.String()
}
