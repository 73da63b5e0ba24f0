package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

// Backend selectors.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	BusRedis  = "redis"
	BusSNSSQS = "sns_sqs"

	DeadLetterRedis    = "redis"
	DeadLetterPostgres = "postgres"
	DeadLetterS3       = "s3"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Bus           BusConfig           `mapstructure:"bus"`
	AWS           AWSConfig           `mapstructure:"aws"`
	Relay         RelayConfig         `mapstructure:"relay"`
	Consumer      ConsumerConfig      `mapstructure:"consumer"`
	Dedup         DedupConfig         `mapstructure:"dedup"`
	DeadLetter    DeadLetterConfig    `mapstructure:"deadletter"`
	Payment       PaymentConfig       `mapstructure:"payment"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
	// RateLimitPerMinute caps API requests per client IP. Zero disables it.
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
	// IdempotencyTTL is how long Idempotency-Key responses are replayed.
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
	// OperatorJWTSecret guards the outbox operator endpoints. Empty leaves
	// them open.
	OperatorJWTSecret string `mapstructure:"operator_jwt_secret"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	ConnectRetries  int           `mapstructure:"connect_retries"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// StorageConfig selects where orders, outbox and dedup rows live.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type BusConfig struct {
	Driver string `mapstructure:"driver"`
	// Topic is the Redis stream name or the SNS topic ARN.
	Topic string `mapstructure:"topic"`
	// Queue is the SQS queue URL when Driver is sns_sqs.
	Queue string `mapstructure:"queue"`
	// ConsumerGroup is the Redis consumer group.
	ConsumerGroup string        `mapstructure:"consumer_group"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
	// ClaimIdle is how long a delivery may stay unacked before another
	// consumer claims it.
	ClaimIdle time.Duration `mapstructure:"claim_idle"`
	BatchSize int64         `mapstructure:"batch_size"`
	// MaxLen approximately caps the Redis stream length. Zero disables trimming.
	MaxLen int64 `mapstructure:"max_len"`
}

type AWSConfig struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	// VisibilityTimeout is the SQS visibility window in seconds.
	VisibilityTimeout int32 `mapstructure:"visibility_timeout"`
	WaitTimeSeconds   int32 `mapstructure:"wait_time_seconds"`
}

type RelayConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BatchSize      int           `mapstructure:"batch_size"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	UseLock        bool          `mapstructure:"use_lock"`
	// Breaker settings for the publisher.
	BreakerMinRequests  uint32        `mapstructure:"breaker_min_requests"`
	BreakerFailureRatio float64       `mapstructure:"breaker_failure_ratio"`
	BreakerTimeout      time.Duration `mapstructure:"breaker_timeout"`
}

type ConsumerConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Workers           int           `mapstructure:"workers"`
	ProcessingTimeout time.Duration `mapstructure:"processing_timeout"`
	IdleWait          time.Duration `mapstructure:"idle_wait"`
}

type DedupConfig struct {
	Retention     time.Duration `mapstructure:"retention"`
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
}

type DeadLetterConfig struct {
	Driver string `mapstructure:"driver"`
	// Stream is the Redis stream for DeadLetterRedis.
	Stream string `mapstructure:"stream"`
	// Bucket and Prefix locate archived messages for DeadLetterS3.
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

type PaymentConfig struct {
	// MaxAmount is the largest order amount the authorizer approves.
	MaxAmount string `mapstructure:"max_amount"`
}

type ObservabilityConfig struct {
	LogLevel       string        `mapstructure:"log_level"`
	JaegerEndpoint string        `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool          `mapstructure:"enable_metrics"`
	EnableTracing  bool          `mapstructure:"enable_tracing"`
	StatsInterval  time.Duration `mapstructure:"stats_interval"`
	MetricsPort    int           `mapstructure:"metrics_port"`
}

// Load reads .env (if present), defaults, an optional config.yaml and
// ORDERS_* environment variables, in increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("ORDERS")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	// Read from config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/orders")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}

	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if c.Database.Host == "" {
			errs = append(errs, fmt.Errorf("database.host is required"))
		}
		if c.Database.Port <= 0 {
			errs = append(errs, fmt.Errorf("database.port must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be %q or %q, got %q", StorageMemory, StoragePostgres, c.Storage.Driver))
	}

	switch c.Bus.Driver {
	case BusRedis:
		if c.Redis.Port <= 0 {
			errs = append(errs, fmt.Errorf("redis.port must be positive"))
		}
		if c.Bus.ConsumerGroup == "" {
			errs = append(errs, fmt.Errorf("bus.consumer_group is required for the redis bus"))
		}
	case BusSNSSQS:
		if c.AWS.Region == "" {
			errs = append(errs, fmt.Errorf("aws.region is required for the sns_sqs bus"))
		}
		if c.Bus.Queue == "" {
			errs = append(errs, fmt.Errorf("bus.queue is required for the sns_sqs bus"))
		}
	default:
		errs = append(errs, fmt.Errorf("bus.driver must be %q or %q, got %q", BusRedis, BusSNSSQS, c.Bus.Driver))
	}
	if c.Bus.Topic == "" {
		errs = append(errs, fmt.Errorf("bus.topic is required"))
	}

	switch c.DeadLetter.Driver {
	case DeadLetterRedis:
		if c.DeadLetter.Stream == "" {
			errs = append(errs, fmt.Errorf("deadletter.stream is required for the redis sink"))
		}
	case DeadLetterPostgres:
		if c.Storage.Driver != StoragePostgres {
			errs = append(errs, fmt.Errorf("deadletter.driver postgres requires storage.driver postgres"))
		}
	case DeadLetterS3:
		if c.DeadLetter.Bucket == "" {
			errs = append(errs, fmt.Errorf("deadletter.bucket is required for the s3 sink"))
		}
		if c.AWS.Region == "" {
			errs = append(errs, fmt.Errorf("aws.region is required for the s3 sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("deadletter.driver must be one of redis, postgres, s3, got %q", c.DeadLetter.Driver))
	}

	if c.Relay.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("relay.batch_size must be positive"))
	}
	if c.Relay.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("relay.max_attempts must be positive"))
	}
	if c.Relay.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("relay.poll_interval must be positive"))
	}
	if c.Relay.BackoffBase <= 0 || c.Relay.BackoffMax < c.Relay.BackoffBase {
		errs = append(errs, fmt.Errorf("relay.backoff_base must be positive and not exceed relay.backoff_max"))
	}
	if c.Consumer.Workers <= 0 {
		errs = append(errs, fmt.Errorf("consumer.workers must be positive"))
	}
	if c.Consumer.ProcessingTimeout <= 0 {
		errs = append(errs, fmt.Errorf("consumer.processing_timeout must be positive"))
	}

	// A claim must outlive every redelivery of the message it guards.
	if c.Dedup.Retention <= 0 {
		errs = append(errs, fmt.Errorf("dedup.retention must be positive"))
	} else if c.Dedup.Retention < 24*time.Hour {
		errs = append(errs, fmt.Errorf("dedup.retention must be at least 24h, got %s", c.Dedup.Retention))
	}
	if c.Dedup.PurgeInterval <= 0 {
		errs = append(errs, fmt.Errorf("dedup.purge_interval must be positive"))
	}

	if c.Observability.StatsInterval <= 0 {
		errs = append(errs, fmt.Errorf("observability.stats_interval must be positive"))
	}

	if _, err := decimal.NewFromString(c.Payment.MaxAmount); err != nil {
		errs = append(errs, fmt.Errorf("payment.max_amount must be a decimal, got %q", c.Payment.MaxAmount))
	}

	// Production environment checks
	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Storage.Driver == StorageMemory {
			errs = append(errs, fmt.Errorf("storage.driver memory is not allowed in production"))
		}
		if c.Storage.Driver == StoragePostgres && c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Server.OperatorJWTSecret == "" {
			errs = append(errs, fmt.Errorf("server.operator_jwt_secret required in production"))
		}
	}

	return errors.Join(errs...)
}

// PaymentLimit returns payment.max_amount as a decimal.
func (c *Config) PaymentLimit() decimal.Decimal {
	d, err := decimal.NewFromString(c.Payment.MaxAmount)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// UsesRedis reports whether the bus or the dead-letter sink needs Redis.
func (c *Config) UsesRedis() bool {
	return c.Bus.Driver == BusRedis || c.DeadLetter.Driver == DeadLetterRedis
}

// UsesAWS reports whether the bus or the dead-letter sink needs AWS clients.
func (c *Config) UsesAWS() bool {
	return c.Bus.Driver == BusSNSSQS || c.DeadLetter.Driver == DeadLetterS3
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)
	v.SetDefault("server.rate_limit_per_minute", 600)
	v.SetDefault("server.idempotency_ttl", "24h")
	v.SetDefault("server.operator_jwt_secret", "")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "orders")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "orders")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.connect_retries", 5)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	v.SetDefault("storage.driver", StoragePostgres)

	// Bus defaults
	v.SetDefault("bus.driver", BusRedis)
	v.SetDefault("bus.topic", "orders:events")
	v.SetDefault("bus.queue", "")
	v.SetDefault("bus.consumer_group", "orders-consumers")
	v.SetDefault("bus.block_duration", "1s")
	v.SetDefault("bus.claim_idle", "1m")
	v.SetDefault("bus.batch_size", 10)
	v.SetDefault("bus.max_len", 100000)

	// AWS defaults
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.endpoint", "")
	v.SetDefault("aws.access_key_id", "")
	v.SetDefault("aws.secret_access_key", "")
	v.SetDefault("aws.visibility_timeout", 30)
	v.SetDefault("aws.wait_time_seconds", 10)

	// Relay defaults
	v.SetDefault("relay.enabled", true)
	v.SetDefault("relay.batch_size", 50)
	v.SetDefault("relay.max_attempts", 5)
	v.SetDefault("relay.poll_interval", "1s")
	v.SetDefault("relay.publish_timeout", "5s")
	v.SetDefault("relay.backoff_base", "1s")
	v.SetDefault("relay.backoff_max", "1m")
	v.SetDefault("relay.lock_ttl", "30s")
	v.SetDefault("relay.use_lock", true)
	v.SetDefault("relay.breaker_min_requests", 10)
	v.SetDefault("relay.breaker_failure_ratio", 0.6)
	v.SetDefault("relay.breaker_timeout", "30s")

	// Consumer defaults
	v.SetDefault("consumer.enabled", true)
	v.SetDefault("consumer.workers", 4)
	v.SetDefault("consumer.processing_timeout", "30s")
	v.SetDefault("consumer.idle_wait", "200ms")

	// Dedup defaults
	v.SetDefault("dedup.retention", "336h")
	v.SetDefault("dedup.purge_interval", "1h")

	// Dead-letter defaults
	v.SetDefault("deadletter.driver", DeadLetterRedis)
	v.SetDefault("deadletter.stream", "orders:dlq")
	v.SetDefault("deadletter.bucket", "")
	v.SetDefault("deadletter.prefix", "dead-letters/")

	v.SetDefault("payment.max_amount", "1000.00")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", true)
	v.SetDefault("observability.stats_interval", "15s")
	v.SetDefault("observability.metrics_port", 9090)

	// Instance ID
	v.SetDefault("instance_id", "orders-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// DatabaseURL is the DSN in URL form, as golang-migrate expects it.
func (c *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User), url.QueryEscape(c.Password), c.Host, c.Port, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
