package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	IdempotencyDriverStorage = "storage"
	IdempotencyDriverRedis   = "redis"

	envPrefix = "QUITQ_"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	LogLevel  string
	LogFormat string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	KafkaBrokers  []string
	KafkaTopic    string
	KafkaDLQTopic string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	IdempotencyDriver           string
	RedisAddr                   string
	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int
}

// DefaultConfig возвращает настройки локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		LogLevel:  "info",
		LogFormat: "text",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		KafkaTopic:    "quitq.commerce.events",
		KafkaDLQTopic: "quitq.commerce.dlq",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,

		IdempotencyDriver:           IdempotencyDriverStorage,
		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,
	}
}

// LoadConfig читает envFile (если он задан и существует), затем переменные QUITQ_*.
// Переменные окружения процесса имеют приоритет над значениями из файла.
func LoadConfig(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	cfg := DefaultConfig()
	var errs []error

	cfg.HTTPAddr = envString("HTTP_ADDR", cfg.HTTPAddr)
	cfg.GRPCAddr = envString("GRPC_ADDR", cfg.GRPCAddr)
	cfg.MetricsAddr = envString("METRICS_ADDR", cfg.MetricsAddr)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envString("LOG_FORMAT", cfg.LogFormat)

	cfg.StorageDriver = strings.ToLower(envString("STORAGE_DRIVER", cfg.StorageDriver))
	cfg.PostgresDSN = envString("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.PostgresAutoMigrate = envBool("POSTGRES_AUTO_MIGRATE", cfg.PostgresAutoMigrate, &errs)

	if brokers := envString("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = splitList(brokers)
	}
	cfg.KafkaTopic = envString("KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.KafkaDLQTopic = envString("KAFKA_DLQ_TOPIC", cfg.KafkaDLQTopic)

	cfg.OutboxPollInterval = envDuration("OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval, &errs)
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize, &errs)
	cfg.OutboxMaxAttempts = envInt("OUTBOX_MAX_ATTEMPTS", cfg.OutboxMaxAttempts, &errs)
	cfg.OutboxRetryDelay = envDuration("OUTBOX_RETRY_DELAY", cfg.OutboxRetryDelay, &errs)

	cfg.IdempotencyDriver = strings.ToLower(envString("IDEMPOTENCY_DRIVER", cfg.IdempotencyDriver))
	cfg.RedisAddr = envString("REDIS_ADDR", cfg.RedisAddr)
	cfg.IdempotencyTTL = envDuration("IDEMPOTENCY_TTL", cfg.IdempotencyTTL, &errs)
	cfg.IdempotencyCleanupInterval = envDuration("IDEMPOTENCY_CLEANUP_INTERVAL", cfg.IdempotencyCleanupInterval, &errs)
	cfg.IdempotencyCleanupBatchSize = envInt("IDEMPOTENCY_CLEANUP_BATCH_SIZE", cfg.IdempotencyCleanupBatchSize, &errs)

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres storage requires QUITQ_POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	switch c.IdempotencyDriver {
	case IdempotencyDriverStorage:
	case IdempotencyDriverRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("redis idempotency requires QUITQ_REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported idempotency driver %q", c.IdempotencyDriver))
	}

	if c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("outbox poll interval must be positive"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("outbox batch size must be positive"))
	}
	if c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox max attempts must be positive"))
	}
	if c.OutboxRetryDelay < 0 {
		errs = append(errs, errors.New("outbox retry delay must not be negative"))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("idempotency ttl must be positive"))
	}
	if c.IdempotencyCleanupInterval <= 0 {
		errs = append(errs, errors.New("idempotency cleanup interval must be positive"))
	}
	if c.IdempotencyCleanupBatchSize <= 0 {
		errs = append(errs, errors.New("idempotency cleanup batch size must be positive"))
	}

	return errors.Join(errs...)
}

func envString(name, fallback string) string {
	if value, ok := os.LookupEnv(envPrefix + name); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func envInt(name string, fallback int, errs *[]error) int {
	raw := envString(name, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
		return fallback
	}
	return value
}

func envBool(name string, fallback bool, errs *[]error) bool {
	raw := envString(name, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration, errs *[]error) time.Duration {
	raw := envString(name, "")
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
		return fallback
	}
	return value
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
