package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/ArYaN9696/QuitQ/internal/domain"
	"github.com/ArYaN9696/QuitQ/internal/health"
	"github.com/ArYaN9696/QuitQ/internal/messaging/kafka"
	"github.com/ArYaN9696/QuitQ/internal/metrics"
	"github.com/ArYaN9696/QuitQ/internal/service/ledger"
	"github.com/ArYaN9696/QuitQ/internal/service/payment"
	"github.com/ArYaN9696/QuitQ/internal/storage/memory"
	"github.com/ArYaN9696/QuitQ/internal/storage/postgres"
	redisstore "github.com/ArYaN9696/QuitQ/internal/storage/redis"
)

// unitOfWork описывает хранилище, за которым следит readiness probe.
type unitOfWork interface {
	domain.UnitOfWork
	Ping(ctx context.Context) error
}

// Dependencies содержит собранные компоненты приложения.
type Dependencies struct {
	Store           domain.UnitOfWork
	IdempotencyRepo domain.IdempotencyRepository
	Publisher       domain.OutboxPublisher
	DLQPublisher    domain.OutboxPublisher
	Ledger          *ledger.Ledger
	Reconciler      *payment.Reconciler
	Metrics         *metrics.CommerceMetrics
	Checkers        map[string]health.Checker

	closers []func() error
}

// Close освобождает подключения в обратном порядке открытия.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// NewDependencies собирает хранилище, публикаторы и сервисы по конфигурации.
// При ошибке уже открытые подключения закрываются.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (_ *Dependencies, err error) {
	if logger == nil {
		logger = log.New().WithField("component", "app")
	}

	deps := &Dependencies{Checkers: make(map[string]health.Checker)}
	defer func() {
		if err != nil {
			_ = deps.Close()
		}
	}()

	store, storageIdem, err := initStorage(ctx, cfg, deps, logger)
	if err != nil {
		return nil, err
	}
	deps.Store = store
	deps.Checkers["storage"] = health.NewPingChecker("storage", store.Ping)

	if deps.IdempotencyRepo, err = initIdempotency(cfg, storageIdem, deps); err != nil {
		return nil, err
	}

	if err := initPublishers(cfg, deps, logger); err != nil {
		return nil, err
	}

	deps.Metrics = metrics.NewCommerceMetrics()
	deps.Ledger = ledger.NewLedger(store,
		ledger.WithLogger(logger.WithField("component", "order-ledger")),
		ledger.WithMetrics(deps.Metrics),
	)
	deps.Reconciler = payment.NewReconciler(store, deps.Ledger,
		payment.WithLogger(logger.WithField("component", "payment-reconciler")),
		payment.WithMetrics(deps.Metrics),
	)
	return deps, nil
}

// initStorage открывает основное хранилище и возвращает связанный с ним репозиторий идемпотентности.
func initStorage(ctx context.Context, cfg Config, deps *Dependencies, logger *log.Entry) (unitOfWork, domain.IdempotencyRepository, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		logger.Info("using in-memory storage")
		return memory.NewStore(), memory.NewIdempotencyRepository(), nil
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, nil, errors.New("postgres storage requires dsn")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres storage: %w", err)
		}
		deps.closers = append(deps.closers, store.Close)

		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return nil, nil, fmt.Errorf("migrate postgres schema: %w", err)
			}
		}
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("using postgres storage")
		return store, postgres.NewIdempotencyRepository(store), nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func initIdempotency(cfg Config, storageRepo domain.IdempotencyRepository, deps *Dependencies) (domain.IdempotencyRepository, error) {
	switch cfg.IdempotencyDriver {
	case IdempotencyDriverStorage, "":
		return storageRepo, nil
	case IdempotencyDriverRedis:
		if cfg.RedisAddr == "" {
			return nil, errors.New("redis idempotency requires address")
		}
		client := redisstore.NewClient(cfg.RedisAddr)
		deps.closers = append(deps.closers, client.Close)

		repo := redisstore.NewIdempotencyRepository(client, "")
		deps.Checkers["redis"] = health.NewOptionalChecker("redis", repo.Ping)
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported idempotency driver %q", cfg.IdempotencyDriver)
	}
}

// initPublishers подключает Kafka, а без брокеров пишет события в лог.
func initPublishers(cfg Config, deps *Dependencies, logger *log.Entry) error {
	if len(cfg.KafkaBrokers) == 0 {
		publisherLogger := logger.WithField("component", "log-publisher")
		deps.Publisher = kafka.NewLogPublisher(publisherLogger, cfg.KafkaTopic)
		deps.DLQPublisher = kafka.NewLogPublisher(publisherLogger, cfg.KafkaDLQTopic)
		logger.Info("kafka brokers not configured, outbox events go to log")
		return nil
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, "quitq-commerce")
	if err != nil {
		return fmt.Errorf("init kafka producer: %w", err)
	}
	deps.closers = append(deps.closers, producer.Close)

	deps.Publisher = kafka.NewOutboxPublisher(producer, cfg.KafkaTopic)
	deps.DLQPublisher = kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic)
	logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
	return nil
}
