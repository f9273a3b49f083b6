package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/ArYaN9696/QuitQ/internal/domain"
)

const (
	opTimeout              = 5 * time.Second
	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute

	pgUniqueViolation = "23505"
)

// Store оборачивает подключение к PostgreSQL и реализует UnitOfWork.
type Store struct {
	db *sqlx.DB
}

// Open открывает подключение к PostgreSQL и проверяет доступность базы.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

// DB возвращает подключение, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema применяет все up-миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Do выполняет fn в транзакции READ COMMITTED. Заказы на запись читаются через
// SELECT ... FOR UPDATE, поэтому конкурирующие переходы одного заказа сериализуются.
func (s *Store) Do(ctx context.Context, fn func(repos domain.Repositories) error) (err error) {
	if s == nil || s.db == nil {
		return errNotInitialized
	}

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(repositoriesFor(tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Repositories возвращает репозитории поверх пула соединений, без общей транзакции.
func (s *Store) Repositories() domain.Repositories {
	return repositoriesFor(s.db)
}

func repositoriesFor(db sqlx.ExtContext) domain.Repositories {
	return domain.Repositories{
		Carts:    &cartRepository{db: db},
		Catalog:  &catalogRepository{db: db},
		Orders:   &orderRepository{db: db},
		Payments: &paymentRepository{db: db},
		Outbox:   &outboxRepository{db: db},
		Timeline: &timelineRepository{db: db},
	}
}

var errNotInitialized = errors.New("postgres store is not initialized")

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

var _ domain.UnitOfWork = (*Store)(nil)
