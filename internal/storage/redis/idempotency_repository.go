// Package redis хранит ключи идемпотентности в Redis с нативным TTL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ArYaN9696/QuitQ/internal/domain"
)

const (
	defaultKeyPrefix = "quitq:idempotency:"
	opTimeout        = 2 * time.Second
)

// storedRecord: JSON-представление записи в Redis.
type storedRecord struct {
	RequestHash  string    `json:"request_hash"`
	ResponseBody []byte    `json:"response_body,omitempty"`
	HTTPStatus   int       `json:"http_status,omitempty"`
	Status       string    `json:"status"`
	TTLAt        time.Time `json:"ttl_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IdempotencyRepository реализует domain.IdempotencyRepository поверх Redis.
type IdempotencyRepository struct {
	client goredis.UniversalClient
	prefix string
}

// NewClient создаёт клиента Redis для адреса addr.
func NewClient(addr string) *goredis.Client {
	return goredis.NewClient(&goredis.Options{Addr: addr})
}

// NewIdempotencyRepository создаёт репозиторий. Пустой prefix заменяется значением по умолчанию.
func NewIdempotencyRepository(client goredis.UniversalClient, prefix string) *IdempotencyRepository {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &IdempotencyRepository{client: client, prefix: prefix}
}

// Ping проверяет доступность Redis.
func (r *IdempotencyRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *IdempotencyRepository) redisKey(key string) string {
	return r.prefix + key
}

func (r *IdempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)

	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := time.Now().UTC()
	if ttlAt.IsZero() {
		ttlAt = now.Add(24 * time.Hour)
	}
	ttl := ttlAt.Sub(now)
	if ttl <= 0 {
		// Redis не принимает нулевой TTL, запись всё равно истечёт почти сразу.
		ttl = time.Millisecond
	}

	record := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	payload, err := encode(record)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	created, err := r.client.SetNX(ctx, r.redisKey(key), payload, ttl).Result()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("redis setnx idempotency key: %w", err)
	}
	if created {
		return record, nil
	}

	existing, err := r.get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
		}
		return domain.IdempotencyRecord{}, err
	}
	if existing.RequestHash != requestHash {
		return existing, domain.ErrIdempotencyHashMismatch
	}
	return existing, domain.ErrIdempotencyKeyAlreadyExists
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return r.get(ctx, key)
}

func (r *IdempotencyRepository) get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	raw, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if err == goredis.Nil {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("redis get idempotency key: %w", err)
	}
	return decode(key, raw)
}

func (r *IdempotencyRepository) MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *IdempotencyRepository) MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// DeleteExpired ничего не делает: Redis удаляет истёкшие ключи сам.
func (r *IdempotencyRepository) DeleteExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

// markStatus обновляет запись под WATCH, сохраняя оставшийся TTL ключа.
func (r *IdempotencyRepository) markStatus(ctx context.Context, key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	redisKey := r.redisKey(key)
	err := r.client.Watch(ctx, func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, redisKey).Bytes()
		if err == goredis.Nil {
			return domain.ErrIdempotencyKeyNotFound
		}
		if err != nil {
			return fmt.Errorf("redis get idempotency key: %w", err)
		}

		record, err := decode(key, raw)
		if err != nil {
			return err
		}
		record.Status = status
		record.ResponseBody = append([]byte(nil), responseBody...)
		record.HTTPStatus = httpStatus
		record.UpdatedAt = time.Now().UTC()

		payload, err := encode(record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, redisKey, payload, goredis.KeepTTL)
			return nil
		})
		return err
	}, redisKey)
	if err != nil {
		if errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
			return err
		}
		return fmt.Errorf("mark idempotency key status: %w", err)
	}
	return nil
}

func encode(record domain.IdempotencyRecord) ([]byte, error) {
	payload, err := json.Marshal(storedRecord{
		RequestHash:  record.RequestHash,
		ResponseBody: record.ResponseBody,
		HTTPStatus:   record.HTTPStatus,
		Status:       string(record.Status),
		TTLAt:        record.TTLAt,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode idempotency record: %w", err)
	}
	return payload, nil
}

func decode(key string, raw []byte) (domain.IdempotencyRecord, error) {
	var stored storedRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("decode idempotency record %s: %w", key, err)
	}
	record := domain.IdempotencyRecord{
		Key:          key,
		RequestHash:  stored.RequestHash,
		ResponseBody: stored.ResponseBody,
		HTTPStatus:   stored.HTTPStatus,
		Status:       domain.IdempotencyStatus(stored.Status),
		TTLAt:        stored.TTLAt,
		CreatedAt:    stored.CreatedAt,
		UpdatedAt:    stored.UpdatedAt,
	}
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q for key %s", stored.Status, key)
	}
	return record, nil
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
