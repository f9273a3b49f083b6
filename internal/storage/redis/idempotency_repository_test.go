package redis

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ArYaN9696/QuitQ/internal/domain"
)

const defaultLocalRedisAddr = "localhost:6379"

func openRepositoryForIntegrationTest(t *testing.T) *IdempotencyRepository {
	t.Helper()

	addr := strings.TrimSpace(os.Getenv("QUITQ_REDIS_TEST_ADDR"))
	if addr == "" {
		addr = defaultLocalRedisAddr
	}

	client := NewClient(addr)
	t.Cleanup(func() { _ = client.Close() })

	// Отдельный префикс на тест, чтобы параллельные прогоны не пересекались.
	repo := NewIdempotencyRepository(client, "quitq:test:"+uuid.NewString()+":")
	if err := repo.Ping(context.Background()); err != nil {
		t.Skipf("redis is not available for integration tests: %s: %v", addr, err)
	}
	return repo
}

func TestEncodeDecodeKeepsStatusAndBody(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	raw, err := encode(domain.IdempotencyRecord{
		Key:          "k",
		RequestHash:  "h",
		ResponseBody: []byte(`{"status":"Success"}`),
		HTTPStatus:   201,
		Status:       domain.IdempotencyStatusDone,
		TTLAt:        now.Add(time.Hour),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	require.NoError(t, err)

	record, err := decode("k", raw)
	require.NoError(t, err)
	require.Equal(t, "k", record.Key)
	require.Equal(t, domain.IdempotencyStatusDone, record.Status)
	require.Equal(t, 201, record.HTTPStatus)
	require.JSONEq(t, `{"status":"Success"}`, string(record.ResponseBody))
	require.True(t, record.TTLAt.Equal(now.Add(time.Hour)))
}

func TestDecodeRejectsUnknownStatus(t *testing.T) {
	_, err := decode("k", []byte(`{"request_hash":"h","status":"broken"}`))
	require.Error(t, err)
}

func TestIdempotencyRepository_RedisLifecycle(t *testing.T) {
	repo := openRepositoryForIntegrationTest(t)
	ctx := context.Background()
	ttl := time.Now().UTC().Add(time.Minute)

	created, err := repo.CreateProcessing(ctx, "key-1", "hash-a", ttl)
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusProcessing, created.Status)

	_, err = repo.CreateProcessing(ctx, "key-1", "hash-a", ttl)
	require.True(t, errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists))

	_, err = repo.CreateProcessing(ctx, "key-1", "hash-b", ttl)
	require.True(t, errors.Is(err, domain.ErrIdempotencyHashMismatch))

	require.NoError(t, repo.MarkDone(ctx, "key-1", []byte(`{"ok":true}`), 201))

	record, err := repo.Get(ctx, "key-1")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusDone, record.Status)
	require.Equal(t, 201, record.HTTPStatus)

	ttlLeft, err := repo.client.TTL(ctx, repo.redisKey("key-1")).Result()
	require.NoError(t, err)
	require.Greater(t, ttlLeft, time.Duration(0), "mark must keep ttl")

	require.ErrorIs(t, repo.MarkFailed(ctx, "missing", nil, 500), domain.ErrIdempotencyKeyNotFound)

	removed, err := repo.DeleteExpired(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Zero(t, removed)
}
