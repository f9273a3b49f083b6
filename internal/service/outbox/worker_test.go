package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ArYaN9696/QuitQ/internal/domain"
	"github.com/ArYaN9696/QuitQ/internal/storage/memory"
)

func enqueue(t *testing.T, repo domain.OutboxRepository, id, eventType string) {
	t.Helper()
	_, err := repo.Enqueue(context.Background(), domain.OutboxMessage{
		ID:            id,
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-" + id,
		EventType:     eventType,
		Payload:       []byte(`{"to":"Paid"}`),
	})
	require.NoError(t, err)
}

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	t.Parallel()

	repo := memory.NewStore().Repositories().Outbox
	enqueue(t, repo, "msg-1", domain.EventOrderStatusChanged)
	publisher := &stubPublisher{}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0))

	sent, err := worker.ProcessOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sent)
	require.Equal(t, 1, publisher.calls())
	require.Equal(t, "msg-1", publisher.last().ID)

	pending, err := repo.PullPending(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestWorker_ProcessOnce_MarkFailedAndDLQAfterRetries(t *testing.T) {
	t.Parallel()

	repo := memory.NewStore().Repositories().Outbox
	enqueue(t, repo, "msg-2", domain.EventPaymentCompleted)
	publisher := &stubPublisher{err: errors.New("broker unavailable")}
	dlq := &stubPublisher{}

	worker := NewWorker(repo, publisher,
		WithDLQPublisher(dlq),
		WithRetryBaseDelay(0),
		WithConfig(Config{MaxAttempts: 3}),
	)

	sent, err := worker.ProcessOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, sent)
	require.Equal(t, 3, publisher.calls())
	require.Equal(t, 1, dlq.calls())

	var dead map[string]any
	require.NoError(t, json.Unmarshal(dlq.last().Payload, &dead))
	require.Equal(t, "msg-2", dead["outbox_id"])
	require.Contains(t, dead["publish_error"], "broker unavailable")
	require.Equal(t, map[string]any{"to": "Paid"}, dead["payload"])

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	repo := memory.NewStore().Repositories().Outbox
	enqueue(t, repo, "msg-3", domain.EventOrderPlaced)
	publisher := &stubPublisher{
		sequenceErrors: []error{errors.New("attempt 1"), errors.New("attempt 2"), nil},
	}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithConfig(Config{MaxAttempts: 3}))

	sent, err := worker.ProcessOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sent)
	require.Equal(t, 3, publisher.calls())
}

func TestWorker_ProcessOnce_RespectsBatchSize(t *testing.T) {
	t.Parallel()

	repo := memory.NewStore().Repositories().Outbox
	for _, id := range []string{"a", "b", "c"} {
		enqueue(t, repo, id, domain.EventOrderPlaced)
	}
	publisher := &stubPublisher{}

	worker := NewWorker(repo, publisher, WithConfig(Config{BatchSize: 2}))

	sent, err := worker.ProcessOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, sent)

	sent, err = worker.ProcessOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sent)
	require.Equal(t, 3, publisher.calls())
}

func TestWorker_ProcessOnce_CancelledContext(t *testing.T) {
	t.Parallel()

	repo := memory.NewStore().Repositories().Outbox
	enqueue(t, repo, "msg-4", domain.EventOrderPlaced)
	publisher := &stubPublisher{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewWorker(repo, publisher).ProcessOnce(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, publisher.calls())
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	require.Zero(t, backoff(0, 3))
	require.Equal(t, 10*time.Millisecond, backoff(10*time.Millisecond, 1))
	require.Equal(t, 40*time.Millisecond, backoff(10*time.Millisecond, 3))
	require.Equal(t, time.Duration(1<<63-1), backoff(time.Hour, 80))
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	repo := memory.NewStore().Repositories().Outbox
	publisher := &stubPublisher{}

	worker := NewWorker(repo, publisher, WithConfig(Config{PollInterval: 5 * time.Millisecond}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	published      []domain.OutboxMessage
}

func (s *stubPublisher) Publish(event domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.published = append(s.published, event)
	if len(s.sequenceErrors) > 0 {
		err := s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
		return err
	}
	return s.err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

func (s *stubPublisher) last() domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published[len(s.published)-1]
}

var _ domain.OutboxPublisher = (*stubPublisher)(nil)
