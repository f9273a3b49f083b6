package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ArYaN9696/QuitQ/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	updatedAt  time.Time
}

type outboxRepository struct {
	scope scope
}

// Enqueue сохраняет событие со статусом `pending` и возвращает его с идентификатором.
func (r *outboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}

	err := r.scope.write(func(st *state) error {
		st.outbox = append(st.outbox, &outboxRecord{
			msg:       msg,
			status:    outboxStatusPending,
			updatedAt: now,
		})
		return nil
	})
	return msg, err
}

// PullPending возвращает до limit сообщений со статусом `pending` в порядке записи.
func (r *outboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	result := make([]domain.OutboxMessage, 0, limit)
	err := r.scope.read(func(st *state) error {
		for _, rec := range st.outbox {
			if rec.status != outboxStatusPending {
				continue
			}
			result = append(result, rec.msg)
			if len(result) >= limit {
				break
			}
		}
		return nil
	})
	return result, err
}

// Stats возвращает размер backlog и время самого старого pending-сообщения.
func (r *outboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	var stats domain.OutboxStats
	err := r.scope.read(func(st *state) error {
		for _, rec := range st.outbox {
			if rec.status != outboxStatusPending {
				continue
			}
			stats.PendingCount++
			if stats.OldestPendingAt.IsZero() || rec.msg.CreatedAt.Before(stats.OldestPendingAt) {
				stats.OldestPendingAt = rec.msg.CreatedAt
			}
		}
		return nil
	})
	return stats, err
}

// MarkSent обновляет статус события после успешной публикации.
func (r *outboxRepository) MarkSent(_ context.Context, id string) error {
	return r.mark(id, outboxStatusSent)
}

// MarkFailed фиксирует окончательную ошибку публикации.
func (r *outboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.mark(id, outboxStatusFailed)
}

func (r *outboxRepository) mark(id, status string) error {
	return r.scope.write(func(st *state) error {
		for _, rec := range st.outbox {
			if rec.msg.ID != id {
				continue
			}
			rec.status = status
			rec.attemptCnt++
			rec.updatedAt = time.Now().UTC()
			return nil
		}
		return fmt.Errorf("%w: outbox message %s not found", domain.ErrOutboxPublish, id)
	})
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
