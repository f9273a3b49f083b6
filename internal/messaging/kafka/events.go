package kafka

import (
	"encoding/json"
	"time"

	"github.com/ArYaN9696/QuitQ/internal/domain"
)

// Topics для Kafka.
const (
	TopicCommerceEvents  = "quitq.commerce.events"
	TopicDeadLetterQueue = "quitq.commerce.dlq"
)

// Kafka headers, по которым потребители фильтруют события без разбора тела.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
)

// Envelope: формат сообщения в topic: метаданные outbox и исходный payload.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает outbox-сообщение. Пустой payload заменяется на {}.
func NewEnvelope(msg domain.OutboxMessage, publishedAt time.Time) Envelope {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   publishedAt.UTC(),
	}
}

// Key возвращает ключ партиционирования: события одного агрегата попадают в одну партицию.
func (e Envelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}

// Headers возвращает заголовки сообщения.
func (e Envelope) Headers() map[string]string {
	return map[string]string{
		HeaderEventType:     e.EventType,
		HeaderAggregateType: e.AggregateType,
		HeaderOutboxID:      e.ID,
	}
}
