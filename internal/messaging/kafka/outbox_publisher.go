package kafka

import (
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ArYaN9696/QuitQ/internal/domain"
)

var errPublisherNotInitialized = errors.New("kafka outbox publisher is not initialized")

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) domain.OutboxPublisher {
	if topic == "" {
		topic = TopicCommerceEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
		now:      time.Now,
	}
}

// Publish отправляет событие в topic как Envelope.
func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}
	envelope := NewEnvelope(event, p.now())
	return p.producer.PublishEvent(p.topic, envelope.Key(), envelope, envelope.Headers())
}

// LogPublisher пишет события в лог. Используется, когда брокеры не настроены.
type LogPublisher struct {
	logger *log.Entry
	topic  string
}

// NewLogPublisher создаёт паблишер-заглушку для локального запуска.
func NewLogPublisher(logger *log.Entry, topic string) *LogPublisher {
	if logger == nil {
		logger = log.WithField("component", "outbox-log-publisher")
	}
	return &LogPublisher{logger: logger, topic: topic}
}

// Publish логирует событие и всегда завершается успешно.
func (p *LogPublisher) Publish(event domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"topic":        p.topic,
		"outbox_id":    event.ID,
		"aggregate_id": event.AggregateID,
		"event_type":   event.EventType,
		"payload":      string(event.Payload),
	}).Info("outbox event published")
	return nil
}

var (
	_ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
	_ domain.OutboxPublisher = (*LogPublisher)(nil)
)
