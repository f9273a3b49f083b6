package kafka

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/ArYaN9696/QuitQ/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var envelope Envelope
		if err := json.Unmarshal(val, &envelope); err != nil {
			return err
		}
		if envelope.ID != "outbox-1" || envelope.EventType != domain.EventPaymentCompleted {
			return fmt.Errorf("unexpected envelope %+v", envelope)
		}
		return nil
	})

	publisher := NewOutboxPublisher(newProducer(mockProducer), "")

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: domain.AggregatePayment,
		AggregateID:   "payment-1",
		EventType:     domain.EventPaymentCompleted,
		Payload:       []byte(`{"amount":"400"}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(newProducer(mockProducer), TopicCommerceEvents)

	err := publisher.Publish(domain.OutboxMessage{
		ID:          "outbox-2",
		AggregateID: "order-234",
		EventType:   domain.EventOrderStatusChanged,
		Payload:     []byte(`{"to":"Paid"}`),
	})
	if err == nil {
		t.Fatal("expected publish error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicCommerceEvents)
	if err := publisher.Publish(domain.OutboxMessage{ID: "outbox-3"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}

func TestLogPublisher_AlwaysSucceeds(t *testing.T) {
	t.Parallel()

	logger := log.New()
	logger.SetLevel(log.WarnLevel)

	publisher := NewLogPublisher(logger.WithField("component", "test"), TopicCommerceEvents)
	if err := publisher.Publish(domain.OutboxMessage{ID: "outbox-4", EventType: domain.EventOrderPlaced}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
