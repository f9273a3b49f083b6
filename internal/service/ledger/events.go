package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ArYaN9696/QuitQ/internal/domain"
)

// EmitEvent сериализует payload и ставит событие в outbox текущей транзакции.
// Ошибка записи откатывает транзакцию вместе с изменением, породившим событие.
func (l *Ledger) EmitEvent(ctx context.Context, repos domain.Repositories, aggregateType, aggregateID, eventType string, payload map[string]any) error {
	if payload == nil {
		payload = make(map[string]any)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		l.logger.WithError(err).WithFields(log.Fields{
			"aggregate_id": aggregateID,
			"event":        eventType,
		}).Error("marshal event failed")
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}

	msg := domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
		CreatedAt:     l.now(),
	}
	if _, err := repos.Outbox.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	l.metrics.RecordOutboxEvents(1)
	return nil
}

// AppendTimeline дописывает событие в историю заказа.
func (l *Ledger) AppendTimeline(ctx context.Context, repos domain.Repositories, event domain.TimelineEvent) error {
	if event.Occurred.IsZero() {
		event.Occurred = l.now()
	}
	if err := repos.Timeline.Append(ctx, event); err != nil {
		return fmt.Errorf("append timeline %s: %w", event.Type, err)
	}
	return nil
}

func (l *Ledger) recordPlaced(ctx context.Context, repos domain.Repositories, order domain.Order) error {
	payload := map[string]any{
		"order_id":     order.ID,
		"user_id":      order.UserID,
		"total_amount": order.TotalAmount.String(),
		"items_count":  len(order.Items),
		"status":       order.Status.String(),
		"ts":           order.CreatedAt.Format(time.RFC3339Nano),
	}
	if err := l.EmitEvent(ctx, repos, domain.AggregateOrder, order.ID, domain.EventOrderPlaced, payload); err != nil {
		return err
	}
	return l.AppendTimeline(ctx, repos, domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     domain.EventOrderPlaced,
		To:       order.Status,
		Occurred: order.CreatedAt,
	})
}

func (l *Ledger) recordTransition(ctx context.Context, repos domain.Repositories, order domain.Order, from domain.OrderStatus, reason string) error {
	payload := map[string]any{
		"order_id":   order.ID,
		"from":       from.String(),
		"to":         order.Status.String(),
		"updated_at": order.UpdatedAt.Format(time.RFC3339Nano),
	}
	if reason != "" {
		payload["reason"] = reason
	}
	if err := l.EmitEvent(ctx, repos, domain.AggregateOrder, order.ID, domain.EventOrderStatusChanged, payload); err != nil {
		return err
	}

	eventType := domain.EventOrderStatusChanged
	if order.Status == domain.OrderStatusCancelled {
		eventType = domain.EventOrderCancelled
		cancelled := map[string]any{
			"order_id": order.ID,
			"user_id":  order.UserID,
			"reason":   reason,
		}
		if err := l.EmitEvent(ctx, repos, domain.AggregateOrder, order.ID, domain.EventOrderCancelled, cancelled); err != nil {
			return err
		}
	}

	return l.AppendTimeline(ctx, repos, domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     eventType,
		From:     from,
		To:       order.Status,
		Reason:   reason,
		Occurred: order.UpdatedAt,
	})
}
