package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ArYaN9696/QuitQ/internal/domain"
)

type timelineRepository struct {
	db sqlx.ExtContext
}

func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO timeline_events (order_id, type, from_status, to_status, reason, occurred)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, event.OrderID, event.Type, int(event.From), int(event.To), event.Reason, event.Occurred); err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}

	return nil
}

func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var rows []struct {
		OrderID  string    `db:"order_id"`
		Type     string    `db:"type"`
		From     int       `db:"from_status"`
		To       int       `db:"to_status"`
		Reason   string    `db:"reason"`
		Occurred time.Time `db:"occurred"`
	}
	if err := sqlx.SelectContext(ctx, r.db, &rows, `
		SELECT order_id, type, from_status, to_status, reason, occurred
		FROM timeline_events
		WHERE order_id = $1
		ORDER BY occurred ASC, id ASC
	`, orderID); err != nil {
		return nil, fmt.Errorf("list timeline events: %w", err)
	}

	events := make([]domain.TimelineEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, domain.TimelineEvent{
			OrderID:  row.OrderID,
			Type:     row.Type,
			From:     domain.OrderStatus(row.From),
			To:       domain.OrderStatus(row.To),
			Reason:   row.Reason,
			Occurred: row.Occurred.UTC(),
		})
	}
	return events, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
