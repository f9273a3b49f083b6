package memory

import (
	"context"
	"sort"

	"github.com/ArYaN9696/QuitQ/internal/domain"
)

type timelineRepository struct {
	scope scope
}

// Append добавляет событие в хранилище.
func (r *timelineRepository) Append(_ context.Context, event domain.TimelineEvent) error {
	return r.scope.write(func(st *state) error {
		events := append(st.timeline[event.OrderID], event)
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].Occurred.Before(events[j].Occurred)
		})
		st.timeline[event.OrderID] = events
		return nil
	})
}

// List возвращает события заказа в хронологическом порядке.
func (r *timelineRepository) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	var result []domain.TimelineEvent
	err := r.scope.read(func(st *state) error {
		result = append(make([]domain.TimelineEvent, 0, len(st.timeline[orderID])), st.timeline[orderID]...)
		return nil
	})
	return result, err
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
