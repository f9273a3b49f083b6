package memory

import (
	"context"
	"sort"

	"github.com/ArYaN9696/QuitQ/internal/domain"
)

type orderRepository struct {
	scope scope
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepository) Create(_ context.Context, order domain.Order) error {
	return r.scope.write(func(st *state) error {
		if _, exists := st.orders[order.ID]; exists {
			return domain.ErrOrderAlreadyExists
		}
		st.orders[order.ID] = cloneOrder(order)
		return nil
	})
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	var order domain.Order
	err := r.scope.read(func(st *state) error {
		stored, ok := st.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		order = cloneOrder(stored)
		return nil
	})
	return order, err
}

// GetForUpdate совпадает с Get: внутри Do весь Store уже заблокирован.
func (r *orderRepository) GetForUpdate(ctx context.Context, id string) (domain.Order, error) {
	return r.Get(ctx, id)
}

// ListByUser возвращает заказы пользователя от старых к новым.
func (r *orderRepository) ListByUser(_ context.Context, userID string) ([]domain.Order, error) {
	result := make([]domain.Order, 0)
	err := r.scope.read(func(st *state) error {
		for _, order := range st.orders {
			if order.UserID == userID {
				result = append(result, cloneOrder(order))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Save перезаписывает статус заказа, проверяя версию (optimistic locking).
func (r *orderRepository) Save(_ context.Context, order domain.Order) error {
	return r.scope.write(func(st *state) error {
		current, ok := st.orders[order.ID]
		if !ok {
			return domain.ErrOrderNotFound
		}
		if current.Version != order.Version {
			return domain.ErrOrderVersionConflict
		}
		// Меняются только статус и служебные поля, позиции и сумма остаются прежними.
		current.Status = order.Status
		current.UpdatedAt = order.UpdatedAt
		current.Version++
		st.orders[order.ID] = current
		return nil
	})
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = append([]domain.OrderItem(nil), src.Items...)
	return dst
}

var _ domain.OrderRepository = (*orderRepository)(nil)
