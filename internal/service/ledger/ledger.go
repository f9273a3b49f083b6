package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ArYaN9696/QuitQ/internal/domain"
	"github.com/ArYaN9696/QuitQ/internal/metrics"
)

const (
	messageOrderPlaced    = "Order placed."
	messageOrderUpdated   = "Order status updated."
	messageOrderCancelled = "Order cancelled successfully."
	messageOrderFound     = "Order found."
)

// CreateOrderRequest содержит данные, которых нет в корзине.
type CreateOrderRequest struct {
	UserID          string
	ShippingAddress string
	PaymentMethod   string
}

// Ledger создаёт заказы из корзины и ведёт их по машине состояний.
type Ledger struct {
	uow     domain.UnitOfWork
	logger  *log.Entry
	metrics *metrics.CommerceMetrics
	now     func() time.Time
	newID   func() string
}

// Option настраивает Ledger.
type Option func(*Ledger)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics включает запись метрик. По умолчанию метрики не пишутся.
func WithMetrics(m *metrics.CommerceMetrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов заказов и позиций.
func WithIDGenerator(newID func() string) Option {
	return func(l *Ledger) {
		if newID != nil {
			l.newID = newID
		}
	}
}

// NewLedger создаёт сервис поверх единицы работы.
func NewLedger(uow domain.UnitOfWork, opts ...Option) *Ledger {
	l := &Ledger{
		uow:    uow,
		logger: log.New().WithField("component", "order-ledger"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CreateOrder превращает корзину пользователя в заказ. Цены фиксируются на момент создания,
// корзина очищается в той же транзакции.
func (l *Ledger) CreateOrder(ctx context.Context, req CreateOrderRequest) (domain.Result[domain.Order], error) {
	const operation = "create_order"
	start := time.Now()
	defer func() { l.metrics.ObserveDuration(operation, time.Since(start)) }()

	req.UserID = strings.TrimSpace(req.UserID)
	req.ShippingAddress = strings.TrimSpace(req.ShippingAddress)
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)

	if err := validateCreateRequest(req); err != nil {
		return l.finish(operation, domain.Order{}, "", err)
	}

	var created domain.Order
	err := l.uow.Do(ctx, func(repos domain.Repositories) error {
		lines, err := repos.Carts.LinesForUpdate(ctx, req.UserID)
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}
		if len(lines) == 0 {
			return domain.ErrCartEmpty
		}

		now := l.now()
		order := domain.Order{
			ID:              l.newID(),
			UserID:          req.UserID,
			ShippingAddress: req.ShippingAddress,
			PaymentMethod:   req.PaymentMethod,
			Status:          domain.OrderStatusPlaced,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		order.Items = make([]domain.OrderItem, 0, len(lines))
		for _, line := range lines {
			if line.Quantity <= 0 {
				return fmt.Errorf("%w: %s", domain.ErrItemQtyInvalid, line.ProductRef)
			}
			product, err := repos.Catalog.Get(ctx, line.ProductRef)
			if err != nil {
				return err
			}
			order.Items = append(order.Items, domain.OrderItem{
				ID:          l.newID(),
				OrderID:     order.ID,
				ProductRef:  product.Ref,
				ProductName: product.Name,
				Quantity:    line.Quantity,
				UnitPrice:   product.UnitPrice,
				CreatedAt:   now,
			})
		}
		order.TotalAmount = domain.SumItems(order.Items)

		if errs := order.ValidateInvariants(); len(errs) > 0 {
			return errors.Join(errs...)
		}
		if err := repos.Orders.Create(ctx, order); err != nil {
			return err
		}
		removed, err := repos.Carts.Clear(ctx, order.UserID)
		if err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		if removed != len(lines) {
			return fmt.Errorf("%w: read %d lines, removed %d", domain.ErrCartChanged, len(lines), removed)
		}
		if err := l.recordPlaced(ctx, repos, order); err != nil {
			return err
		}
		created = order
		return nil
	})

	res, err := l.finish(operation, created, messageOrderPlaced, err)
	if err == nil && res.Succeeded() {
		l.metrics.RecordOrderCreated()
		l.logger.WithFields(log.Fields{
			"order_id": created.ID,
			"user_id":  created.UserID,
			"total":    created.TotalAmount.String(),
			"items":    len(created.Items),
		}).Info("order placed")
	}
	return res, err
}

// GetUserOrders возвращает заказы пользователя по возрастанию времени создания.
// У пользователя без заказов результат пустой.
func (l *Ledger) GetUserOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	orders, err := l.uow.Repositories().Orders.ListByUser(ctx, strings.TrimSpace(userID))
	if err != nil {
		return nil, fmt.Errorf("list user orders: %w", err)
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, nil
}

// GetOrder возвращает заказ вместе с позициями.
func (l *Ledger) GetOrder(ctx context.Context, orderID string) (domain.Result[domain.Order], error) {
	order, err := l.uow.Repositories().Orders.Get(ctx, strings.TrimSpace(orderID))
	return l.finish("get_order", order, messageOrderFound, err)
}

// GetOrderHistory возвращает timeline заказа в порядке записи.
func (l *Ledger) GetOrderHistory(ctx context.Context, orderID string) (domain.Result[[]domain.TimelineEvent], error) {
	orderID = strings.TrimSpace(orderID)
	repos := l.uow.Repositories()
	if _, err := repos.Orders.Get(ctx, orderID); err != nil {
		return finish[[]domain.TimelineEvent](l, "get_order_history", nil, "", err)
	}
	events, err := repos.Timeline.List(ctx, orderID)
	if events == nil && err == nil {
		events = []domain.TimelineEvent{}
	}
	return finish(l, "get_order_history", events, "Order history loaded.", err)
}

// Transition переводит заказ в целевой статус, если переход разрешён таблицей.
func (l *Ledger) Transition(ctx context.Context, orderID string, to domain.OrderStatus, reason string) (domain.Result[domain.Order], error) {
	const operation = "transition"
	start := time.Now()
	defer func() { l.metrics.ObserveDuration(operation, time.Since(start)) }()

	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return l.finish(operation, domain.Order{}, "", domain.ErrOrderIDRequired)
	}

	var (
		updated domain.Order
		from    domain.OrderStatus
	)
	err := l.uow.Do(ctx, func(repos domain.Repositories) error {
		order, err := repos.Orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		from = order.Status
		if err := l.ApplyTransition(ctx, repos, &order, to, reason); err != nil {
			return err
		}
		updated = order
		return nil
	})

	message := messageOrderUpdated
	if to == domain.OrderStatusCancelled {
		message = messageOrderCancelled
	}
	res, err := l.finish(operation, updated, message, err)
	if err == nil && res.Succeeded() {
		l.logger.WithFields(log.Fields{
			"order_id": updated.ID,
			"from":     from.String(),
			"to":       to.String(),
		}).Info("order status changed")
	}
	return res, err
}

// CancelOrder отменяет ещё не оплаченный заказ.
func (l *Ledger) CancelOrder(ctx context.Context, orderID, reason string) (domain.Result[domain.Order], error) {
	return l.Transition(ctx, orderID, domain.OrderStatusCancelled, reason)
}

// ShipOrder отмечает оплаченный заказ отправленным.
func (l *Ledger) ShipOrder(ctx context.Context, orderID string) (domain.Result[domain.Order], error) {
	return l.Transition(ctx, orderID, domain.OrderStatusShipped, "")
}

// RefundOrder возвращает средства за оплаченный, но не отправленный заказ.
func (l *Ledger) RefundOrder(ctx context.Context, orderID, reason string) (domain.Result[domain.Order], error) {
	return l.Transition(ctx, orderID, domain.OrderStatusRefunded, reason)
}

// ApplyTransition выполняет переход внутри уже открытой транзакции: проверяет таблицу переходов,
// сохраняет заказ с проверкой версии и пишет события в outbox и timeline.
// order должен быть прочитан в той же транзакции через GetForUpdate.
func (l *Ledger) ApplyTransition(ctx context.Context, repos domain.Repositories, order *domain.Order, to domain.OrderStatus, reason string) error {
	from := order.Status
	at := l.now()
	if err := order.Transition(to, at); err != nil {
		return err
	}
	if err := repos.Orders.Save(ctx, *order); err != nil {
		order.Status = from
		return err
	}
	order.Version++

	if err := l.recordTransition(ctx, repos, *order, from, reason); err != nil {
		return err
	}
	l.metrics.RecordTransition(from, to)
	return nil
}

func validateCreateRequest(req CreateOrderRequest) error {
	var errs []error
	if req.UserID == "" {
		errs = append(errs, domain.ErrUserRequired)
	}
	if req.ShippingAddress == "" {
		errs = append(errs, domain.ErrShippingAddressRequired)
	}
	if req.PaymentMethod == "" {
		errs = append(errs, domain.ErrPaymentMethodRequired)
	}
	return errors.Join(errs...)
}

func (l *Ledger) finish(operation string, order domain.Order, message string, err error) (domain.Result[domain.Order], error) {
	return finish(l, operation, order, message, err)
}

// finish сводит ошибку операции к Result: бизнес-отказы становятся Failure,
// инфраструктурные ошибки возвращаются вызывающему.
func finish[T any](l *Ledger, operation string, value T, message string, err error) (domain.Result[T], error) {
	if err == nil {
		return domain.Ok(value, message), nil
	}
	if res, ok := domain.AsFailure[T](err); ok {
		l.metrics.RecordFailure(operation, res.Kind)
		l.logger.WithFields(log.Fields{
			"operation": operation,
			"kind":      res.Kind,
		}).WithError(err).Debug("operation rejected")
		return res, nil
	}
	l.logger.WithError(err).WithField("operation", operation).Error("operation failed")
	return domain.Result[T]{}, fmt.Errorf("%s: %w", operation, err)
}
