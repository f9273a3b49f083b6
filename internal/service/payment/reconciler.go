package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/ArYaN9696/QuitQ/internal/domain"
	"github.com/ArYaN9696/QuitQ/internal/metrics"
)

const (
	messagePaymentProcessed = "Payment processed successfully."
	messagePaymentReplayed  = "Payment already processed."
	messagePaymentValid     = "Payment is valid."

	transactionPrefix = "TXN-"
)

// OrderTransitioner применяет переход статуса и пишет события внутри открытой транзакции.
type OrderTransitioner interface {
	ApplyTransition(ctx context.Context, repos domain.Repositories, order *domain.Order, to domain.OrderStatus, reason string) error
	EmitEvent(ctx context.Context, repos domain.Repositories, aggregateType, aggregateID, eventType string, payload map[string]any) error
}

// ProcessPaymentRequest описывает поступивший платёж.
type ProcessPaymentRequest struct {
	OrderID       string
	Amount        decimal.Decimal
	PaymentMethod string
	// TransactionID можно не указывать, тогда он будет сгенерирован.
	TransactionID string
}

// Reconciler сверяет платёж с заказом, записывает его и переводит заказ в Paid.
type Reconciler struct {
	uow     domain.UnitOfWork
	orders  OrderTransitioner
	logger  *log.Entry
	metrics *metrics.CommerceMetrics
	now     func() time.Time
	newID   func() string
}

// Option настраивает Reconciler.
type Option func(*Reconciler)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics включает запись метрик.
func WithMetrics(m *metrics.CommerceMetrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов платежей и транзакций.
func WithIDGenerator(newID func() string) Option {
	return func(r *Reconciler) {
		if newID != nil {
			r.newID = newID
		}
	}
}

// NewReconciler создаёт сверщик платежей.
func NewReconciler(uow domain.UnitOfWork, orders OrderTransitioner, opts ...Option) *Reconciler {
	r := &Reconciler{
		uow:    uow,
		orders: orders,
		logger: log.New().WithField("component", "payment-reconciler"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ProcessPayment принимает платёж только на полную сумму заказа в статусе Placed.
// Повтор с тем же transaction id для того же заказа и суммы возвращает уже записанный платёж.
func (r *Reconciler) ProcessPayment(ctx context.Context, req ProcessPaymentRequest) (domain.Result[domain.Payment], error) {
	const operation = "process_payment"
	start := time.Now()
	defer func() { r.metrics.ObserveDuration(operation, time.Since(start)) }()

	req.OrderID = strings.TrimSpace(req.OrderID)
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	supplied := req.TransactionID != ""
	if !supplied {
		req.TransactionID = transactionPrefix + r.newID()
	}

	payment := domain.Payment{
		ID:            r.newID(),
		OrderID:       req.OrderID,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		TransactionID: req.TransactionID,
		Status:        domain.PaymentStatusCompleted,
	}
	if errs := payment.Validate(); len(errs) > 0 {
		return r.finish(operation, domain.Payment{}, "", errors.Join(errs...))
	}

	var (
		recorded domain.Payment
		replayed bool
	)
	err := r.uow.Do(ctx, func(repos domain.Repositories) error {
		if supplied {
			existing, err := repos.Payments.GetByTransactionID(ctx, req.TransactionID)
			switch {
			case err == nil:
				if !existing.Matches(req.OrderID, req.Amount) {
					return fmt.Errorf("%w: %s", domain.ErrTransactionIDTaken, req.TransactionID)
				}
				recorded, replayed = existing, true
				return nil
			case !errors.Is(err, domain.ErrPaymentNotFound):
				return fmt.Errorf("lookup transaction: %w", err)
			}
		}

		order, err := repos.Orders.GetForUpdate(ctx, req.OrderID)
		if err != nil {
			return err
		}
		// Сумма проверяется раньше статуса: неверная сумма всегда AmountMismatch.
		if !req.Amount.Equal(order.TotalAmount) {
			return fmt.Errorf("%w: payment %s does not match order total %s",
				domain.ErrAmountMismatch, req.Amount.String(), order.TotalAmount.String())
		}
		if order.Status != domain.OrderStatusPlaced {
			return fmt.Errorf("%w: status %s", domain.ErrOrderNotPayable, order.Status)
		}

		payment.PaidAt = r.now()
		if err := repos.Payments.Create(ctx, payment); err != nil {
			return err
		}
		if err := r.orders.ApplyTransition(ctx, repos, &order, domain.OrderStatusPaid, "payment "+payment.TransactionID); err != nil {
			return err
		}
		if err := r.orders.EmitEvent(ctx, repos, domain.AggregatePayment, payment.ID, domain.EventPaymentCompleted, map[string]any{
			"payment_id":     payment.ID,
			"order_id":       payment.OrderID,
			"transaction_id": payment.TransactionID,
			"amount":         payment.Amount.String(),
			"payment_method": payment.PaymentMethod,
			"paid_at":        payment.PaidAt.Format(time.RFC3339Nano),
		}); err != nil {
			return err
		}
		recorded = payment
		return nil
	})

	message := messagePaymentProcessed
	if replayed {
		message = messagePaymentReplayed
	}
	res, err := r.finish(operation, recorded, message, err)
	if err == nil && res.Succeeded() {
		r.metrics.RecordPayment("success")
		r.logger.WithFields(log.Fields{
			"order_id":       recorded.OrderID,
			"transaction_id": recorded.TransactionID,
			"amount":         recorded.Amount.String(),
			"replayed":       replayed,
		}).Info("payment reconciled")
	} else if err == nil {
		r.metrics.RecordPayment(string(res.Kind))
	}
	return res, err
}

// ValidatePayment сообщает, записан ли платёж с таким transaction id.
func (r *Reconciler) ValidatePayment(ctx context.Context, transactionID string) (domain.Result[domain.Payment], error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return r.finish("validate_payment", domain.Payment{}, "", domain.ErrTransactionIDRequired)
	}
	payment, err := r.uow.Repositories().Payments.GetByTransactionID(ctx, transactionID)
	return r.finish("validate_payment", payment, messagePaymentValid, err)
}

// GetPaymentsByOrderID возвращает платежи заказа в порядке записи; пустой результат не ошибка.
func (r *Reconciler) GetPaymentsByOrderID(ctx context.Context, orderID string) ([]domain.Payment, error) {
	payments, err := r.uow.Repositories().Payments.ListByOrder(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	if payments == nil {
		payments = []domain.Payment{}
	}
	return payments, nil
}

func (r *Reconciler) finish(operation string, payment domain.Payment, message string, err error) (domain.Result[domain.Payment], error) {
	if err == nil {
		return domain.Ok(payment, message), nil
	}
	if res, ok := domain.AsFailure[domain.Payment](err); ok {
		r.metrics.RecordFailure(operation, res.Kind)
		r.logger.WithFields(log.Fields{
			"operation": operation,
			"kind":      res.Kind,
		}).WithError(err).Debug("payment rejected")
		return res, nil
	}
	r.logger.WithError(err).WithField("operation", operation).Error("payment operation failed")
	return domain.Result[domain.Payment]{}, fmt.Errorf("%s: %w", operation, err)
}
