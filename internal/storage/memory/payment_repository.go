package memory

import (
	"context"

	"github.com/ArYaN9696/QuitQ/internal/domain"
)

type paymentRepository struct {
	scope scope
}

// Create добавляет платёж, transaction id должен быть уникальным.
func (r *paymentRepository) Create(_ context.Context, payment domain.Payment) error {
	return r.scope.write(func(st *state) error {
		for _, existing := range st.payments {
			if existing.TransactionID == payment.TransactionID {
				return domain.ErrTransactionIDTaken
			}
		}
		st.payments = append(st.payments, payment)
		return nil
	})
}

func (r *paymentRepository) GetByTransactionID(_ context.Context, transactionID string) (domain.Payment, error) {
	var found domain.Payment
	err := r.scope.read(func(st *state) error {
		for _, payment := range st.payments {
			if payment.TransactionID == transactionID {
				found = payment
				return nil
			}
		}
		return domain.ErrPaymentNotFound
	})
	return found, err
}

// ListByOrder возвращает платежи в порядке добавления.
func (r *paymentRepository) ListByOrder(_ context.Context, orderID string) ([]domain.Payment, error) {
	result := make([]domain.Payment, 0)
	err := r.scope.read(func(st *state) error {
		for _, payment := range st.payments {
			if payment.OrderID == orderID {
				result = append(result, payment)
			}
		}
		return nil
	})
	return result, err
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
