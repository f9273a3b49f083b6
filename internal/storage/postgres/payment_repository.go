package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/ArYaN9696/QuitQ/internal/domain"
)

type paymentRow struct {
	ID            string          `db:"id"`
	OrderID       string          `db:"order_id"`
	Amount        decimal.Decimal `db:"amount"`
	PaymentMethod string          `db:"payment_method"`
	TransactionID string          `db:"transaction_id"`
	Status        string          `db:"status"`
	PaidAt        time.Time       `db:"paid_at"`
}

func (r paymentRow) toDomain() domain.Payment {
	return domain.Payment{
		ID:            r.ID,
		OrderID:       r.OrderID,
		Amount:        r.Amount,
		PaymentMethod: r.PaymentMethod,
		TransactionID: r.TransactionID,
		Status:        domain.PaymentStatus(r.Status),
		PaidAt:        r.PaidAt.UTC(),
	}
}

type paymentRepository struct {
	db sqlx.ExtContext
}

func (r *paymentRepository) Create(ctx context.Context, payment domain.Payment) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, amount, payment_method, transaction_id, status, paid_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		payment.ID, payment.OrderID, payment.Amount, payment.PaymentMethod,
		payment.TransactionID, string(payment.Status), payment.PaidAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrTransactionIDTaken
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var row paymentRow
	if err := sqlx.GetContext(ctx, r.db, &row, `
		SELECT id, order_id, amount, payment_method, transaction_id, status, paid_at
		FROM payments
		WHERE transaction_id = $1
	`, transactionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("select payment: %w", err)
	}
	return row.toDomain(), nil
}

// ListByOrder возвращает платежи в порядке вставки (по seq).
func (r *paymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var rows []paymentRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, `
		SELECT id, order_id, amount, payment_method, transaction_id, status, paid_at
		FROM payments
		WHERE order_id = $1
		ORDER BY seq ASC
	`, orderID); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	payments := make([]domain.Payment, 0, len(rows))
	for _, row := range rows {
		payments = append(payments, row.toDomain())
	}
	return payments, nil
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
