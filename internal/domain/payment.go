package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus описывает состояние платежа в системе.
type PaymentStatus string

const (
	// PaymentStatusCompleted: платёж сверен с заказом и записан.
	PaymentStatusCompleted PaymentStatus = "Completed"
	// PaymentStatusFailed: провайдер отклонил платёж.
	PaymentStatusFailed PaymentStatus = "Failed"
	// PaymentStatusPending: платёж инициирован, но не подтверждён.
	PaymentStatusPending PaymentStatus = "Pending"
)

// Payment описывает платёж, связанный с заказом. После записи не изменяется.
type Payment struct {
	ID            string
	OrderID       string
	Amount        decimal.Decimal
	PaymentMethod string
	// TransactionID глобально уникален и служит ключом валидации.
	TransactionID string
	Status        PaymentStatus
	PaidAt        time.Time
}

// Validate проверяет корректность полей платежа и возвращает ошибки, если они есть.
func (p *Payment) Validate() []error {
	var errs []error

	if p.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if p.PaymentMethod == "" {
		errs = append(errs, ErrPaymentMethodRequired)
	}
	if p.TransactionID == "" {
		errs = append(errs, ErrTransactionIDRequired)
	}
	if p.Amount.IsNegative() {
		errs = append(errs, ErrPaymentAmountNegative)
	}
	if !HasMoneyScale(p.Amount) {
		errs = append(errs, ErrAmountPrecision)
	}

	return errs
}

// Matches сообщает, описывает ли платёж ту же оплату того же заказа.
func (p *Payment) Matches(orderID string, amount decimal.Decimal) bool {
	return p.OrderID == orderID && p.Amount.Equal(amount)
}
