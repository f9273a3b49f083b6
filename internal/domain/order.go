package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа. Значения совпадают со status_id в хранилище.
type OrderStatus int

const (
	// OrderStatusPlaced: заказ создан из корзины и ожидает оплаты.
	OrderStatusPlaced OrderStatus = 1
	// OrderStatusPaid: оплата сверена с суммой заказа.
	OrderStatusPaid OrderStatus = 2
	// OrderStatusShipped: заказ передан в доставку.
	OrderStatusShipped OrderStatus = 3
	// OrderStatusRefunded: деньги по оплаченному заказу возвращены.
	OrderStatusRefunded OrderStatus = 4
	// OrderStatusCancelled: заказ отменён до оплаты.
	OrderStatusCancelled OrderStatus = 5
)

var statusNames = map[OrderStatus]string{
	OrderStatusPlaced:    "Placed",
	OrderStatusPaid:      "Paid",
	OrderStatusShipped:   "Shipped",
	OrderStatusRefunded:  "Refunded",
	OrderStatusCancelled: "Cancelled",
}

// orderTransitions: единственная таблица допустимых переходов.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPlaced: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:   {OrderStatusShipped, OrderStatusRefunded},
}

func (s OrderStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("OrderStatus(%d)", int(s))
}

// Valid сообщает, относится ли статус к известным значениям.
func (s OrderStatus) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// IsTerminal возвращает true для статусов, из которых нет переходов.
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// ParseOrderStatus разбирает имя статуса без учёта регистра.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	for status, name := range statusNames {
		if strings.EqualFold(name, strings.TrimSpace(raw)) {
			return status, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOrderStatus, raw)
}

// CanTransition проверяет переход по таблице orderTransitions.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OrderItem представляет одну позицию заказа со снимком цены на момент оформления.
type OrderItem struct {
	ID      string
	OrderID string
	// ProductRef: ссылка на товар в каталоге.
	ProductRef  string
	ProductName string
	Quantity    int32
	// UnitPrice фиксируется при создании заказа и больше не пересчитывается.
	UnitPrice decimal.Decimal
	CreatedAt time.Time
}

// LineTotal возвращает стоимость позиции: цена * количество.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt32(i.Quantity))
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID              string
	UserID          string
	Items           []OrderItem
	TotalAmount     decimal.Decimal
	ShippingAddress string
	PaymentMethod   string
	Status          OrderStatus
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Transition переводит заказ в статус to, если таблица переходов это разрешает.
// Кроме статуса, версии и UpdatedAt другие поля не меняются.
func (o *Order) Transition(to OrderStatus, at time.Time) error {
	if !CanTransition(o.Status, to) {
		return &TransitionError{From: o.Status, To: to}
	}
	o.Status = to
	o.UpdatedAt = at
	return nil
}

// SumItems считает сумму позиций заказа.
func SumItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if o.ShippingAddress == "" {
		errs = append(errs, ErrShippingAddressRequired)
	}
	if o.PaymentMethod == "" {
		errs = append(errs, ErrPaymentMethodRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.TotalAmount.IsNegative() {
		errs = append(errs, ErrAmountNegative)
	}

	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPrice.IsNegative() {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}
	if !SumItems(o.Items).Equal(o.TotalAmount) {
		errs = append(errs, ErrOrderTotalMismatch)
	}

	return errs
}
