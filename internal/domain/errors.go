package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserRequired = errors.New("user id is required")
	// Ошибка отсутствующего адреса доставки.
	ErrShippingAddressRequired = errors.New("shipping address is required")
	// Ошибка отсутствующего способа оплаты.
	ErrPaymentMethodRequired = errors.New("payment method is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("total amount must be non-negative")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrOrderTotalMismatch = errors.New("order total does not match items sum")
	// Ошибка отрицательной суммы платежа.
	ErrPaymentAmountNegative = errors.New("payment amount must be non-negative")
	// ErrAmountPrecision: у денежной суммы больше знаков после запятой, чем хранит база.
	ErrAmountPrecision = errors.New("amount must have at most 2 decimal places")
	// Ошибка отсутствующего названия товара.
	ErrProductNameRequired = errors.New("product name is required")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order id is required")
	// Ошибка отсутствующего идентификатора транзакции.
	ErrTransactionIDRequired = errors.New("transaction id is required")
	// ErrUnknownOrderStatus возвращается при разборе неизвестного имени статуса.
	ErrUnknownOrderStatus = errors.New("unknown order status")

	// ErrCartEmpty: в корзине пользователя нет строк.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrCartChanged: корзина изменилась между чтением и очисткой при оформлении заказа.
	ErrCartChanged = errors.New("cart changed during checkout")
	// ErrProductNotFound: ссылка на товар не найдена в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrPaymentNotFound возвращается, если платёж с таким transaction id не найден.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrAmountMismatch: сумма платежа не совпадает с суммой заказа.
	ErrAmountMismatch = errors.New("amount mismatch")
	// ErrOrderNotPayable: заказ не в статусе Placed и не принимает оплату.
	ErrOrderNotPayable = errors.New("order is not awaiting payment")
	// ErrInvalidTransition: переход отсутствует в таблице статусов.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrTransactionIDTaken: transaction id уже использован другим платежом.
	ErrTransactionIDTaken = errors.New("transaction id already used")
	// ErrOrderAlreadyExists: заказ с таким ID уже сохранён.
	ErrOrderAlreadyExists = errors.New("order already exists")

	// ErrIdempotencyKeyRequired: пустой ключ идемпотентности.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired: пустой хеш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists: ключ уже занят запросом с тем же телом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch: ключ повторно использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound: запись по ключу не найдена или истекла.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")

	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// TransitionError описывает отклонённый переход между статусами.
type TransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// Unwrap позволяет сравнивать ошибку с ErrInvalidTransition через errors.Is.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsIdempotencyConflict проверяет, что ключ уже занят или использован с другим запросом.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

// KindOf сопоставляет бизнес-ошибку с классом отказа.
// Второе значение false означает инфраструктурную ошибку.
func KindOf(err error) (FailureKind, bool) {
	switch {
	case err == nil:
		return FailureNone, false
	case errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrPaymentNotFound),
		errors.Is(err, ErrProductNotFound):
		return FailureNotFound, true
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrOrderNotPayable):
		return FailureInvalidState, true
	case errors.Is(err, ErrAmountMismatch):
		return FailureAmountMismatch, true
	case errors.Is(err, ErrCartEmpty),
		errors.Is(err, ErrUserRequired),
		errors.Is(err, ErrShippingAddressRequired),
		errors.Is(err, ErrPaymentMethodRequired),
		errors.Is(err, ErrOrderIDRequired),
		errors.Is(err, ErrTransactionIDRequired),
		errors.Is(err, ErrPaymentAmountNegative),
		errors.Is(err, ErrAmountPrecision),
		errors.Is(err, ErrProductNameRequired),
		errors.Is(err, ErrItemPriceInvalid),
		errors.Is(err, ErrItemQtyInvalid):
		return FailureEmptyInput, true
	case errors.Is(err, ErrOrderVersionConflict),
		errors.Is(err, ErrTransactionIDTaken),
		errors.Is(err, ErrCartChanged),
		errors.Is(err, ErrOrderAlreadyExists):
		return FailureConflict, true
	default:
		return FailureNone, false
	}
}
