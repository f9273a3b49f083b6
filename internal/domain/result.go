package domain

import "errors"

// ResultStatus: итог бизнес-операции, по которому ветвятся вызывающие.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "Success"
	ResultFailure ResultStatus = "Failure"
)

// FailureKind уточняет причину Failure, чтобы вызывающий мог решить, повторять ли запрос.
type FailureKind string

const (
	FailureNone           FailureKind = ""
	FailureNotFound       FailureKind = "not_found"
	FailureInvalidState   FailureKind = "invalid_state"
	FailureAmountMismatch FailureKind = "amount_mismatch"
	FailureEmptyInput     FailureKind = "empty_input"
	FailureConflict       FailureKind = "conflict"
)

// Result: единый исход бизнес-операции. Message предназначен для человека, его не разбирают.
type Result[T any] struct {
	Status  ResultStatus
	Kind    FailureKind
	Message string
	Value   T
}

// Ok формирует успешный исход.
func Ok[T any](value T, message string) Result[T] {
	return Result[T]{Status: ResultSuccess, Message: message, Value: value}
}

// Fail формирует отказ заданного класса.
func Fail[T any](kind FailureKind, message string) Result[T] {
	return Result[T]{Status: ResultFailure, Kind: kind, Message: message}
}

// Succeeded сообщает, завершилась ли операция успешно.
func (r Result[T]) Succeeded() bool {
	return r.Status == ResultSuccess
}

// failureMessages задаёт пользовательские сообщения для частых отказов.
var failureMessages = map[error]string{
	ErrOrderNotFound:   "Order not found.",
	ErrPaymentNotFound: "Payment not found.",
}

// AsFailure переводит бизнес-ошибку в Result. Для инфраструктурных ошибок ok == false,
// такие ошибки нужно вернуть вызывающему как error.
func AsFailure[T any](err error) (Result[T], bool) {
	kind, ok := KindOf(err)
	if !ok {
		return Result[T]{}, false
	}
	for target, message := range failureMessages {
		if errors.Is(err, target) {
			return Fail[T](kind, message), true
		}
	}
	return Fail[T](kind, err.Error()), true
}
