package domain

import "context"

// CartRepository: хранилище корзин. Чтение и очистка выполняются в транзакции создания заказа.
type CartRepository interface {
	// Lines возвращает строки корзины пользователя в порядке добавления.
	Lines(ctx context.Context, userID string) ([]CartLine, error)
	// LinesForUpdate читает строки и блокирует их до конца транзакции.
	// Параллельное оформление той же корзины ждёт и видит её уже пустой.
	LinesForUpdate(ctx context.Context, userID string) ([]CartLine, error)
	// Put добавляет строку или заменяет количество для уже добавленного товара.
	Put(ctx context.Context, line CartLine) error
	// Clear удаляет все строки корзины пользователя и возвращает число удалённых строк.
	Clear(ctx context.Context, userID string) (int, error)
}

// CatalogRepository разрешает ссылку на товар в текущую цену и название.
type CatalogRepository interface {
	// Get возвращает товар или ErrProductNotFound.
	Get(ctx context.Context, ref string) (Product, error)
	Upsert(ctx context.Context, product Product) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ вместе с позициями. Возвращает ErrOrderAlreadyExists при занятом ID.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// GetForUpdate читает заказ и блокирует его до конца транзакции.
	GetForUpdate(ctx context.Context, id string) (Order, error)
	// ListByUser возвращает заказы пользователя по возрастанию времени создания.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// Save применяет обновление статуса с учётом optimistic locking:
	// order.Version должен совпадать с сохранённой версией.
	Save(ctx context.Context, order Order) error
}

// PaymentRepository хранит записанные платежи.
type PaymentRepository interface {
	// Create сохраняет платёж. Возвращает ErrTransactionIDTaken, если transaction id занят.
	Create(ctx context.Context, payment Payment) error
	// GetByTransactionID возвращает платёж или ErrPaymentNotFound.
	GetByTransactionID(ctx context.Context, transactionID string) (Payment, error)
	// ListByOrder возвращает платежи заказа в порядке записи.
	ListByOrder(ctx context.Context, orderID string) ([]Payment, error)
}

// Repositories связывает репозитории одной транзакции.
type Repositories struct {
	Carts    CartRepository
	Catalog  CatalogRepository
	Orders   OrderRepository
	Payments PaymentRepository
	Outbox   OutboxRepository
	Timeline TimelineRepository
}

// UnitOfWork выполняет группу операций атомарно.
type UnitOfWork interface {
	// Do выполняет fn в одной транзакции. Ошибка fn откатывает все записи.
	Do(ctx context.Context, fn func(repos Repositories) error) error
	// Repositories возвращает репозитории вне транзакции для чтения.
	Repositories() Repositories
}
