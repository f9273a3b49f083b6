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

const orderColumns = `id, user_id, total_amount, shipping_address, payment_method, status_id, version, created_at, updated_at`

type orderRow struct {
	ID              string          `db:"id"`
	UserID          string          `db:"user_id"`
	TotalAmount     decimal.Decimal `db:"total_amount"`
	ShippingAddress string          `db:"shipping_address"`
	PaymentMethod   string          `db:"payment_method"`
	StatusID        int             `db:"status_id"`
	Version         int64           `db:"version"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

func (r orderRow) toDomain() domain.Order {
	return domain.Order{
		ID:              r.ID,
		UserID:          r.UserID,
		TotalAmount:     r.TotalAmount,
		ShippingAddress: r.ShippingAddress,
		PaymentMethod:   r.PaymentMethod,
		Status:          domain.OrderStatus(r.StatusID),
		Version:         r.Version,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

type orderItemRow struct {
	ID          string          `db:"id"`
	OrderID     string          `db:"order_id"`
	ProductRef  string          `db:"product_ref"`
	ProductName string          `db:"product_name"`
	Quantity    int32           `db:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price"`
	CreatedAt   time.Time       `db:"created_at"`
}

func (r orderItemRow) toDomain() domain.OrderItem {
	return domain.OrderItem{
		ID:          r.ID,
		OrderID:     r.OrderID,
		ProductRef:  r.ProductRef,
		ProductName: r.ProductName,
		Quantity:    r.Quantity,
		UnitPrice:   r.UnitPrice,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type orderRepository struct {
	db sqlx.ExtContext
}

// Create вставляет заказ и его позиции. Атомарность обеспечивает Store.Do.
func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		order.ID, order.UserID, order.TotalAmount, order.ShippingAddress, order.PaymentMethod,
		int(order.Status), order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderAlreadyExists
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for pos, item := range order.Items {
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, position, product_ref, product_name, quantity, unit_price, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			item.ID, order.ID, pos, item.ProductRef, item.ProductName, item.Quantity, item.UnitPrice, item.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	return r.get(ctx, id, false)
}

func (r *orderRepository) GetForUpdate(ctx context.Context, id string) (domain.Order, error) {
	return r.get(ctx, id, true)
}

func (r *orderRepository) get(ctx context.Context, id string, forUpdate bool) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var row orderRow
	if err := sqlx.GetContext(ctx, r.db, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	order := row.toDomain()
	items, err := r.loadItems(ctx, []string{order.ID})
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items[order.ID]
	return order, nil
}

func (r *orderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var rows []orderRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC
	`, userID); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(rows))
	if len(rows) == 0 {
		return orders, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		order := row.toDomain()
		order.Items = items[order.ID]
		orders = append(orders, order)
	}
	return orders, nil
}

// Save обновляет только статус: позиции и сумма заказа неизменны после создания.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status_id = $1,
		    version = version + 1,
		    updated_at = $2
		WHERE id = $3
		  AND version = $4
	`,
		int(order.Status),
		order.UpdatedAt,
		order.ID,
		order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.exists(ctx, order.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	}

	return nil
}

// loadItems загружает позиции сразу для нескольких заказов одним запросом.
func (r *orderRepository) loadItems(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	query, args, err := sqlx.In(`
		SELECT id, order_id, product_ref, product_name, quantity, unit_price, created_at
		FROM order_items
		WHERE order_id IN (?)
		ORDER BY order_id, position
	`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("build order items query: %w", err)
	}

	var rows []orderItemRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}

	result := make(map[string][]domain.OrderItem, len(orderIDs))
	for _, row := range rows {
		result[row.OrderID] = append(result[row.OrderID], row.toDomain())
	}
	return result, nil
}

func (r *orderRepository) exists(ctx context.Context, orderID string) (bool, error) {
	var found bool
	if err := sqlx.GetContext(ctx, r.db, &found, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID); err != nil {
		return false, fmt.Errorf("check order exists: %w", err)
	}
	return found, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
