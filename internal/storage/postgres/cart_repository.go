package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ArYaN9696/QuitQ/internal/domain"
)

type cartRepository struct {
	db sqlx.ExtContext
}

const selectCartLines = `
	SELECT user_id, product_ref, quantity
	FROM cart_items
	WHERE user_id = $1
	ORDER BY added_at ASC, product_ref ASC
`

func (r *cartRepository) Lines(ctx context.Context, userID string) ([]domain.CartLine, error) {
	return r.selectLines(ctx, selectCartLines, userID)
}

// LinesForUpdate блокирует строки корзины. Под READ COMMITTED вторая транзакция ждёт
// коммита первой и не видит удалённых ею строк.
func (r *cartRepository) LinesForUpdate(ctx context.Context, userID string) ([]domain.CartLine, error) {
	return r.selectLines(ctx, selectCartLines+"FOR UPDATE", userID)
}

func (r *cartRepository) selectLines(ctx context.Context, query, userID string) ([]domain.CartLine, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var rows []struct {
		UserID     string `db:"user_id"`
		ProductRef string `db:"product_ref"`
		Quantity   int32  `db:"quantity"`
	}
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("select cart lines: %w", err)
	}

	lines := make([]domain.CartLine, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, domain.CartLine{UserID: row.UserID, ProductRef: row.ProductRef, Quantity: row.Quantity})
	}
	return lines, nil
}

// Put вставляет или обновляет строку; quantity <= 0 удаляет строку.
func (r *cartRepository) Put(ctx context.Context, line domain.CartLine) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if line.Quantity <= 0 {
		if _, err := r.db.ExecContext(ctx, `
			DELETE FROM cart_items WHERE user_id = $1 AND product_ref = $2
		`, line.UserID, line.ProductRef); err != nil {
			return fmt.Errorf("delete cart line: %w", err)
		}
		return nil
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO cart_items (user_id, product_ref, quantity, added_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (user_id, product_ref) DO UPDATE SET quantity = EXCLUDED.quantity
	`, line.UserID, line.ProductRef, line.Quantity, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert cart line: %w", err)
	}
	return nil
}

func (r *cartRepository) Clear(ctx context.Context, userID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear cart rows affected: %w", err)
	}
	return int(removed), nil
}

type catalogRepository struct {
	db sqlx.ExtContext
}

func (r *catalogRepository) Get(ctx context.Context, ref string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var product domain.Product
	row := r.db.QueryRowxContext(ctx, `SELECT ref, name, unit_price FROM products WHERE ref = $1`, ref)
	if err := row.Scan(&product.Ref, &product.Name, &product.UnitPrice); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, ref)
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

func (r *catalogRepository) Upsert(ctx context.Context, product domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO products (ref, name, unit_price, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (ref) DO UPDATE
		SET name = EXCLUDED.name, unit_price = EXCLUDED.unit_price, updated_at = EXCLUDED.updated_at
	`, product.Ref, product.Name, product.UnitPrice, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

var (
	_ domain.CartRepository    = (*cartRepository)(nil)
	_ domain.CatalogRepository = (*catalogRepository)(nil)
)
