package memory

import (
	"context"
	"fmt"

	"github.com/ArYaN9696/QuitQ/internal/domain"
)

type cartRepository struct {
	scope scope
}

func (r *cartRepository) Lines(_ context.Context, userID string) ([]domain.CartLine, error) {
	var lines []domain.CartLine
	err := r.scope.read(func(st *state) error {
		lines = append(make([]domain.CartLine, 0, len(st.carts[userID])), st.carts[userID]...)
		return nil
	})
	return lines, err
}

// LinesForUpdate совпадает с Lines: транзакции Store и так сериализуются одной блокировкой.
func (r *cartRepository) LinesForUpdate(ctx context.Context, userID string) ([]domain.CartLine, error) {
	return r.Lines(ctx, userID)
}

// Put заменяет количество, если товар уже в корзине; quantity <= 0 удаляет строку.
func (r *cartRepository) Put(_ context.Context, line domain.CartLine) error {
	return r.scope.write(func(st *state) error {
		lines := st.carts[line.UserID]
		for i := range lines {
			if lines[i].ProductRef != line.ProductRef {
				continue
			}
			if line.Quantity <= 0 {
				st.carts[line.UserID] = append(lines[:i:i], lines[i+1:]...)
				return nil
			}
			lines[i].Quantity = line.Quantity
			return nil
		}
		if line.Quantity > 0 {
			st.carts[line.UserID] = append(lines, line)
		}
		return nil
	})
}

func (r *cartRepository) Clear(_ context.Context, userID string) (int, error) {
	var removed int
	err := r.scope.write(func(st *state) error {
		removed = len(st.carts[userID])
		delete(st.carts, userID)
		return nil
	})
	return removed, err
}

type catalogRepository struct {
	scope scope
}

func (r *catalogRepository) Get(_ context.Context, ref string) (domain.Product, error) {
	var product domain.Product
	err := r.scope.read(func(st *state) error {
		p, ok := st.products[ref]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrProductNotFound, ref)
		}
		product = p
		return nil
	})
	return product, err
}

func (r *catalogRepository) Upsert(_ context.Context, product domain.Product) error {
	return r.scope.write(func(st *state) error {
		st.products[product.Ref] = product
		return nil
	})
}

var (
	_ domain.CartRepository    = (*cartRepository)(nil)
	_ domain.CatalogRepository = (*catalogRepository)(nil)
)
