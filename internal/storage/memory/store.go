package memory

import (
	"context"
	"sync"

	"github.com/ArYaN9696/QuitQ/internal/domain"
)

// state: всё содержимое in-memory хранилища.
type state struct {
	carts    map[string][]domain.CartLine
	products map[string]domain.Product
	orders   map[string]domain.Order
	payments []domain.Payment
	outbox   []*outboxRecord
	timeline map[string][]domain.TimelineEvent
}

func newState() *state {
	return &state{
		carts:    make(map[string][]domain.CartLine),
		products: make(map[string]domain.Product),
		orders:   make(map[string]domain.Order),
		timeline: make(map[string][]domain.TimelineEvent),
	}
}

// clone копирует контейнеры. Значения внутри не мутируются на месте, поэтому
// достаточно поверхностной копии, кроме записей outbox.
func (s *state) clone() *state {
	dst := &state{
		carts:    make(map[string][]domain.CartLine, len(s.carts)),
		products: make(map[string]domain.Product, len(s.products)),
		orders:   make(map[string]domain.Order, len(s.orders)),
		payments: append([]domain.Payment(nil), s.payments...),
		outbox:   make([]*outboxRecord, 0, len(s.outbox)),
		timeline: make(map[string][]domain.TimelineEvent, len(s.timeline)),
	}
	for k, v := range s.carts {
		dst.carts[k] = append([]domain.CartLine(nil), v...)
	}
	for k, v := range s.products {
		dst.products[k] = v
	}
	for k, v := range s.orders {
		dst.orders[k] = v
	}
	for _, rec := range s.outbox {
		cp := *rec
		dst.outbox = append(dst.outbox, &cp)
	}
	for k, v := range s.timeline {
		dst.timeline[k] = append([]domain.TimelineEvent(nil), v...)
	}
	return dst
}

// Store: in-memory UnitOfWork для локальной разработки и тестов.
// Транзакции сериализуются одной блокировкой записи.
type Store struct {
	mu    sync.RWMutex
	state *state
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{state: newState()}
}

// scope связывает репозиторий либо с рабочей копией транзакции, либо с самим Store.
type scope struct {
	store *Store
	tx    *state
}

func (sc scope) read(fn func(st *state) error) error {
	if sc.tx != nil {
		return fn(sc.tx)
	}
	sc.store.mu.RLock()
	defer sc.store.mu.RUnlock()
	return fn(sc.store.state)
}

func (sc scope) write(fn func(st *state) error) error {
	if sc.tx != nil {
		return fn(sc.tx)
	}
	sc.store.mu.Lock()
	defer sc.store.mu.Unlock()
	return fn(sc.store.state)
}

func (s *Store) repositories(sc scope) domain.Repositories {
	return domain.Repositories{
		Carts:    &cartRepository{scope: sc},
		Catalog:  &catalogRepository{scope: sc},
		Orders:   &orderRepository{scope: sc},
		Payments: &paymentRepository{scope: sc},
		Outbox:   &outboxRepository{scope: sc},
		Timeline: &timelineRepository{scope: sc},
	}
}

// Do выполняет fn на рабочей копии состояния и публикует её только при успехе.
func (s *Store) Do(ctx context.Context, fn func(repos domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(s.repositories(scope{store: s, tx: working})); err != nil {
		return err
	}
	s.state = working
	return nil
}

// Repositories возвращает репозитории вне транзакции.
func (s *Store) Repositories() domain.Repositories {
	return s.repositories(scope{store: s})
}

// Ping нужен для health-проверок.
func (s *Store) Ping(context.Context) error {
	return nil
}

var _ domain.UnitOfWork = (*Store)(nil)
