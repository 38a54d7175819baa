package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// tables хранит состояние in-memory хранилища. Позиции, изображения и события
// лежат отдельно от родительских записей, как в реляционной схеме.
type tables struct {
	seq       map[string]int64
	orders    map[int64]domain.Order
	items     map[int64][]domain.OrderItem
	products  map[int64]domain.Product
	images    map[int64][]domain.ProductImage
	variants  map[int64]domain.ProductVariant
	addresses map[int64]domain.UserAddress
	users     map[int64]domain.User
	outbox    map[string]outboxRecord
	timeline  map[int64][]domain.TimelineEvent
}

func newTables() *tables {
	return &tables{
		seq:       make(map[string]int64),
		orders:    make(map[int64]domain.Order),
		items:     make(map[int64][]domain.OrderItem),
		products:  make(map[int64]domain.Product),
		images:    make(map[int64][]domain.ProductImage),
		variants:  make(map[int64]domain.ProductVariant),
		addresses: make(map[int64]domain.UserAddress),
		users:     make(map[int64]domain.User),
		outbox:    make(map[string]outboxRecord),
		timeline:  make(map[int64][]domain.TimelineEvent),
	}
}

func (t *tables) next(name string) int64 {
	t.seq[name]++
	return t.seq[name]
}

// clone делает копию, достаточную для отката: вложенные слайсы копируются,
// указатели DeletedAt разделяются (они только заменяются, но не мутируются).
func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.seq {
		c.seq[k] = v
	}
	for k, v := range t.orders {
		c.orders[k] = v
	}
	for k, v := range t.items {
		c.items[k] = append([]domain.OrderItem(nil), v...)
	}
	for k, v := range t.products {
		c.products[k] = v
	}
	for k, v := range t.images {
		c.images[k] = append([]domain.ProductImage(nil), v...)
	}
	for k, v := range t.variants {
		v.Values = append([]domain.VariantValue(nil), v.Values...)
		c.variants[k] = v
	}
	for k, v := range t.addresses {
		c.addresses[k] = v
	}
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.outbox {
		c.outbox[k] = v
	}
	for k, v := range t.timeline {
		c.timeline[k] = append([]domain.TimelineEvent(nil), v...)
	}
	return c
}

// Store реализует domain.Store в памяти для локальной разработки и тестов.
// Транзакция берёт эксклюзивную блокировку и откатывается к снимку при ошибке.
type Store struct {
	mu   *sync.RWMutex
	data *tables
	inTx bool
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{mu: &sync.RWMutex{}, data: newTables()}
}

func (s *Store) read(fn func(t *tables) error) error {
	if !s.inTx {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	return fn(s.data)
}

func (s *Store) write(fn func(t *tables) error) error {
	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.data)
}

// WithinTx выполняет fn атомарно относительно других операций над хранилищем.
func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.Store) error) (err error) {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	defer func() {
		if p := recover(); p != nil {
			*s.data = *snapshot
			panic(p)
		}
		if err != nil {
			*s.data = *snapshot
		}
	}()

	return fn(&Store{mu: s.mu, data: s.data, inTx: true})
}

func (s *Store) Orders() domain.OrderRepository { return &orderRepository{store: s} }
func (s *Store) Products() domain.ProductRepository { return &productRepository{store: s} }
func (s *Store) Variants() domain.VariantRepository { return &variantRepository{store: s} }
func (s *Store) Addresses() domain.AddressRepository { return &addressRepository{store: s} }
func (s *Store) Users() domain.UserRepository { return &userRepository{store: s} }
func (s *Store) Outbox() domain.OutboxRepository { return &outboxRepository{store: s} }
func (s *Store) Timeline() domain.TimelineRepository { return &timelineRepository{store: s} }

var _ domain.Store = (*Store)(nil)
