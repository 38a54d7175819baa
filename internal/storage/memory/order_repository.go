package memory

import (
	"context"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// orderRepository: in-memory реализация OrderRepository поверх общего Store.
type orderRepository struct {
	store *Store
}

// Create сохраняет новый заказ и его позиции.
func (r *orderRepository) Create(_ context.Context, order *domain.Order) error {
	return r.store.write(func(t *tables) error {
		now := time.Now().UTC()
		order.ID = t.next("orders")
		order.Version = 0
		if order.CreatedAt.IsZero() {
			order.CreatedAt = now
		}
		order.UpdatedAt = now

		items := make([]domain.OrderItem, 0, len(order.Items))
		for i := range order.Items {
			item := order.Items[i]
			item.ID = t.next("order_items")
			item.OrderID = order.ID
			if item.CreatedAt.IsZero() {
				item.CreatedAt = now
			}
			item.Variant = nil
			order.Items[i].ID = item.ID
			order.Items[i].OrderID = order.ID
			items = append(items, item)
		}

		stored := *order
		stored.Items = nil
		t.orders[order.ID] = stored
		t.items[order.ID] = items
		return nil
	})
}

// Get возвращает заказ или ErrOrderNotFound, если его нет (или он удалён, а withDeleted=false).
func (r *orderRepository) Get(_ context.Context, id int64, withDeleted bool) (domain.Order, error) {
	var order domain.Order
	err := r.store.read(func(t *tables) error {
		stored, ok := t.orders[id]
		if !ok || (stored.DeletedAt != nil && !withDeleted) {
			return domain.ErrOrderNotFound
		}
		order = withItems(t, stored)
		return nil
	})
	return order, err
}

// FindOpenCart возвращает самую свежую корзину пользователя.
func (r *orderRepository) FindOpenCart(_ context.Context, userID int64) (domain.Order, error) {
	var cart domain.Order
	err := r.store.read(func(t *tables) error {
		found := false
		for _, order := range t.orders {
			if order.UserID != userID || !order.IsCart() || order.DeletedAt != nil {
				continue
			}
			if !found || newer(order, cart) {
				cart, found = order, true
			}
		}
		if !found {
			return domain.ErrOrderNotFound
		}
		cart = withItems(t, cart)
		return nil
	})
	return cart, err
}

// List возвращает заказы по фильтру с сортировкой и пагинацией.
func (r *orderRepository) List(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	result := make([]domain.Order, 0)
	err := r.store.read(func(t *tables) error {
		for _, order := range t.orders {
			if matches(order, filter) {
				result = append(result, withItems(t, order))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		if filter.SortDesc {
			return lessBy(filter.SortBy, result[j], result[i])
		}
		return lessBy(filter.SortBy, result[i], result[j])
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []domain.Order{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *orderRepository) Count(_ context.Context, filter domain.OrderFilter) (int, error) {
	count := 0
	err := r.store.read(func(t *tables) error {
		for _, order := range t.orders {
			if matches(order, filter) {
				count++
			}
		}
		return nil
	})
	return count, err
}

func matches(order domain.Order, filter domain.OrderFilter) bool {
	if filter.UserID != 0 && order.UserID != filter.UserID {
		return false
	}
	if order.IsCart() != filter.Carts {
		return false
	}
	return order.DeletedAt == nil || filter.WithDeleted
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepository) Save(_ context.Context, order *domain.Order) error {
	return r.store.write(func(t *tables) error {
		current, ok := t.orders[order.ID]
		if !ok {
			return domain.ErrOrderNotFound
		}
		if current.Version != order.Version {
			return domain.ErrOrderVersionConflict
		}

		order.Version++
		order.CreatedAt = current.CreatedAt
		order.DeletedAt = current.DeletedAt
		order.UpdatedAt = time.Now().UTC()

		stored := *order
		stored.Items = nil
		t.orders[order.ID] = stored
		return nil
	})
}

// AddItem добавляет позицию к существующему заказу.
func (r *orderRepository) AddItem(_ context.Context, item *domain.OrderItem) error {
	return r.store.write(func(t *tables) error {
		if _, ok := t.orders[item.OrderID]; !ok {
			return domain.ErrOrderNotFound
		}
		item.ID = t.next("order_items")
		if item.CreatedAt.IsZero() {
			item.CreatedAt = time.Now().UTC()
		}
		stored := *item
		stored.Variant = nil
		t.items[item.OrderID] = append(t.items[item.OrderID], stored)
		return nil
	})
}

func (r *orderRepository) SoftDelete(_ context.Context, id int64) error {
	return r.store.write(func(t *tables) error {
		order, ok := t.orders[id]
		if !ok || order.DeletedAt != nil {
			return domain.ErrOrderNotFound
		}
		now := time.Now().UTC()
		order.DeletedAt = &now
		order.Version++
		t.orders[id] = order
		return nil
	})
}

func (r *orderRepository) Restore(_ context.Context, id int64) error {
	return r.store.write(func(t *tables) error {
		order, ok := t.orders[id]
		if !ok || order.DeletedAt == nil {
			return domain.ErrOrderNotFound
		}
		order.DeletedAt = nil
		order.Version++
		t.orders[id] = order
		return nil
	})
}

func withItems(t *tables, order domain.Order) domain.Order {
	order.Items = append([]domain.OrderItem{}, t.items[order.ID]...)
	return order
}

func newer(a, b domain.Order) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func lessBy(field string, a, b domain.Order) bool {
	switch field {
	case "id":
		return a.ID < b.ID
	case "updated_at":
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
	case "status":
		if a.Status != b.Status {
			return a.Status < b.Status
		}
	default:
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	return a.ID < b.ID
}

var _ domain.OrderRepository = (*orderRepository)(nil)
