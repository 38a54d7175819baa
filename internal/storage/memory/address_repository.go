package memory

import (
	"context"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type addressRepository struct {
	store *Store
}

// FindExact ищет адрес пользователя по точному совпадению всех четырёх полей.
func (r *addressRepository) FindExact(_ context.Context, userID int64, tuple domain.AddressTuple) (domain.UserAddress, error) {
	var address domain.UserAddress
	err := r.store.read(func(t *tables) error {
		found, ok := findExact(t, userID, tuple)
		if !ok {
			return domain.ErrAddressNotFound
		}
		address = found
		return nil
	})
	return address, err
}

func (r *addressRepository) Latest(_ context.Context, userID int64) (domain.UserAddress, error) {
	list := r.byUser(userID)
	if len(list) == 0 {
		return domain.UserAddress{}, domain.ErrAddressNotFound
	}
	return list[0], nil
}

func (r *addressRepository) ListByUser(_ context.Context, userID int64, offset, limit int) ([]domain.UserAddress, error) {
	list := r.byUser(userID)
	if offset > 0 {
		if offset >= len(list) {
			return []domain.UserAddress{}, nil
		}
		list = list[offset:]
	}
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// Create вставляет адрес; уникальность кортежа проверяется так же, как UNIQUE-индекс в PostgreSQL.
func (r *addressRepository) Create(_ context.Context, address *domain.UserAddress) error {
	return r.store.write(func(t *tables) error {
		if _, exists := findExact(t, address.UserID, address.AddressTuple); exists {
			return domain.ErrAddressExists
		}
		now := time.Now().UTC()
		address.ID = t.next("user_addresses")
		address.CreatedAt = now
		address.UpdatedAt = now
		t.addresses[address.ID] = *address
		return nil
	})
}

func (r *addressRepository) Update(_ context.Context, address domain.UserAddress) error {
	return r.store.write(func(t *tables) error {
		current, ok := t.addresses[address.ID]
		if !ok || current.UserID != address.UserID {
			return domain.ErrAddressNotFound
		}
		if other, exists := findExact(t, address.UserID, address.AddressTuple); exists && other.ID != address.ID {
			return domain.ErrAddressExists
		}
		current.AddressTuple = address.AddressTuple
		current.UpdatedAt = time.Now().UTC()
		t.addresses[address.ID] = current
		return nil
	})
}

func (r *addressRepository) Delete(_ context.Context, userID, id int64) error {
	return r.store.write(func(t *tables) error {
		current, ok := t.addresses[id]
		if !ok || current.UserID != userID {
			return domain.ErrAddressNotFound
		}
		delete(t.addresses, id)
		return nil
	})
}

// byUser возвращает адреса пользователя, свежие первыми.
func (r *addressRepository) byUser(userID int64) []domain.UserAddress {
	result := make([]domain.UserAddress, 0)
	_ = r.store.read(func(t *tables) error {
		for _, address := range t.addresses {
			if address.UserID == userID {
				result = append(result, address)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result
}

func findExact(t *tables, userID int64, tuple domain.AddressTuple) (domain.UserAddress, bool) {
	for _, address := range t.addresses {
		if address.UserID == userID && address.AddressTuple == tuple {
			return address, true
		}
	}
	return domain.UserAddress{}, false
}

type userRepository struct {
	store *Store
}

func (r *userRepository) Get(_ context.Context, id int64) (domain.User, error) {
	var user domain.User
	err := r.store.read(func(t *tables) error {
		stored, ok := t.users[id]
		if !ok {
			return domain.ErrUserNotFound
		}
		user = stored
		return nil
	})
	return user, err
}

func (r *userRepository) Create(_ context.Context, user *domain.User) error {
	return r.store.write(func(t *tables) error {
		if user.ID == 0 {
			user.ID = t.next("users")
		} else if user.ID > t.seq["users"] {
			t.seq["users"] = user.ID
		}
		if user.CreatedAt.IsZero() {
			user.CreatedAt = time.Now().UTC()
		}
		t.users[user.ID] = *user
		return nil
	})
}

var (
	_ domain.AddressRepository = (*addressRepository)(nil)
	_ domain.UserRepository    = (*userRepository)(nil)
)
