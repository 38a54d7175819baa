package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const addressColumns = `id, user_id, province, district, ward, address, created_at, updated_at`

type addressRepository struct {
	store *Store
}

func (r *addressRepository) FindExact(ctx context.Context, userID int64, tuple domain.AddressTuple) (domain.UserAddress, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.one(ctx, `
		SELECT `+addressColumns+`
		FROM user_addresses
		WHERE user_id = $1 AND province = $2 AND district = $3 AND ward = $4 AND address = $5
	`, userID, tuple.Province, tuple.District, tuple.Ward, tuple.Address)
}

func (r *addressRepository) Latest(ctx context.Context, userID int64) (domain.UserAddress, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.one(ctx, `
		SELECT `+addressColumns+`
		FROM user_addresses
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, userID)
}

func (r *addressRepository) ListByUser(ctx context.Context, userID int64, offset, limit int) ([]domain.UserAddress, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.store.q.QueryContext(ctx, `
		SELECT `+addressColumns+`
		FROM user_addresses
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	addresses := make([]domain.UserAddress, 0)
	for rows.Next() {
		address, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addresses = append(addresses, address)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate addresses: %w", err)
	}
	return addresses, nil
}

func (r *addressRepository) Create(ctx context.Context, address *domain.UserAddress) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	err := r.store.q.QueryRowContext(ctx, `
		INSERT INTO user_addresses (user_id, province, district, ward, address, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)
		RETURNING id
	`, address.UserID, address.Province, address.District, address.Ward, address.Address, now).Scan(&address.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAddressExists
		}
		return fmt.Errorf("insert address: %w", err)
	}
	address.CreatedAt = now
	address.UpdatedAt = now
	return nil
}

func (r *addressRepository) Update(ctx context.Context, address domain.UserAddress) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.q.ExecContext(ctx, `
		UPDATE user_addresses
		SET province = $1, district = $2, ward = $3, address = $4, updated_at = NOW()
		WHERE id = $5 AND user_id = $6
	`, address.Province, address.District, address.Ward, address.Address, address.ID, address.UserID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAddressExists
		}
		return fmt.Errorf("update address: %w", err)
	}
	return expectAffected(res, domain.ErrAddressNotFound)
}

func (r *addressRepository) Delete(ctx context.Context, userID, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.q.ExecContext(ctx, `DELETE FROM user_addresses WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	return expectAffected(res, domain.ErrAddressNotFound)
}

func (r *addressRepository) one(ctx context.Context, query string, args ...any) (domain.UserAddress, error) {
	address, err := scanAddress(r.store.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.UserAddress{}, domain.ErrAddressNotFound
		}
		return domain.UserAddress{}, fmt.Errorf("select address: %w", err)
	}
	return address, nil
}

func scanAddress(row rowScanner) (domain.UserAddress, error) {
	var address domain.UserAddress
	if err := row.Scan(
		&address.ID, &address.UserID, &address.Province, &address.District,
		&address.Ward, &address.Address, &address.CreatedAt, &address.UpdatedAt,
	); err != nil {
		return domain.UserAddress{}, err
	}
	address.CreatedAt = address.CreatedAt.UTC()
	address.UpdatedAt = address.UpdatedAt.UTC()
	return address, nil
}

type userRepository struct {
	store *Store
}

func (r *userRepository) Get(ctx context.Context, id int64) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var user domain.User
	err := r.store.q.QueryRowContext(ctx, `
		SELECT id, full_name, phone, created_at FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.FullName, &user.Phone, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

// Create сохраняет пользователя. Явный ID (пришедший из внешней системы)
// сдвигает sequence, чтобы следующие вставки не конфликтовали.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	return r.store.atomic(ctx, func(q queryer) error {
		if user.ID == 0 {
			if err := q.QueryRowContext(ctx, `
				INSERT INTO users (full_name, phone, created_at) VALUES ($1,$2,$3) RETURNING id
			`, user.FullName, user.Phone, user.CreatedAt).Scan(&user.ID); err != nil {
				return fmt.Errorf("insert user: %w", err)
			}
			return nil
		}

		if _, err := q.ExecContext(ctx, `
			INSERT INTO users (id, full_name, phone, created_at) VALUES ($1,$2,$3,$4)
		`, user.ID, user.FullName, user.Phone, user.CreatedAt); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		if _, err := q.ExecContext(ctx, `
			SELECT setval(pg_get_serial_sequence('users', 'id'), GREATEST((SELECT MAX(id) FROM users), 1))
		`); err != nil {
			return fmt.Errorf("bump users sequence: %w", err)
		}
		return nil
	})
}

var (
	_ domain.AddressRepository = (*addressRepository)(nil)
	_ domain.UserRepository    = (*userRepository)(nil)
)
