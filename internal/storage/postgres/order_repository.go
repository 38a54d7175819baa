package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const orderColumns = `
	id, user_id, status, full_name, phone, province, district, ward, address,
	payment_method, shipping_price, version, created_at, updated_at, deleted_at`

// orderSortColumns — белый список колонок для ORDER BY.
var orderSortColumns = map[string]string{
	"id":         "id",
	"created_at": "created_at",
	"updated_at": "updated_at",
	"status":     "status",
}

type orderRepository struct {
	store *Store
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.store.atomic(ctx, func(q queryer) error {
		now := time.Now().UTC()
		if order.CreatedAt.IsZero() {
			order.CreatedAt = now
		}
		order.UpdatedAt = now
		order.Version = 0

		if err := q.QueryRowContext(ctx, `
			INSERT INTO orders (
				user_id, status, full_name, phone, province, district, ward, address,
				payment_method, shipping_price, version, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,0,$11,$12)
			RETURNING id
		`,
			order.UserID, statusValue(order.Status), order.FullName, order.Phone,
			order.Province, order.District, order.Ward, order.Address,
			order.PaymentMethod, order.ShippingPrice, order.CreatedAt, order.UpdatedAt,
		).Scan(&order.ID); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i := range order.Items {
			order.Items[i].OrderID = order.ID
			if err := insertItem(ctx, q, &order.Items[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *orderRepository) Get(ctx context.Context, id int64, withDeleted bool) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT` + orderColumns + ` FROM orders WHERE id = $1`
	if !withDeleted {
		query += ` AND deleted_at IS NULL`
	}

	order, err := scanOrder(r.store.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	if order.Items, err = r.loadItems(ctx, order.ID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *orderRepository) FindOpenCart(ctx context.Context, userID int64) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.store.q.QueryRowContext(ctx, `
		SELECT`+orderColumns+`
		FROM orders
		WHERE user_id = $1
		  AND status IS NULL
		  AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select open cart: %w", err)
	}

	if order.Items, err = r.loadItems(ctx, order.ID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	where, args := orderConditions(filter)

	column, ok := orderSortColumns[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}

	query := `SELECT` + orderColumns + ` FROM orders WHERE ` + where +
		fmt.Sprintf(" ORDER BY %s %s, id %s", column, direction, direction)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.store.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		if orders[i].Items, err = r.loadItems(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *orderRepository) Count(ctx context.Context, filter domain.OrderFilter) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	where, args := orderConditions(filter)
	var count int
	if err := r.store.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE `+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return count, nil
}

// orderConditions строит WHERE для фильтра; аргументы нумеруются с $1.
func orderConditions(filter domain.OrderFilter) (string, []any) {
	var (
		conds = make([]string, 0, 3)
		args  = make([]any, 0, 3)
	)
	if filter.Carts {
		conds = append(conds, "status IS NULL")
	} else {
		conds = append(conds, "status IS NOT NULL")
	}
	if filter.UserID != 0 {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if !filter.WithDeleted {
		conds = append(conds, "deleted_at IS NULL")
	}
	return strings.Join(conds, " AND "), args
}

func (r *orderRepository) Save(ctx context.Context, order *domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.store.atomic(ctx, func(q queryer) error {
		now := time.Now().UTC()
		res, err := q.ExecContext(ctx, `
			UPDATE orders
			SET status = $1,
			    full_name = $2,
			    phone = $3,
			    province = $4,
			    district = $5,
			    ward = $6,
			    address = $7,
			    payment_method = $8,
			    shipping_price = $9,
			    version = version + 1,
			    updated_at = $10
			WHERE id = $11
			  AND version = $12
		`,
			statusValue(order.Status), order.FullName, order.Phone,
			order.Province, order.District, order.Ward, order.Address,
			order.PaymentMethod, order.ShippingPrice, now,
			order.ID, order.Version,
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			exists, err := orderExists(ctx, q, order.ID)
			if err != nil {
				return err
			}
			if !exists {
				return domain.ErrOrderNotFound
			}
			return domain.ErrOrderVersionConflict
		}

		order.Version++
		order.UpdatedAt = now
		return nil
	})
}

func (r *orderRepository) AddItem(ctx context.Context, item *domain.OrderItem) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.store.atomic(ctx, func(q queryer) error {
		exists, err := orderExists(ctx, q, item.OrderID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return insertItem(ctx, q, item)
	})
}

func (r *orderRepository) SoftDelete(ctx context.Context, id int64) error {
	return r.setDeleted(ctx, id, `
		UPDATE orders SET deleted_at = NOW(), version = version + 1
		WHERE id = $1 AND deleted_at IS NULL
	`)
}

func (r *orderRepository) Restore(ctx context.Context, id int64) error {
	return r.setDeleted(ctx, id, `
		UPDATE orders SET deleted_at = NULL, version = version + 1
		WHERE id = $1 AND deleted_at IS NOT NULL
	`)
}

func (r *orderRepository) setDeleted(ctx context.Context, id int64, query string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.q.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("toggle order deleted_at: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID int64) ([]domain.OrderItem, error) {
	rows, err := r.store.q.QueryContext(ctx, `
		SELECT id, order_id, variant_id, qty, price, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.VariantID, &item.Qty, &item.Price, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func insertItem(ctx context.Context, q queryer, item *domain.OrderItem) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if err := q.QueryRowContext(ctx, `
		INSERT INTO order_items (order_id, variant_id, qty, price, created_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, item.OrderID, item.VariantID, item.Qty, item.Price, item.CreatedAt).Scan(&item.ID); err != nil {
		return fmt.Errorf("insert order item: %w", err)
	}
	return nil
}

func orderExists(ctx context.Context, q queryer, orderID int64) (bool, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order     domain.Order
		status    sql.NullString
		deletedAt sql.NullTime
	)
	if err := row.Scan(
		&order.ID, &order.UserID, &status, &order.FullName, &order.Phone,
		&order.Province, &order.District, &order.Ward, &order.Address,
		&order.PaymentMethod, &order.ShippingPrice, &order.Version,
		&order.CreatedAt, &order.UpdatedAt, &deletedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status.String)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	order.DeletedAt = nullTime(deletedAt)
	return order, nil
}

// statusValue хранит корзину как NULL.
func statusValue(status domain.OrderStatus) any {
	if status == domain.OrderStatusCart {
		return nil
	}
	return string(status)
}

var _ domain.OrderRepository = (*orderRepository)(nil)
