package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const variantColumns = `id, product_id, name, price, inventory, created_at, updated_at, deleted_at`

type productRepository struct {
	store *Store
}

func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	if err := r.store.q.QueryRowContext(ctx, `
		INSERT INTO products (name, slug, description, price, inventory, thumbnail, star, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id
	`,
		product.Name, product.Slug, product.Description, product.Price,
		product.Inventory, product.Thumbnail, product.Star, now, now,
	).Scan(&product.ID); err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *productRepository) Get(ctx context.Context, id int64) (domain.Product, error) {
	return r.get(ctx, id, "")
}

// GetForUpdate берёт FOR UPDATE на строку товара. Вне транзакции блокировка
// снимается сразу после чтения, поэтому вызывать его нужно внутри WithinTx.
func (r *productRepository) GetForUpdate(ctx context.Context, id int64) (domain.Product, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *productRepository) get(ctx context.Context, id int64, suffix string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		product   domain.Product
		deletedAt sql.NullTime
	)
	err := r.store.q.QueryRowContext(ctx, `
		SELECT id, name, slug, description, price, inventory, thumbnail, star, created_at, updated_at, deleted_at
		FROM products
		WHERE id = $1 AND deleted_at IS NULL`+suffix, id).Scan(
		&product.ID, &product.Name, &product.Slug, &product.Description, &product.Price,
		&product.Inventory, &product.Thumbnail, &product.Star,
		&product.CreatedAt, &product.UpdatedAt, &deletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	product.CreatedAt = product.CreatedAt.UTC()
	product.UpdatedAt = product.UpdatedAt.UTC()
	product.DeletedAt = nullTime(deletedAt)
	return product, nil
}

func (r *productRepository) Update(ctx context.Context, product domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.q.ExecContext(ctx, `
		UPDATE products
		SET name = $1, slug = $2, description = $3, price = $4, thumbnail = $5, star = $6, updated_at = NOW()
		WHERE id = $7 AND deleted_at IS NULL
	`, product.Name, product.Slug, product.Description, product.Price, product.Thumbnail, product.Star, product.ID)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return expectAffected(res, domain.ErrProductNotFound)
}

func (r *productRepository) SetInventory(ctx context.Context, id int64, inventory int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.q.ExecContext(ctx, `
		UPDATE products SET inventory = $1, updated_at = NOW() WHERE id = $2
	`, inventory, id)
	if err != nil {
		return fmt.Errorf("set product inventory: %w", err)
	}
	return expectAffected(res, domain.ErrProductNotFound)
}

func (r *productRepository) AddImages(ctx context.Context, productID int64, paths []string) ([]domain.ProductImage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	created := make([]domain.ProductImage, 0, len(paths))
	err := r.store.atomic(ctx, func(q queryer) error {
		var id int64
		if err := q.QueryRowContext(ctx, `SELECT id FROM products WHERE id = $1`, productID).Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrProductNotFound
			}
			return fmt.Errorf("check product exists: %w", err)
		}

		for _, path := range paths {
			image := domain.ProductImage{ProductID: productID, Path: path}
			if err := q.QueryRowContext(ctx, `
				INSERT INTO product_images (product_id, path) VALUES ($1, $2) RETURNING id
			`, productID, path).Scan(&image.ID); err != nil {
				return fmt.Errorf("insert product image: %w", err)
			}
			created = append(created, image)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *productRepository) Images(ctx context.Context, productID int64) ([]domain.ProductImage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.store.q.QueryContext(ctx, `
		SELECT id, product_id, path FROM product_images WHERE product_id = $1 ORDER BY id ASC
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("list product images: %w", err)
	}
	defer rows.Close()

	images := make([]domain.ProductImage, 0)
	for rows.Next() {
		var image domain.ProductImage
		if err := rows.Scan(&image.ID, &image.ProductID, &image.Path); err != nil {
			return nil, fmt.Errorf("scan product image: %w", err)
		}
		images = append(images, image)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product images: %w", err)
	}
	return images, nil
}

type variantRepository struct {
	store *Store
}

func (r *variantRepository) Create(ctx context.Context, variant *domain.ProductVariant) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.store.atomic(ctx, func(q queryer) error {
		now := time.Now().UTC()
		variant.CreatedAt = now
		variant.UpdatedAt = now

		err := q.QueryRowContext(ctx, `
			INSERT INTO product_variants (product_id, name, price, inventory, created_at, updated_at)
			SELECT $1, $2, $3, $4, $5, $5
			WHERE EXISTS (SELECT 1 FROM products WHERE id = $1)
			RETURNING id
		`, variant.ProductID, variant.Name, variant.Price, variant.Inventory, now).Scan(&variant.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrProductNotFound
			}
			return fmt.Errorf("insert variant: %w", err)
		}

		for i := range variant.Values {
			value := &variant.Values[i]
			value.VariantID = variant.ID
			if err := q.QueryRowContext(ctx, `
				INSERT INTO variant_values (variant_id, attribute, value) VALUES ($1, $2, $3) RETURNING id
			`, variant.ID, value.Attribute, value.Value).Scan(&value.ID); err != nil {
				return fmt.Errorf("insert variant value: %w", err)
			}
		}
		return nil
	})
}

func (r *variantRepository) Get(ctx context.Context, id int64, withDeleted bool) (domain.ProductVariant, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT ` + variantColumns + ` FROM product_variants WHERE id = $1`
	if !withDeleted {
		query += ` AND deleted_at IS NULL`
	}
	variant, err := scanVariant(r.store.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ProductVariant{}, domain.ErrVariantNotFound
		}
		return domain.ProductVariant{}, fmt.Errorf("select variant: %w", err)
	}
	if variant.Values, err = r.loadValues(ctx, variant.ID); err != nil {
		return domain.ProductVariant{}, err
	}
	return variant, nil
}

func (r *variantRepository) Update(ctx context.Context, variant domain.ProductVariant) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.q.ExecContext(ctx, `
		UPDATE product_variants
		SET name = $1, price = $2, inventory = $3, updated_at = NOW()
		WHERE id = $4 AND deleted_at IS NULL
	`, variant.Name, variant.Price, variant.Inventory, variant.ID)
	if err != nil {
		return fmt.Errorf("update variant: %w", err)
	}
	return expectAffected(res, domain.ErrVariantNotFound)
}

func (r *variantRepository) ListByProduct(ctx context.Context, productID int64, withDeleted bool) ([]domain.ProductVariant, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT ` + variantColumns + ` FROM product_variants WHERE product_id = $1`
	if !withDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY id ASC`

	rows, err := r.store.q.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	variants := make([]domain.ProductVariant, 0)
	for rows.Next() {
		variant, err := scanVariant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		variants = append(variants, variant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variants: %w", err)
	}

	for i := range variants {
		if variants[i].Values, err = r.loadValues(ctx, variants[i].ID); err != nil {
			return nil, err
		}
	}
	return variants, nil
}

func (r *variantRepository) SumInventory(ctx context.Context, productID int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var total int64
	if err := r.store.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(inventory), 0)
		FROM product_variants
		WHERE product_id = $1 AND deleted_at IS NULL
	`, productID).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum variant inventory: %w", err)
	}
	return total, nil
}

// Deduct списывает остаток одним UPDATE, параллельные списания не теряются.
func (r *variantRepository) Deduct(ctx context.Context, id int64, qty int64) (domain.ProductVariant, error) {
	if qty <= 0 {
		return domain.ProductVariant{}, domain.ErrItemQtyInvalid
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	variant, err := scanVariant(r.store.q.QueryRowContext(ctx, `
		UPDATE product_variants
		SET inventory = inventory - $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+variantColumns, id, qty))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ProductVariant{}, domain.ErrVariantNotFound
		}
		return domain.ProductVariant{}, fmt.Errorf("deduct variant inventory: %w", err)
	}
	return variant, nil
}

func (r *variantRepository) SoftDelete(ctx context.Context, id int64) (domain.ProductVariant, error) {
	return r.setDeleted(ctx, `
		UPDATE product_variants SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+variantColumns, id)
}

func (r *variantRepository) Restore(ctx context.Context, id int64) (domain.ProductVariant, error) {
	return r.setDeleted(ctx, `
		UPDATE product_variants SET deleted_at = NULL, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NOT NULL
		RETURNING `+variantColumns, id)
}

func (r *variantRepository) setDeleted(ctx context.Context, query string, id int64) (domain.ProductVariant, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	variant, err := scanVariant(r.store.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ProductVariant{}, domain.ErrVariantNotFound
		}
		return domain.ProductVariant{}, fmt.Errorf("toggle variant deleted_at: %w", err)
	}
	return variant, nil
}

func (r *variantRepository) loadValues(ctx context.Context, variantID int64) ([]domain.VariantValue, error) {
	rows, err := r.store.q.QueryContext(ctx, `
		SELECT id, variant_id, attribute, value FROM variant_values WHERE variant_id = $1 ORDER BY id ASC
	`, variantID)
	if err != nil {
		return nil, fmt.Errorf("load variant values: %w", err)
	}
	defer rows.Close()

	values := make([]domain.VariantValue, 0)
	for rows.Next() {
		var value domain.VariantValue
		if err := rows.Scan(&value.ID, &value.VariantID, &value.Attribute, &value.Value); err != nil {
			return nil, fmt.Errorf("scan variant value: %w", err)
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variant values: %w", err)
	}
	return values, nil
}

func scanVariant(row rowScanner) (domain.ProductVariant, error) {
	var (
		variant   domain.ProductVariant
		deletedAt sql.NullTime
	)
	if err := row.Scan(
		&variant.ID, &variant.ProductID, &variant.Name, &variant.Price, &variant.Inventory,
		&variant.CreatedAt, &variant.UpdatedAt, &deletedAt,
	); err != nil {
		return domain.ProductVariant{}, err
	}
	variant.CreatedAt = variant.CreatedAt.UTC()
	variant.UpdatedAt = variant.UpdatedAt.UTC()
	variant.DeletedAt = nullTime(deletedAt)
	return variant, nil
}

func expectAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

var (
	_ domain.ProductRepository = (*productRepository)(nil)
	_ domain.VariantRepository = (*variantRepository)(nil)
)
