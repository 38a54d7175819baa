package memory

import (
	"context"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type productRepository struct {
	store *Store
}

func (r *productRepository) Create(_ context.Context, product *domain.Product) error {
	return r.store.write(func(t *tables) error {
		now := time.Now().UTC()
		product.ID = t.next("products")
		product.CreatedAt = now
		product.UpdatedAt = now

		stored := *product
		stored.Images = nil
		stored.Variants = nil
		t.products[product.ID] = stored
		return nil
	})
}

func (r *productRepository) Get(_ context.Context, id int64) (domain.Product, error) {
	var product domain.Product
	err := r.store.read(func(t *tables) error {
		stored, ok := t.products[id]
		if !ok || stored.DeletedAt != nil {
			return domain.ErrProductNotFound
		}
		product = stored
		return nil
	})
	return product, err
}

// GetForUpdate совпадает с Get: транзакция in-memory хранилища и так эксклюзивна.
func (r *productRepository) GetForUpdate(ctx context.Context, id int64) (domain.Product, error) {
	return r.Get(ctx, id)
}

// Update перезаписывает редактируемые поля. Inventory остаётся за агрегатором.
func (r *productRepository) Update(_ context.Context, product domain.Product) error {
	return r.store.write(func(t *tables) error {
		current, ok := t.products[product.ID]
		if !ok || current.DeletedAt != nil {
			return domain.ErrProductNotFound
		}
		current.Name = product.Name
		current.Slug = product.Slug
		current.Description = product.Description
		current.Price = product.Price
		current.Thumbnail = product.Thumbnail
		current.Star = product.Star
		current.UpdatedAt = time.Now().UTC()
		t.products[product.ID] = current
		return nil
	})
}

func (r *productRepository) SetInventory(_ context.Context, id int64, inventory int64) error {
	return r.store.write(func(t *tables) error {
		current, ok := t.products[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		current.Inventory = inventory
		current.UpdatedAt = time.Now().UTC()
		t.products[id] = current
		return nil
	})
}

func (r *productRepository) AddImages(_ context.Context, productID int64, paths []string) ([]domain.ProductImage, error) {
	created := make([]domain.ProductImage, 0, len(paths))
	err := r.store.write(func(t *tables) error {
		if _, ok := t.products[productID]; !ok {
			return domain.ErrProductNotFound
		}
		for _, path := range paths {
			image := domain.ProductImage{ID: t.next("product_images"), ProductID: productID, Path: path}
			t.images[productID] = append(t.images[productID], image)
			created = append(created, image)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *productRepository) Images(_ context.Context, productID int64) ([]domain.ProductImage, error) {
	var images []domain.ProductImage
	err := r.store.read(func(t *tables) error {
		images = append([]domain.ProductImage{}, t.images[productID]...)
		return nil
	})
	return images, err
}

type variantRepository struct {
	store *Store
}

func (r *variantRepository) Create(_ context.Context, variant *domain.ProductVariant) error {
	return r.store.write(func(t *tables) error {
		if _, ok := t.products[variant.ProductID]; !ok {
			return domain.ErrProductNotFound
		}
		now := time.Now().UTC()
		variant.ID = t.next("product_variants")
		variant.CreatedAt = now
		variant.UpdatedAt = now
		for i := range variant.Values {
			variant.Values[i].ID = t.next("variant_values")
			variant.Values[i].VariantID = variant.ID
		}

		stored := *variant
		stored.Values = append([]domain.VariantValue(nil), variant.Values...)
		stored.Product = nil
		t.variants[variant.ID] = stored
		return nil
	})
}

func (r *variantRepository) Get(_ context.Context, id int64, withDeleted bool) (domain.ProductVariant, error) {
	var variant domain.ProductVariant
	err := r.store.read(func(t *tables) error {
		stored, ok := t.variants[id]
		if !ok || (stored.DeletedAt != nil && !withDeleted) {
			return domain.ErrVariantNotFound
		}
		variant = copyVariant(stored)
		return nil
	})
	return variant, err
}

func (r *variantRepository) Update(_ context.Context, variant domain.ProductVariant) error {
	return r.store.write(func(t *tables) error {
		current, ok := t.variants[variant.ID]
		if !ok || current.DeletedAt != nil {
			return domain.ErrVariantNotFound
		}
		current.Name = variant.Name
		current.Price = variant.Price
		current.Inventory = variant.Inventory
		current.UpdatedAt = time.Now().UTC()
		t.variants[variant.ID] = current
		return nil
	})
}

func (r *variantRepository) ListByProduct(_ context.Context, productID int64, withDeleted bool) ([]domain.ProductVariant, error) {
	result := make([]domain.ProductVariant, 0)
	err := r.store.read(func(t *tables) error {
		for _, variant := range t.variants {
			if variant.ProductID != productID {
				continue
			}
			if variant.DeletedAt != nil && !withDeleted {
				continue
			}
			result = append(result, copyVariant(variant))
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, err
}

// SumInventory суммирует остатки не удалённых вариантов.
func (r *variantRepository) SumInventory(_ context.Context, productID int64) (int64, error) {
	var total int64
	err := r.store.read(func(t *tables) error {
		for _, variant := range t.variants {
			if variant.ProductID == productID && variant.DeletedAt == nil {
				total += variant.Inventory
			}
		}
		return nil
	})
	return total, err
}

// Deduct уменьшает остаток. Удалённые варианты тоже списываются: заказ уже оформлен на них.
func (r *variantRepository) Deduct(_ context.Context, id int64, qty int64) (domain.ProductVariant, error) {
	var variant domain.ProductVariant
	err := r.store.write(func(t *tables) error {
		current, ok := t.variants[id]
		if !ok {
			return domain.ErrVariantNotFound
		}
		if qty <= 0 {
			return domain.ErrItemQtyInvalid
		}
		current.Inventory -= qty
		current.UpdatedAt = time.Now().UTC()
		t.variants[id] = current
		variant = copyVariant(current)
		return nil
	})
	return variant, err
}

func (r *variantRepository) SoftDelete(_ context.Context, id int64) (domain.ProductVariant, error) {
	return r.setDeleted(id, true)
}

func (r *variantRepository) Restore(_ context.Context, id int64) (domain.ProductVariant, error) {
	return r.setDeleted(id, false)
}

func (r *variantRepository) setDeleted(id int64, deleted bool) (domain.ProductVariant, error) {
	var variant domain.ProductVariant
	err := r.store.write(func(t *tables) error {
		current, ok := t.variants[id]
		if !ok || current.Deleted() == deleted {
			return domain.ErrVariantNotFound
		}
		now := time.Now().UTC()
		if deleted {
			current.DeletedAt = &now
		} else {
			current.DeletedAt = nil
		}
		current.UpdatedAt = now
		t.variants[id] = current
		variant = copyVariant(current)
		return nil
	})
	return variant, err
}

func copyVariant(v domain.ProductVariant) domain.ProductVariant {
	v.Values = append([]domain.VariantValue{}, v.Values...)
	return v
}

var (
	_ domain.ProductRepository = (*productRepository)(nil)
	_ domain.VariantRepository = (*variantRepository)(nil)
)
