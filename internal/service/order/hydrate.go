package order

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// hydrator подгружает варианты и товары для позиций заказов.
// Кэш живёт один вызов, чтобы общий товар читался из хранилища один раз.
type hydrator struct {
	store    domain.Store
	variants map[int64]*domain.ProductVariant
	products map[int64]*domain.Product
}

func newHydrator(store domain.Store) *hydrator {
	return &hydrator{
		store:    store,
		variants: make(map[int64]*domain.ProductVariant),
		products: make(map[int64]*domain.Product),
	}
}

func (h *hydrator) hydrate(ctx context.Context, orders []domain.Order) error {
	for i := range orders {
		for j := range orders[i].Items {
			variant, err := h.variant(ctx, orders[i].Items[j].VariantID)
			if err != nil {
				return err
			}
			orders[i].Items[j].Variant = variant
		}
	}
	return nil
}

// variant читает вариант вместе с удалёнными: заказ должен отображаться
// и после того, как вариант сняли с продажи.
func (h *hydrator) variant(ctx context.Context, id int64) (*domain.ProductVariant, error) {
	if v, ok := h.variants[id]; ok {
		return v, nil
	}
	variant, err := h.store.Variants().Get(ctx, id, true)
	if err != nil {
		return nil, fmt.Errorf("hydrate variant %d: %w", id, err)
	}
	product, err := h.product(ctx, variant.ProductID)
	if err != nil {
		return nil, err
	}
	variant.Product = product
	h.variants[id] = &variant
	return &variant, nil
}

func (h *hydrator) product(ctx context.Context, id int64) (*domain.Product, error) {
	if p, ok := h.products[id]; ok {
		return p, nil
	}
	product, err := h.store.Products().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("hydrate product %d: %w", id, err)
	}
	images, err := h.store.Products().Images(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("hydrate product %d images: %w", id, err)
	}
	product.Images = images
	h.products[id] = &product
	return &product, nil
}
