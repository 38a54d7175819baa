// Package catalog реализует путь записи товаров и вариантов.
// После каждой записи варианта синхронно вызываются зарегистрированные hook-и
// (агрегатор остатков), и в outbox ставится событие catalog.variant_written.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// VariantWriteHook вызывается после фиксации записи варианта товара productID.
type VariantWriteHook func(ctx context.Context, productID int64)

// VariantInput описывает новый вариант.
type VariantInput struct {
	Name      string
	Price     decimal.Decimal
	Inventory int64
	Values    []domain.VariantValue
}

// ProductInput описывает новый товар вместе с вариантами и путями картинок.
type ProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Thumbnail   string
	Images      []string
	Variants    []VariantInput
}

// ProductPatch — частичное обновление товара. nil-поля не меняются.
type ProductPatch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Thumbnail   *string
	Star        *float64
	Images      []string
	NewVariants []VariantInput
}

// VariantPatch описывает частичное обновление варианта.
type VariantPatch struct {
	Name      *string
	Price     *decimal.Decimal
	Inventory *int64
}

func (p VariantPatch) validate() error {
	if p.Price != nil && p.Price.IsNegative() {
		return domain.ErrPriceNegative
	}
	if p.Inventory != nil && *p.Inventory < 0 {
		return domain.ErrInventoryNegative
	}
	return nil
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVariantWriteHook добавляет post-write hook.
func WithVariantWriteHook(hook VariantWriteHook) Option {
	return func(s *Service) {
		if hook != nil {
			s.hooks = append(s.hooks, hook)
		}
	}
}

// WithStockGuard включает проверку наличия при списании: если остаток варианта
// уходит в минус, DeductStock возвращает ErrInsufficientStock и транзакция
// вызывающего откатывается. По умолчанию выключено, списание безусловное.
func WithStockGuard(enabled bool) Option {
	return func(s *Service) {
		s.stockGuard = enabled
	}
}

// Service управляет карточками товаров и вариантами.
type Service struct {
	store      domain.Store
	hooks      []VariantWriteHook
	logger     *log.Entry
	stockGuard bool
}

// NewService создаёт сервис каталога.
func NewService(store domain.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: log.New().WithField("component", "catalog"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Slugify строит slug из названия с транслитерацией диакритики.
func Slugify(name string) string {
	return slug.Make(name)
}

// CreateProduct сохраняет товар, варианты и картинки одной транзакцией,
// затем пересчитывает агрегированный остаток.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) domain.Result[domain.Product] {
	if err := validateProduct(in.Name, in.Price); err != nil {
		return domain.Fail[domain.Product](err)
	}
	for _, v := range in.Variants {
		if err := variantFromInput(0, v).Validate(); err != nil {
			return domain.Fail[domain.Product](err)
		}
	}

	product := domain.Product{
		Name:        strings.TrimSpace(in.Name),
		Slug:        Slugify(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Thumbnail:   in.Thumbnail,
	}

	err := s.store.WithinTx(ctx, func(tx domain.Store) error {
		if err := tx.Products().Create(ctx, &product); err != nil {
			return fmt.Errorf("create product: %w", err)
		}
		if len(in.Images) > 0 {
			if _, err := tx.Products().AddImages(ctx, product.ID, in.Images); err != nil {
				return fmt.Errorf("add images: %w", err)
			}
		}
		return s.createVariants(ctx, tx, product.ID, in.Variants)
	})
	if err != nil {
		s.report(err, "create product", log.Fields{"product_name": in.Name})
		return domain.Fail[domain.Product](err)
	}

	s.fireHooks(ctx, product.ID)
	s.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"variants":   len(in.Variants),
	}).Info("product created")
	return s.GetProduct(ctx, product.ID)
}

// UpdateProduct применяет patch, при смене названия пересчитывает slug,
// добавляет новую партию вариантов и пересчитывает остаток.
func (s *Service) UpdateProduct(ctx context.Context, productID int64, patch ProductPatch) domain.Result[domain.Product] {
	for _, v := range patch.NewVariants {
		if err := variantFromInput(productID, v).Validate(); err != nil {
			return domain.Fail[domain.Product](err)
		}
	}

	err := s.store.WithinTx(ctx, func(tx domain.Store) error {
		product, err := tx.Products().Get(ctx, productID)
		if err != nil {
			return err
		}

		if patch.Name != nil && strings.TrimSpace(*patch.Name) != product.Name {
			product.Name = strings.TrimSpace(*patch.Name)
			product.Slug = Slugify(product.Name)
		}
		if patch.Description != nil {
			product.Description = *patch.Description
		}
		if patch.Price != nil {
			product.Price = *patch.Price
		}
		if patch.Thumbnail != nil {
			product.Thumbnail = *patch.Thumbnail
		}
		if patch.Star != nil {
			product.Star = *patch.Star
		}
		if err := validateProduct(product.Name, product.Price); err != nil {
			return err
		}

		if err := tx.Products().Update(ctx, product); err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		if len(patch.Images) > 0 {
			if _, err := tx.Products().AddImages(ctx, productID, patch.Images); err != nil {
				return fmt.Errorf("add images: %w", err)
			}
		}
		return s.createVariants(ctx, tx, productID, patch.NewVariants)
	})
	if err != nil {
		s.report(err, "update product", log.Fields{"product_id": productID})
		return domain.FromError[domain.Product](err)
	}

	s.fireHooks(ctx, productID)
	return s.GetProduct(ctx, productID)
}

// UpdateVariant меняет поля варианта и вызывает hook для его товара.
func (s *Service) UpdateVariant(ctx context.Context, variantID int64, patch VariantPatch) domain.Result[domain.ProductVariant] {
	var variant domain.ProductVariant
	err := s.store.WithinTx(ctx, func(tx domain.Store) error {
		current, err := tx.Variants().Get(ctx, variantID, false)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			current.Name = *patch.Name
		}
		if patch.Price != nil {
			current.Price = *patch.Price
		}
		if patch.Inventory != nil {
			current.Inventory = *patch.Inventory
		}
		// проверяются только переданные поля: после отгрузки остаток бывает отрицательным
		if err := patch.validate(); err != nil {
			return err
		}
		if err := tx.Variants().Update(ctx, current); err != nil {
			return fmt.Errorf("update variant: %w", err)
		}
		variant = current
		return s.enqueueVariantWritten(ctx, tx, current, domain.VariantReasonUpdated)
	})
	if err != nil {
		s.report(err, "update variant", log.Fields{"variant_id": variantID})
		return domain.FromError[domain.ProductVariant](err)
	}

	s.fireHooks(ctx, variant.ProductID)
	return domain.Ok(variant)
}

// SoftDeleteVariant помечает вариант удалённым. Остаток товара пересчитывается,
// чтобы удалённый вариант не оставался в агрегате.
func (s *Service) SoftDeleteVariant(ctx context.Context, variantID int64) domain.Result[domain.ProductVariant] {
	return s.toggleVariant(ctx, variantID, domain.VariantReasonDeleted)
}

// RestoreVariant снимает пометку удаления и пересчитывает остаток.
func (s *Service) RestoreVariant(ctx context.Context, variantID int64) domain.Result[domain.ProductVariant] {
	return s.toggleVariant(ctx, variantID, domain.VariantReasonRestored)
}

func (s *Service) toggleVariant(ctx context.Context, variantID int64, reason string) domain.Result[domain.ProductVariant] {
	var variant domain.ProductVariant
	err := s.store.WithinTx(ctx, func(tx domain.Store) error {
		var err error
		if reason == domain.VariantReasonDeleted {
			variant, err = tx.Variants().SoftDelete(ctx, variantID)
		} else {
			variant, err = tx.Variants().Restore(ctx, variantID)
		}
		if err != nil {
			return err
		}
		return s.enqueueVariantWritten(ctx, tx, variant, reason)
	})
	if err != nil {
		s.report(err, reason+" variant", log.Fields{"variant_id": variantID})
		return domain.FromError[domain.ProductVariant](err)
	}

	s.fireHooks(ctx, variant.ProductID)
	return domain.Ok(variant)
}

// GetProduct возвращает товар с активными вариантами и картинками.
func (s *Service) GetProduct(ctx context.Context, productID int64) domain.Result[domain.Product] {
	product, err := s.store.Products().Get(ctx, productID)
	if err == nil {
		product.Variants, err = s.store.Variants().ListByProduct(ctx, productID, false)
	}
	if err == nil {
		product.Images, err = s.store.Products().Images(ctx, productID)
	}
	if err != nil {
		s.report(err, "get product", log.Fields{"product_id": productID})
		return domain.FromError[domain.Product](err)
	}
	return domain.Ok(product)
}

// DeductStock списывает остатки внутри транзакции tx вызывающего.
// Без WithStockGuard остаток может стать отрицательным.
// Удалённые варианты тоже списываются: позиция заказа уже ссылается на них.
// Возвращает товары, чьи агрегаты нужно пересчитать после commit (см. AfterStockWrite).
func (s *Service) DeductStock(ctx context.Context, tx domain.Store, deductions []domain.StockDeduction) ([]int64, error) {
	touched := make([]int64, 0, len(deductions))
	for _, d := range deductions {
		variant, err := tx.Variants().Deduct(ctx, d.VariantID, d.Qty)
		if err != nil {
			return nil, fmt.Errorf("deduct variant %d: %w", d.VariantID, err)
		}
		if s.stockGuard && variant.Inventory < 0 {
			return nil, fmt.Errorf("deduct variant %d: %w", d.VariantID, domain.ErrInsufficientStock)
		}
		if err := s.enqueueVariantWritten(ctx, tx, variant, domain.VariantReasonDeducted); err != nil {
			return nil, err
		}
		touched = append(touched, variant.ProductID)
	}
	return touched, nil
}

// AfterStockWrite вызывает hook-и для товаров, затронутых DeductStock.
func (s *Service) AfterStockWrite(ctx context.Context, productIDs []int64) {
	s.fireHooks(ctx, productIDs...)
}

func (s *Service) createVariants(ctx context.Context, tx domain.Store, productID int64, inputs []VariantInput) error {
	for _, in := range inputs {
		variant := variantFromInput(productID, in)
		if err := tx.Variants().Create(ctx, &variant); err != nil {
			return fmt.Errorf("create variant: %w", err)
		}
		if err := s.enqueueVariantWritten(ctx, tx, variant, domain.VariantReasonCreated); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) enqueueVariantWritten(ctx context.Context, tx domain.Store, variant domain.ProductVariant, reason string) error {
	msg, err := domain.NewOutboxMessage(domain.AggregateProduct, variant.ProductID, domain.EventVariantWritten, domain.VariantWrittenPayload{
		ProductID: variant.ProductID,
		VariantID: variant.ID,
		Inventory: variant.Inventory,
		Reason:    reason,
	})
	if err != nil {
		return err
	}
	if _, err := tx.Outbox().Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueue %s: %w", domain.EventVariantWritten, err)
	}
	return nil
}

// fireHooks вызывает каждый hook один раз на товар.
func (s *Service) fireHooks(ctx context.Context, productIDs ...int64) {
	seen := make(map[int64]struct{}, len(productIDs))
	for _, id := range productIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		for _, hook := range s.hooks {
			hook(ctx, id)
		}
	}
}

// report логирует ошибку операции с уровнем по её природе.
func (s *Service) report(err error, op string, fields log.Fields) {
	entry := s.logger.WithFields(fields).WithError(err)
	switch {
	case domain.IsNotFound(err):
		entry.Debug(op + ": not found")
	case domain.IsValidation(err):
		entry.Warn(op + ": rejected")
	default:
		entry.Error(op + " failed")
	}
}

func validateProduct(name string, price decimal.Decimal) error {
	if strings.TrimSpace(name) == "" {
		return domain.ErrProductNameRequired
	}
	if price.IsNegative() {
		return domain.ErrPriceNegative
	}
	return nil
}

func variantFromInput(productID int64, in VariantInput) domain.ProductVariant {
	return domain.ProductVariant{
		ProductID: productID,
		Name:      in.Name,
		Price:     in.Price,
		Inventory: in.Inventory,
		Values:    append([]domain.VariantValue(nil), in.Values...),
	}
}
