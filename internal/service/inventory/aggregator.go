// Package inventory пересчитывает агрегированный остаток товара по его вариантам.
package inventory

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

// Aggregator поддерживает Product.Inventory равным сумме остатков живых вариантов.
// Пересчёт не инкрементальный: каждый вызов заново читает сумму, поэтому
// после затихания параллельных записей значение сходится само.
type Aggregator struct {
	store   domain.Store
	logger  *log.Entry
	metrics *metrics.ShopMetrics
}

// NewAggregator создаёт агрегатор. metrics может быть nil.
func NewAggregator(store domain.Store, logger *log.Entry, m *metrics.ShopMetrics) *Aggregator {
	if logger == nil {
		logger = log.New().WithField("component", "inventory-aggregator")
	}
	return &Aggregator{
		store:   store,
		logger:  logger,
		metrics: m,
	}
}

// TotalInventory возвращает сумму остатков не удалённых вариантов товара, 0 если их нет.
func (a *Aggregator) TotalInventory(ctx context.Context, productID int64) (int64, error) {
	return a.store.Variants().SumInventory(ctx, productID)
}

// Recompute записывает TotalInventory в карточку товара. Сумма читается в той же
// транзакции после блокировки строки товара, так что запись с более старой суммой
// не может лечь поверх более новой. Изменение значения публикуется событием
// catalog.product_inventory_updated.
// Ошибка чтения или записи логируется и не возвращается: агрегат сохраняет прежнее значение,
// повторная попытка не планируется. ok=false означает, что запись не состоялась.
func (a *Aggregator) Recompute(ctx context.Context, productID int64) (total int64, ok bool) {
	start := time.Now()
	logger := a.logger.WithField("product_id", productID)

	changed := false
	err := a.store.WithinTx(ctx, func(tx domain.Store) error {
		product, err := tx.Products().GetForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		if total, err = tx.Variants().SumInventory(ctx, productID); err != nil {
			return fmt.Errorf("sum variant inventory: %w", err)
		}
		if product.Inventory == total {
			return nil
		}
		if err := tx.Products().SetInventory(ctx, productID, total); err != nil {
			return err
		}
		msg, err := domain.NewOutboxMessage(domain.AggregateProduct, productID, domain.EventProductInventoryUpdated,
			domain.ProductInventoryPayload{ProductID: productID, Previous: product.Inventory, Inventory: total})
		if err != nil {
			return err
		}
		if _, err := tx.Outbox().Enqueue(ctx, msg); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		logger.WithError(err).Warn("inventory recompute failed, aggregate left unchanged")
		a.metrics.RecordRecompute(metrics.ResultFailed, time.Since(start))
		return 0, false
	}
	if changed {
		a.metrics.RecordOutboxEvent()
	}

	a.metrics.RecordRecompute(metrics.ResultOK, time.Since(start))
	logger.WithField("inventory", total).Debug("product inventory recomputed")
	return total, true
}

// RecomputeMany пересчитывает каждый товар один раз, сохраняя порядок первого упоминания.
func (a *Aggregator) RecomputeMany(ctx context.Context, productIDs []int64) {
	seen := make(map[int64]struct{}, len(productIDs))
	for _, id := range productIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		a.Recompute(ctx, id)
	}
}

// AfterVariantWrite служит post-write hook каталога и вызывается после каждой
// вставки или изменения варианта, в том числе после списания остатка.
func (a *Aggregator) AfterVariantWrite(ctx context.Context, productID int64) {
	a.Recompute(ctx, productID)
}
