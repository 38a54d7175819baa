package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// ErrRecomputeFailed означает, что пересчёт не удался и сообщение нужно повторить.
var ErrRecomputeFailed = errors.New("inventory recompute failed")

// InventoryRecomputer пересчитывает агрегированный остаток товара.
type InventoryRecomputer interface {
	Recompute(ctx context.Context, productID int64) (int64, bool)
}

// NewInventoryHandler возвращает обработчик catalog.variant_written, который
// повторно сводит остаток товара. Повтор безопасен: пересчёт идемпотентен.
// Остальные события пропускаются.
func NewInventoryHandler(recomputer InventoryRecomputer, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "kafka-inventory-handler")
	}

	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		envelope, err := ParseEnvelope(message)
		if err != nil {
			return err
		}
		if envelope.EventType != domain.EventVariantWritten {
			return nil
		}

		var payload domain.VariantWrittenPayload
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return fmt.Errorf("failed to unmarshal variant payload: %w", err)
		}
		if payload.ProductID <= 0 {
			return fmt.Errorf("variant event %s without product_id", envelope.ID)
		}

		total, ok := recomputer.Recompute(ctx, payload.ProductID)
		if !ok {
			return fmt.Errorf("%w: product %d", ErrRecomputeFailed, payload.ProductID)
		}

		logger.WithFields(log.Fields{
			"product_id": payload.ProductID,
			"variant_id": payload.VariantID,
			"reason":     payload.Reason,
			"inventory":  total,
		}).Debug("inventory reconciled from catalog event")
		return nil
	}
}
