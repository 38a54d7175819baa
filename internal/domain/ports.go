package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// OutboxPublisher публикует события из transactional outbox.
// Это порт уведомлений: Kafka в проде, лог при локальном запуске.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
	// DeleteSentBefore удаляет до limit доставленных сообщений, обновлённых раньше before.
	DeleteSentBefore(ctx context.Context, before time.Time, limit int) (int, error)
}

// TimelineRepository хранит историю статусов заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID int64) ([]TimelineEvent, error)
}

// Агрегаты и типы событий, уходящих через outbox.
const (
	AggregateOrder   = "order"
	AggregateProduct = "product"

	EventCartCreated             = "order.cart_created"
	EventOrderCheckedOut         = "order.checked_out"
	EventOrderStatusChanged      = "order.status_changed"
	EventVariantWritten          = "catalog.variant_written"
	EventProductInventoryUpdated = "catalog.product_inventory_updated"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// NewOutboxMessage сериализует payload в JSON и собирает сообщение для outbox.
func NewOutboxMessage(aggregateType string, aggregateID int64, eventType string, payload any) (OutboxMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   fmt.Sprint(aggregateID),
		EventType:     eventType,
		Payload:       body,
	}, nil
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
