package domain

import "time"

// VariantWrittenPayload — тело события catalog.variant_written.
type VariantWrittenPayload struct {
	ProductID int64  `json:"product_id"`
	VariantID int64  `json:"variant_id"`
	Inventory int64  `json:"inventory"`
	Reason    string `json:"reason"`
}

// Причины записи варианта.
const (
	VariantReasonCreated  = "created"
	VariantReasonUpdated  = "updated"
	VariantReasonDeducted = "deducted"
	VariantReasonDeleted  = "deleted"
	VariantReasonRestored = "restored"
)

// ProductInventoryPayload — тело события catalog.product_inventory_updated.
type ProductInventoryPayload struct {
	ProductID int64 `json:"product_id"`
	Previous  int64 `json:"previous"`
	Inventory int64 `json:"inventory"`
}

// OrderEventPayload: тело событий order.*.
type OrderEventPayload struct {
	OrderID    int64     `json:"order_id"`
	UserID     int64     `json:"user_id"`
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status,omitempty"`
	ItemsCount int       `json:"items_count"`
	OccurredAt time.Time `json:"occurred_at"`
}
