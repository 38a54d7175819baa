package domain

import "time"

// TimelineEvent — запись истории заказа (смена статуса, оформление).
type TimelineEvent struct {
	OrderID  int64
	Type     string
	From     OrderStatus
	To       OrderStatus
	Reason   string
	Occurred time.Time
}
