package memory

import (
	"context"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// timelineRepository хранит историю заказов в памяти (для разработки/тестов).
type timelineRepository struct {
	store *Store
}

// Append добавляет событие в хранилище.
func (r *timelineRepository) Append(_ context.Context, event domain.TimelineEvent) error {
	return r.store.write(func(t *tables) error {
		if event.Occurred.IsZero() {
			event.Occurred = time.Now().UTC()
		}
		events := append(t.timeline[event.OrderID], event)
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].Occurred.Before(events[j].Occurred)
		})
		t.timeline[event.OrderID] = events
		return nil
	})
}

// List возвращает события заказа в хронологическом порядке.
func (r *timelineRepository) List(_ context.Context, orderID int64) ([]domain.TimelineEvent, error) {
	var result []domain.TimelineEvent
	err := r.store.read(func(t *tables) error {
		result = append([]domain.TimelineEvent{}, t.timeline[orderID]...)
		return nil
	})
	return result, err
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
