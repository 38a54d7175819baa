package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	seq        int64
	status     string
	attemptCnt int
	createdAt  time.Time
	updatedAt  time.Time
}

type outboxRepository struct {
	store *Store
}

// Enqueue сохраняет событие со статусом `pending` и возвращает его идентификатор.
func (r *outboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	err := r.store.write(func(t *tables) error {
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		t.outbox[msg.ID] = outboxRecord{
			msg:       msg,
			seq:       t.next("outbox_messages"),
			status:    "pending",
			createdAt: now,
			updatedAt: now,
		}
		return nil
	})
	if err != nil {
		return domain.OutboxMessage{}, err
	}
	return msg, nil
}

// PullPending возвращает до limit сообщений со статусом `pending` в порядке постановки.
func (r *outboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	pending := r.pending()
	if len(pending) > limit {
		pending = pending[:limit]
	}

	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result, nil
}

// Stats возвращает размер backlog и время самого старого pending-сообщения.
func (r *outboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	pending := r.pending()
	stats := domain.OutboxStats{PendingCount: len(pending)}
	if len(pending) > 0 {
		stats.OldestPendingAt = pending[0].createdAt
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (r *outboxRepository) MarkSent(_ context.Context, id string) error {
	return r.mark(id, "sent")
}

// MarkFailed фиксирует ошибку публикации.
func (r *outboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.mark(id, "failed")
}

func (r *outboxRepository) mark(id, status string) error {
	return r.store.write(func(t *tables) error {
		record, ok := t.outbox[id]
		if !ok {
			return domain.ErrOutboxPublish
		}
		record.status = status
		record.attemptCnt++
		record.updatedAt = time.Now().UTC()
		t.outbox[id] = record
		return nil
	})
}

// DeleteSentBefore удаляет самые старые sent-записи с updatedAt < before.
func (r *outboxRepository) DeleteSentBefore(_ context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	deleted := 0
	err := r.store.write(func(t *tables) error {
		expired := make([]outboxRecord, 0)
		for _, rec := range t.outbox {
			if rec.status == "sent" && rec.updatedAt.Before(before) {
				expired = append(expired, rec)
			}
		}
		sort.Slice(expired, func(i, j int) bool { return expired[i].seq < expired[j].seq })
		if len(expired) > limit {
			expired = expired[:limit]
		}
		for _, rec := range expired {
			delete(t.outbox, rec.msg.ID)
		}
		deleted = len(expired)
		return nil
	})
	return deleted, err
}

func (r *outboxRepository) pending() []outboxRecord {
	result := make([]outboxRecord, 0)
	_ = r.store.read(func(t *tables) error {
		for _, rec := range t.outbox {
			if rec.status == "pending" {
				result = append(result, rec)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].seq < result[j].seq })
	return result
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
