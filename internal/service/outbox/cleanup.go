package outbox

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupRetention = 24 * time.Hour
	defaultCleanupBatchSize = 500
)

// CleanupOptions задаёт параметры очистки доставленных outbox-сообщений.
type CleanupOptions struct {
	Logger    *log.Entry
	Metrics   *metrics.ShopMetrics
	Interval  time.Duration
	Retention time.Duration
	BatchSize int
}

// CleanupOption настраивает Cleaner.
type CleanupOption func(*CleanupOptions)

func WithCleanupLogger(logger *log.Entry) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Logger = logger
	}
}

func WithCleanupMetrics(m *metrics.ShopMetrics) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Metrics = m
	}
}

// WithCleanupInterval задаёт интервал между прогонами.
func WithCleanupInterval(interval time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Interval = interval
	}
}

// WithRetention задаёт, сколько хранить sent-сообщения.
func WithRetention(retention time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Retention = retention
	}
}

// WithCleanupBatchSize задаёт размер одного DELETE.
func WithCleanupBatchSize(batchSize int) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.BatchSize = batchSize
	}
}

// Cleaner периодически удаляет доставленные сообщения старше retention.
// Pending и failed записи не трогает: они нужны для backlog и разбора DLQ.
type Cleaner struct {
	repo      domain.OutboxRepository
	logger    *log.Entry
	metrics   *metrics.ShopMetrics
	interval  time.Duration
	retention time.Duration
	batchSize int
	now       func() time.Time
}

// NewCleaner создаёт воркер очистки outbox.
func NewCleaner(repo domain.OutboxRepository, options ...CleanupOption) *Cleaner {
	opts := CleanupOptions{
		Interval:  defaultCleanupInterval,
		Retention: defaultCleanupRetention,
		BatchSize: defaultCleanupBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-cleaner")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultCleanupInterval
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultCleanupRetention
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultCleanupBatchSize
	}

	return &Cleaner{
		repo:      repo,
		logger:    logger,
		metrics:   opts.Metrics,
		interval:  opts.Interval,
		retention: opts.Retention,
		batchSize: opts.BatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run чистит outbox сразу и затем по тикеру до отмены ctx.
func (c *Cleaner) Run(ctx context.Context) {
	if c.repo == nil {
		c.logger.Warn("outbox cleaner is disabled: repo is nil")
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *Cleaner) cleanup(ctx context.Context) {
	deleted, err := c.DeleteExpired(ctx, c.now().Add(-c.retention))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		c.metrics.RecordOutboxCleanup(metrics.ResultFailed, deleted)
		c.logger.WithError(err).Warn("outbox cleanup run failed")
		return
	}

	c.metrics.RecordOutboxCleanup(metrics.ResultOK, deleted)
	if deleted > 0 {
		c.logger.WithField("deleted", deleted).Info("outbox cleanup completed")
	}
}

// DeleteExpired удаляет sent-сообщения старше before порциями batchSize.
func (c *Cleaner) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := c.repo.DeleteSentBefore(ctx, before, c.batchSize)
		if err != nil {
			return total, err
		}
		total += deleted

		if deleted < c.batchSize {
			return total, nil
		}
	}
}
