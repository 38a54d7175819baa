package app

import "time"

// StorageDriver выбирает реализацию domain.Store.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config описывает настройки запуска сервиса магазина.
// Пустой RedisAddr включает in-process блокировки, пустой KafkaBrokers включает публикацию outbox в лог.
type Config struct {
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	RedisAddr string
	LockTTL   time.Duration

	// StockGuard запрещает отгрузку, которая увела бы остаток варианта в минус.
	StockGuard bool

	KafkaBrokers       string
	KafkaConsumerGroup string
	KafkaMaxRetries    int

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxStaleAfter — возраст старейшего pending-события, после которого /healthz отдаёт degraded.
	OutboxStaleAfter time.Duration
	// OutboxRetention: сколько хранить доставленные сообщения до очистки.
	OutboxRetention       time.Duration
	OutboxCleanupInterval time.Duration
}

// DefaultConfig возвращает базовые адреса и параметры фоновых воркеров.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:              ":50051",
		MetricsAddr:           ":9090",
		StorageDriver:         StorageDriverMemory,
		PostgresAutoMigrate:   true,
		LockTTL:               10 * time.Second,
		KafkaConsumerGroup:    "shop-inventory",
		KafkaMaxRetries:       3,
		OutboxPollInterval:    time.Second,
		OutboxBatchSize:       100,
		OutboxMaxAttempts:     3,
		OutboxRetryDelay:      100 * time.Millisecond,
		OutboxStaleAfter:      5 * time.Minute,
		OutboxRetention:       24 * time.Hour,
		OutboxCleanupInterval: 10 * time.Minute,
	}
}
