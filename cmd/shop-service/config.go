package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/app"
)

const (
	envLogLevel  = "SHOP_LOG_LEVEL"
	envLogFormat = "SHOP_LOG_FORMAT"

	envGRPCAddr              = "SHOP_GRPC_ADDR"
	envMetricsAddr           = "SHOP_METRICS_ADDR"
	envStorageDriver         = "SHOP_STORAGE_DRIVER"
	envPostgresDSN           = "SHOP_POSTGRES_DSN"
	envPostgresAutoMigrate   = "SHOP_POSTGRES_AUTO_MIGRATE"
	envStockGuard            = "SHOP_STOCK_GUARD"
	envRedisAddr             = "SHOP_REDIS_ADDR"
	envLockTTL               = "SHOP_LOCK_TTL"
	envKafkaBrokers          = "KAFKA_BROKERS"
	envKafkaConsumerGroup    = "SHOP_KAFKA_CONSUMER_GROUP"
	envKafkaMaxRetries       = "SHOP_KAFKA_MAX_RETRIES"
	envOutboxPollInterval    = "SHOP_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize       = "SHOP_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts     = "SHOP_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay      = "SHOP_OUTBOX_RETRY_DELAY"
	envOutboxStaleAfter      = "SHOP_OUTBOX_STALE_AFTER"
	envOutboxRetention       = "SHOP_OUTBOX_RETENTION"
	envOutboxCleanupInterval = "SHOP_OUTBOX_CLEANUP_INTERVAL"
)

type envLookup func(key string) (string, bool)

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Невалидное значение не останавливает запуск: остаётся default, а в warnings попадает причина.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	warn := func(key string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s: %v, using default", key, err))
	}
	positive := func(v int) bool { return v > 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }

	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = app.StorageDriver(strings.ToLower(strings.TrimSpace(v)))
	}
	str(envPostgresDSN, &cfg.PostgresDSN)
	str(envRedisAddr, &cfg.RedisAddr)
	str(envKafkaBrokers, &cfg.KafkaBrokers)
	str(envKafkaConsumerGroup, &cfg.KafkaConsumerGroup)

	bools := []struct {
		key string
		dst *bool
	}{
		{envPostgresAutoMigrate, &cfg.PostgresAutoMigrate},
		{envStockGuard, &cfg.StockGuard},
	}
	for _, item := range bools {
		if v, ok := lookup(item.key); ok {
			if parsed, err := parseBool(v); err != nil {
				warn(item.key, err)
			} else {
				*item.dst = parsed
			}
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{envKafkaMaxRetries, &cfg.KafkaMaxRetries},
		{envOutboxBatchSize, &cfg.OutboxBatchSize},
		{envOutboxMaxAttempts, &cfg.OutboxMaxAttempts},
	}
	for _, item := range ints {
		if v, ok := lookup(item.key); ok {
			if parsed, err := parseInt(v, positive, "must be > 0"); err != nil {
				warn(item.key, err)
			} else {
				*item.dst = parsed
			}
		}
	}

	durations := []struct {
		key      string
		dst      *time.Duration
		valid    func(time.Duration) bool
		validMsg string
	}{
		{envLockTTL, &cfg.LockTTL, positiveDuration, "must be > 0"},
		{envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0"},
		{envOutboxRetryDelay, &cfg.OutboxRetryDelay, func(v time.Duration) bool { return v >= 0 }, "must be >= 0"},
		{envOutboxStaleAfter, &cfg.OutboxStaleAfter, func(v time.Duration) bool { return v >= 0 }, "must be >= 0"},
		{envOutboxRetention, &cfg.OutboxRetention, positiveDuration, "must be > 0"},
		{envOutboxCleanupInterval, &cfg.OutboxCleanupInterval, positiveDuration, "must be > 0"},
	}
	for _, item := range durations {
		if v, ok := lookup(item.key); ok {
			if parsed, err := parseDuration(v, item.valid, item.validMsg); err != nil {
				warn(item.key, err)
			} else {
				*item.dst = parsed
			}
		}
	}

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, validMsg string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int %q", raw)
	}
	if !valid(value) {
		return 0, fmt.Errorf("%d %s", value, validMsg)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, validMsg string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	if !valid(value) {
		return 0, fmt.Errorf("%s %s", value, validMsg)
	}
	return value, nil
}
