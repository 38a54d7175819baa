package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/shop/internal/health"
	"github.com/vladislavdragonenkov/shop/internal/lock"
)

type lockDependencies struct {
	locker  lock.Locker
	checker healthcheck.Checker
	closeFn func() error
}

// initLocker выбирает распределённые блокировки Redis или in-process, если адрес не задан.
func initLocker(ctx context.Context, cfg Config, logger *log.Entry) (*lockDependencies, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		logger.Info("using in-process locks")
		return &lockDependencies{locker: lock.NewKeyed()}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	locker := lock.NewRedisLocker(client,
		lock.WithTTL(cfg.LockTTL),
		lock.WithLogger(logger.WithField("component", "redis-lock")),
	)
	if err := locker.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}

	logger.WithField("addr", addr).Info("using redis locks")
	return &lockDependencies{
		locker:  locker,
		checker: healthcheck.NewSimpleChecker("redis", locker.Ping),
		closeFn: client.Close,
	}, nil
}
