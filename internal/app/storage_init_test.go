package app

import (
	"context"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
	}, log.WithField("test", "memory-storage"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies(memory) failed: %v", err)
	}
	if deps.store == nil {
		t.Fatal("store should not be nil for memory storage")
	}
	if deps.closeFn != nil {
		t.Fatal("memory storage has nothing to close")
	}
}

func TestInitRuntimeDependencies_EmptyDriverIsMemory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{}, log.WithField("test", "default-storage"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies(\"\") failed: %v", err)
	}
	if deps.store == nil {
		t.Fatal("store should not be nil")
	}
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverPostgres,
	}, log.WithField("test", "postgres-missing-dsn"))
	if err == nil {
		t.Fatal("expected error when postgres driver is selected without DSN")
	}
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: "sqlite",
	}, log.WithField("test", "unsupported-driver"))
	if err == nil {
		t.Fatal("expected error for unsupported storage driver")
	}
}

func TestInitLocker_InProcessByDefault(t *testing.T) {
	t.Parallel()

	locks, err := initLocker(context.Background(), Config{}, log.WithField("test", "locks"))
	if err != nil {
		t.Fatalf("initLocker failed: %v", err)
	}
	if locks.locker == nil {
		t.Fatal("locker should not be nil")
	}
	if locks.checker != nil || locks.closeFn != nil {
		t.Fatal("in-process locks have no checker and nothing to close")
	}
}

func TestInitLocker_UnreachableRedis(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := initLocker(ctx, Config{RedisAddr: "127.0.0.1:1"}, log.WithField("test", "redis-down"))
	if err == nil {
		t.Fatal("expected error for unreachable redis")
	}
}
