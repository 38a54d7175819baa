// Package lock сериализует шаги жизненного цикла заказа по ключу
// (пользователь для checkout, заказ для смены статуса).
package lock

import (
	"context"
	"fmt"
	"sync"
)

// Locker захватывает эксклюзивную блокировку по ключу.
// Возвращённая функция освобождает блокировку и безопасна для повторного вызова.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// UserKey возвращает ключ блокировки корзины пользователя.
func UserKey(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// OrderKey возвращает ключ блокировки заказа.
func OrderKey(orderID int64) string {
	return fmt.Sprintf("order:%d", orderID)
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// Keyed держит блокировки внутри одного процесса.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

// NewKeyed создаёт in-process Locker.
func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*keyedEntry)}
}

// Acquire ждёт освобождения ключа или отмены ctx.
func (k *Keyed) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &keyedEntry{ch: make(chan struct{}, 1)}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		k.unref(key, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.ch
			k.unref(key, entry)
		})
	}, nil
}

func (k *Keyed) unref(key string, entry *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.entries, key)
	}
}

// size возвращает число ключей, которые сейчас удерживаются или ожидаются.
func (k *Keyed) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

var _ Locker = (*Keyed)(nil)
