package usecase

import (
	"context"
	"sync"
)

// KeyedLocker serializes work per key, e.g. one sync job per source.
type KeyedLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{slots: make(map[string]chan struct{})}
}

func (l *KeyedLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Lock blocks until key is free or ctx is done.
func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryLock acquires key without waiting.
func (l *KeyedLocker) TryLock(key string) (func(), bool) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, true
	default:
		return nil, false
	}
}
