package batchlock

import (
	"context"
	"errors"
	"sync"
)

// ErrContended is returned when a batch lock could not be taken before the
// caller's wait budget ran out.
var ErrContended = errors.New("batch lock contended")

// Unlock releases a held batch lock.
type Unlock func(ctx context.Context) error

// Locker serialises transitions on a single batch across API replicas.
type Locker interface {
	Acquire(ctx context.Context, batchID string) (Unlock, error)
}

// LocalLocker is an in-process Locker for single-replica runs and tests.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

func (l *LocalLocker) Acquire(ctx context.Context, batchID string) (Unlock, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	l.mu.Lock()
	slot, ok := l.locks[batchID]
	if !ok {
		slot = make(chan struct{}, 1)
		l.locks[batchID] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.Join(ErrContended, ctx.Err())
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() { <-slot })
		return nil
	}, nil
}
