package lock

import (
	"context"
	"sync"
	"time"
)

// KeyedLocker serializes work on a string key. The ingestion path holds a
// lock per alert fingerprint for its read-modify-write; the escalation
// scheduler uses TryAcquire as a leader lock.
type KeyedLocker interface {
	// Acquire blocks until the key's lock is held or the context is done.
	// The returned release function must be called exactly once.
	Acquire(ctx context.Context, key string) (release func(), err error)

	// TryAcquire attempts to take the key's lock without blocking. When ok
	// is true the caller holds the lock for at most ttl and must call
	// release when finished.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// MemoryLocker is the single-process KeyedLocker used when no Redis is
// configured. Locks live in a map guarded by one mutex; per-key mutexes
// are created on demand and never removed, which is fine for the bounded
// key space (fingerprints plus a handful of scheduler keys).
type MemoryLocker struct {
	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	leases map[string]time.Time
}

// NewMemoryLocker creates an in-process keyed locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks:  make(map[string]*sync.Mutex),
		leases: make(map[string]time.Time),
	}
}

func (l *MemoryLocker) keyLock(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}

// Acquire blocks until the key's lock is held
func (l *MemoryLocker) Acquire(ctx context.Context, key string) (func(), error) {
	m := l.keyLock(key)

	locked := make(chan struct{})
	go func() {
		m.Lock()
		close(locked)
	}()

	select {
	case <-locked:
		return m.Unlock, nil
	case <-ctx.Done():
		// The goroutine still takes the lock eventually; give it back.
		go func() {
			<-locked
			m.Unlock()
		}()
		return nil, ctx.Err()
	}
}

// TryAcquire takes the key's lease if it is free or expired
func (l *MemoryLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if expiry, held := l.leases[key]; held && now.Before(expiry) {
		return nil, false, nil
	}

	l.leases[key] = now.Add(ttl)
	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.leases, key)
	}
	return release, true, nil
}
