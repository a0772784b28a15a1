// Package issuancelock provides advisory per-request locks taken around an
// issuance. Correctness never depends on them: the conditional markIssued
// update remains the guard. A lock only stops a second orchestration from
// uploading documents that would be orphaned.
package issuancelock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pawanM12/deCertify/pkg/config"
)

// ErrLocked is returned when another issuance holds the lock
var ErrLocked = errors.New("lock held")

// Release gives a lock back. It is safe to call after the lock expired.
type Release func(ctx context.Context) error

// Locker grants exclusive, expiring locks by key
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
	Close() error
}

// New creates the locker named in the configuration
func New(cfg *config.IssuanceConfig, logger *zap.Logger) (Locker, error) {
	ttl := time.Duration(cfg.LockTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}

	switch cfg.Lock {
	case "none", "":
		return Noop{}, nil
	case "memory":
		return NewMemoryLocker(ttl), nil
	case "redis":
		return NewRedisLocker(&RedisLockerConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       ttl,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported issuance lock: %s", cfg.Lock)
	}
}

func noRelease(context.Context) error { return nil }

// Noop grants every lock
type Noop struct{}

func (Noop) Acquire(ctx context.Context, key string) (Release, error) { return noRelease, nil }
func (Noop) Close() error                                             { return nil }

// MemoryLocker holds locks in process
type MemoryLocker struct {
	mu    sync.Mutex
	ttl   time.Duration
	held  map[string]memoryLease
	next  uint64
	clock func() time.Time
}

type memoryLease struct {
	token   uint64
	expires time.Time
}

// NewMemoryLocker creates an in-process locker whose locks expire after ttl
func NewMemoryLocker(ttl time.Duration) *MemoryLocker {
	return &MemoryLocker{
		ttl:   ttl,
		held:  make(map[string]memoryLease),
		clock: time.Now,
	}
}

func (m *MemoryLocker) Acquire(ctx context.Context, key string) (Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	if lease, ok := m.held[key]; ok && now.Before(lease.expires) {
		return nil, ErrLocked
	}

	m.next++
	token := m.next
	m.held[key] = memoryLease{token: token, expires: now.Add(m.ttl)}

	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		// An expired lease may have been taken over; leave the new holder alone
		if lease, ok := m.held[key]; ok && lease.token == token {
			delete(m.held, key)
		}
		return nil
	}, nil
}

func (m *MemoryLocker) Close() error { return nil }
