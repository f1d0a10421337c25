package pricelock

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/egonjunior/tkb-asset-otc-sub000/internal/models"
)

var (
	ErrLockNotFound = errors.New("price lock not found")
	ErrLockExpired  = errors.New("price lock expired")
)

// Manager hands out short-lived price locks for the trading form. A lock
// freezes the client price for a fixed window; once the window elapses the
// lock is gone for good and the caller must request a fresh one.
type Manager struct {
	duration time.Duration
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]models.PriceLock
}

func NewManager(duration time.Duration) *Manager {
	return &Manager{
		duration: duration,
		now:      time.Now,
		locks:    map[string]models.PriceLock{},
	}
}

func (m *Manager) Lock(tick models.PriceTick) models.PriceLock {
	lock := models.PriceLock{
		LockID:      uuid.NewString(),
		LockedPrice: tick.ClientPrice,
		LockedAt:    m.now().UTC(),
		Duration:    m.duration,
	}

	m.mu.Lock()
	m.purgeLocked()
	m.locks[lock.LockID] = lock
	m.mu.Unlock()
	return lock
}

// Get returns the lock if it is still live. Expired locks are reported as
// ErrLockExpired exactly once and dropped; later calls see ErrLockNotFound.
func (m *Manager) Get(lockID string) (models.PriceLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[lockID]
	if !ok {
		return models.PriceLock{}, ErrLockNotFound
	}
	if m.remaining(lock) <= 0 {
		delete(m.locks, lockID)
		return models.PriceLock{}, ErrLockExpired
	}
	return lock, nil
}

// Consume removes a live lock so it cannot back a second order.
func (m *Manager) Consume(lockID string) (models.PriceLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[lockID]
	if !ok {
		return models.PriceLock{}, ErrLockNotFound
	}
	delete(m.locks, lockID)
	if m.remaining(lock) <= 0 {
		return models.PriceLock{}, ErrLockExpired
	}
	return lock, nil
}

// Remaining reports whole seconds left on the lock, never negative.
func (m *Manager) Remaining(lock models.PriceLock) int {
	r := m.remaining(lock)
	if r <= 0 {
		return 0
	}
	return int(r / time.Second)
}

func (m *Manager) IsExpired(lock models.PriceLock) bool {
	return m.remaining(lock) <= 0
}

func (m *Manager) remaining(lock models.PriceLock) time.Duration {
	return lock.Duration - m.now().UTC().Sub(lock.LockedAt)
}

func (m *Manager) purgeLocked() {
	for id, lock := range m.locks {
		if m.remaining(lock) <= 0 {
			delete(m.locks, id)
		}
	}
}
