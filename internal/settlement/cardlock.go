package settlement

import "sync"

// cardLocks serializes settlement operations per card ID within this
// process. The database row lock remains the cross-process guarantee; this
// keyed mutex keeps same-card operations from ever contending on it and
// gives SQLite, which has no row locks, the same exclusivity.
type cardLocks struct {
	mu    sync.Mutex
	locks map[uint64]*cardLock
}

type cardLock struct {
	mu   sync.Mutex
	refs int
}

func newCardLocks() *cardLocks {
	return &cardLocks{locks: make(map[uint64]*cardLock)}
}

// acquire blocks until the per-card lock is held. Locks are reference
// counted and dropped from the map when the last holder releases, so the
// map does not grow with the card table.
func (c *cardLocks) acquire(cardID uint64) {
	c.mu.Lock()
	entry, ok := c.locks[cardID]
	if !ok {
		entry = &cardLock{}
		c.locks[cardID] = entry
	}
	entry.refs++
	c.mu.Unlock()

	entry.mu.Lock()
}

// release unlocks the per-card lock and evicts it when unused.
func (c *cardLocks) release(cardID uint64) {
	c.mu.Lock()
	entry, ok := c.locks[cardID]
	if ok {
		entry.refs--
		if entry.refs <= 0 {
			delete(c.locks, cardID)
		}
	}
	c.mu.Unlock()

	if ok {
		entry.mu.Unlock()
	}
}
