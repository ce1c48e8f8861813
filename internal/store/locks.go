package store

import "sync"

// machineLocks holds one mutex per machine identifier. Locks are created
// lazily on first use and kept for the process lifetime; the fleet is small
// enough that entries are never reaped.
type machineLocks struct {
	mu    sync.RWMutex
	locks map[string]*sync.Mutex
}

func newMachineLocks() *machineLocks {
	return &machineLocks{locks: make(map[string]*sync.Mutex)}
}

func (m *machineLocks) get(machineID string) *sync.Mutex {
	m.mu.RLock()
	lock, exists := m.locks[machineID]
	m.mu.RUnlock()
	if exists {
		return lock
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if lock, exists = m.locks[machineID]; exists {
		return lock
	}
	lock = &sync.Mutex{}
	m.locks[machineID] = lock
	return lock
}
