// Package keymutex serializes mutations per record key. The claim and
// consent services hold the key's mutex for the whole read-validate-write
// span of a mutation, so two racing writers on the same record are ordered
// and the loser observes the winner's committed state.
package keymutex

import "sync"

// KeyMutex provides a mutex per string key. Mutexes are created on first use
// and retained for the life of the KeyMutex; the key space here is bounded by
// the set of hot records, which is small relative to memory.
type KeyMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an empty KeyMutex.
func New() *KeyMutex {
	return &KeyMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key, blocking until it is available.
func (k *KeyMutex) Lock(key string) {
	k.mutexFor(key).Lock()
}

// Unlock releases the mutex for key.
func (k *KeyMutex) Unlock(key string) {
	k.mutexFor(key).Unlock()
}

func (k *KeyMutex) mutexFor(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}
