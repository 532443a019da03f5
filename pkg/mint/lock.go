package mint

import "sync"

// KeyedMutex is an in-process MintLock: one mutex per issuer identity.
// Deployments running several replicas need an external lock (job queue,
// advisory lock) behind the same interface instead.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		locks: make(map[string]*sync.Mutex),
	}
}

func (k *KeyedMutex) WithLock(issuerID string, fn func() error) error {
	k.mu.Lock()
	lock, ok := k.locks[issuerID]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[issuerID] = lock
	}
	k.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	return fn()
}

var _ MintLock = (*KeyedMutex)(nil)
