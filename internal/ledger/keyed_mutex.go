package ledger

import (
	"hash/fnv"
	"sync"
)

// keyedMutex serializes work per key using a fixed set of lock stripes.
// Two keys may share a stripe; that only costs parallelism.
type keyedMutex struct {
	stripes []sync.Mutex
}

func newKeyedMutex(n int) *keyedMutex {
	if n < 1 {
		n = 1
	}
	return &keyedMutex{stripes: make([]sync.Mutex, n)}
}

// Lock acquires the stripe for key and returns its unlock func.
func (k *keyedMutex) Lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &k.stripes[h.Sum32()%uint32(len(k.stripes))]
	m.Lock()
	return m.Unlock
}
