package service

import (
	"encoding/binary"
	"hash/fnv"
	"sync"
)

const defaultLockStripes = 64

// keyLock serializes mutations per product id. Ids are hashed onto a fixed
// set of mutexes, so unrelated products may occasionally share a stripe.
type keyLock struct {
	stripes []sync.Mutex
}

func newKeyLock(n int) *keyLock {
	if n <= 0 {
		n = defaultLockStripes
	}
	return &keyLock{stripes: make([]sync.Mutex, n)}
}

// Lock acquires the stripe owning id and returns its release function.
func (k *keyLock) Lock(id uint64) func() {
	m := &k.stripes[k.index(id)]
	m.Lock()
	return m.Unlock
}

func (k *keyLock) index(id uint64) int {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	h := fnv.New32a()
	_, _ = h.Write(b[:])
	return int(h.Sum32() % uint32(len(k.stripes)))
}
