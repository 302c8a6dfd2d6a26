package services

import (
	"hash/fnv"
	"sync"
)

// lockStripes is the size of a stripedLocks table.
const lockStripes = 256

// stripedLocks serializes work per key with a fixed number of mutexes, so
// memory does not grow with the number of keys seen. Distinct keys may share
// a stripe.
type stripedLocks struct {
	mu [lockStripes]sync.Mutex
}

// For returns the mutex guarding key.
func (l *stripedLocks) For(key string) *sync.Mutex { return &l.mu[stripe(key)] }

func stripe(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % lockStripes)
}
