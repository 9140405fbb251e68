// Package keylock serialises work per key using a fixed set of mutex shards.
package keylock

import (
	"hash/fnv"
	"sync"
)

// DefaultShards is used when New is given a non-positive shard count.
const DefaultShards = 256

// Locker hands out a mutex per key. Distinct keys may share a shard; the
// same key always maps to the same shard.
type Locker struct {
	shards []sync.Mutex
}

// New creates a Locker with n shards.
func New(n int) *Locker {
	if n <= 0 {
		n = DefaultShards
	}
	return &Locker{shards: make([]sync.Mutex, n)}
}

// Lock acquires the shard for key and returns its unlock function.
func (l *Locker) Lock(key string) func() {
	mu := &l.shards[l.shard(key)]
	mu.Lock()
	return mu.Unlock
}

// With runs fn while holding the shard for key.
func (l *Locker) With(key string, fn func() error) error {
	unlock := l.Lock(key)
	defer unlock()
	return fn()
}

func (l *Locker) shard(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(l.shards)))
}
