package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocker_SerializesSameKey(t *testing.T) {
	l := New(8)
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.With("u1", func() error {
				v := counter
				counter = v + 1
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 200, counter)
}

func TestLocker_SameKeySameShard(t *testing.T) {
	l := New(0)
	assert.Len(t, l.shards, DefaultShards)
	assert.Equal(t, l.shard("user-42"), l.shard("user-42"))
}

func TestLocker_WithReturnsError(t *testing.T) {
	l := New(4)
	err := l.With("k", func() error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)

	// Lock must have been released.
	unlock := l.Lock("k")
	unlock()
}
