package storage

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyLockMutualExclusion(t *testing.T) {
	kl := newKeyLock()

	const goroutines = 32
	const increments = 200

	counter := 0
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				kl.Lock("bucket", "key")
				counter++
				kl.Unlock("bucket", "key")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines*increments, counter)
}

func TestKeyLockShardDeterminism(t *testing.T) {
	kl := newKeyLock()

	// Same (bucket, key) always maps to the same shard
	assert.Same(t, kl.shard("b", "k"), kl.shard("b", "k"))
}

func TestKeyLockBucketKeySeparator(t *testing.T) {
	kl := newKeyLock()

	// ("ab", "c") and ("a", "bc") must not be treated as the same lock
	// identity. Shards may still collide, but holding one while taking
	// the other must not deadlock when they differ.
	s1 := kl.shard("ab", "c")
	s2 := kl.shard("a", "bc")

	kl.Lock("ab", "c")
	if s1 != s2 {
		kl.Lock("a", "bc")
		kl.Unlock("a", "bc")
	}
	kl.Unlock("ab", "c")
}
