package storage

import (
	"hash/fnv"
	"sync"
)

// keyLock serializes writers per (bucket, key) without a global lock.
// Locks are sharded by hash so the map of held locks stays bounded;
// two keys in the same shard may contend, which affects throughput but
// not correctness. Reads never take these locks: they see the last
// committed metadata row.
type keyLock struct {
	shards []sync.Mutex
}

const keyLockShards = 256

func newKeyLock() *keyLock {
	return &keyLock{shards: make([]sync.Mutex, keyLockShards)}
}

func (kl *keyLock) shard(bucket, key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(bucket))
	h.Write([]byte{0})
	h.Write([]byte(key))
	return &kl.shards[h.Sum32()%keyLockShards]
}

// Lock acquires the write serialization point for one object key.
func (kl *keyLock) Lock(bucket, key string) {
	kl.shard(bucket, key).Lock()
}

// Unlock releases the write serialization point.
func (kl *keyLock) Unlock(bucket, key string) {
	kl.shard(bucket, key).Unlock()
}
