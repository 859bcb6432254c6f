package parallel

import (
	"sync"

	"github.com/i5heu/catgraph/pkg/catalog"
	"github.com/zeebo/xxh3"
)

const shardCount = 64

// shardedSet is a concurrency-safe set of catalog hashes, sharded across
// shardCount independently-locked buckets keyed by an xxh3 hash of the
// catalog hash. Under many worker goroutines admitting hashes concurrently,
// this spreads lock contention instead of serializing every admission
// through one mutex, the way bookkeeping.Set does for the sequential
// engine (which never has more than one goroutine touching it).
type shardedSet struct {
	shards [shardCount]shard
}

type shard struct {
	mu      sync.Mutex
	members map[catalog.Hash]struct{}
}

func (s *shardedSet) shardFor(h catalog.Hash) *shard {
	sum := xxh3.Hash(h[:])
	return &s.shards[sum%uint64(shardCount)]
}

// Admit reports whether h was not already a member, inserting it
// atomically with respect to other Admit/Contains calls on the same shard.
func (s *shardedSet) Admit(h catalog.Hash) bool {
	sh := s.shardFor(h)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.members == nil {
		sh.members = make(map[catalog.Hash]struct{})
	}
	if _, ok := sh.members[h]; ok {
		return false
	}
	sh.members[h] = struct{}{}
	return true
}

// Contains reports whether h is already a member, without inserting it.
func (s *shardedSet) Contains(h catalog.Hash) bool {
	sh := s.shardFor(h)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, ok := sh.members[h]
	return ok
}

// dedupSession bundles the two dedup sets a parallel traversal session
// needs, mirroring bookkeeping.Session but built for concurrent admission.
type dedupSession struct {
	catalogs  shardedSet
	revisions shardedSet
}
