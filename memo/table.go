// Package memo is the concurrent memoization table shared by every
// simulation worker. Keys are compared by value, so a lookup can never return
// an entry stored under a different key; the hash only picks a shard.
package memo

import (
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/pbnjay/memory"
	"github.com/rs/zerolog/log"
)

const (
	DefaultShards   = 256
	DefaultCapacity = 1 << 22
	// evictionLogInterval is how often (in evictions) we warn about a table
	// that is too small for its workload.
	evictionLogInterval = 1000
)

type shard[K comparable, V any] struct {
	sync.RWMutex
	entries map[K]V
}

// A Table is a sharded map with a size cap. Concurrent Get and Put are safe;
// two workers racing to Put the same key is harmless since they store the
// same value.
type Table[K comparable, V any] struct {
	name      string
	shards    []shard[K, V]
	shardMask uint64
	perShard  int
	hash      func(K) uint64

	lookups   atomic.Uint64
	hits      atomic.Uint64
	stores    atomic.Uint64
	evictions atomic.Uint64
}

// Stats is a point-in-time copy of the table counters.
type Stats struct {
	Name      string  `json:"name" yaml:"name"`
	Lookups   uint64  `json:"lookups" yaml:"lookups"`
	Hits      uint64  `json:"hits" yaml:"hits"`
	Stores    uint64  `json:"stores" yaml:"stores"`
	Evictions uint64  `json:"evictions" yaml:"evictions"`
	Size      int     `json:"size" yaml:"size"`
	HitRate   float64 `json:"hit_rate" yaml:"hit_rate"`
}

// NewTable creates a table holding about `capacity` entries spread over
// `shards` shards (rounded up to a power of two).
func NewTable[K comparable, V any](name string, capacity, shards int, hash func(K) uint64) *Table[K, V] {
	if shards < 1 {
		shards = DefaultShards
	}
	shards = 1 << bits.Len(uint(shards-1))
	if capacity < shards {
		capacity = shards
	}
	t := &Table[K, V]{
		name:      name,
		shards:    make([]shard[K, V], shards),
		shardMask: uint64(shards - 1),
		perShard:  capacity / shards,
		hash:      hash,
	}
	for i := range t.shards {
		t.shards[i].entries = make(map[K]V)
	}
	log.Debug().Str("table", name).Int("shards", shards).Int("per-shard", t.perShard).
		Msg("memo-table-created")
	return t
}

// CapacityForMemory converts a fraction of system memory into a number of
// entries of roughly entrySize bytes each.
func CapacityForMemory(fraction float64, entrySize int) int {
	totalMem := memory.TotalMemory()
	n := int(fraction * float64(totalMem) / float64(entrySize))
	log.Info().Uint64("total-system-memory-bytes", totalMem).Float64("fraction", fraction).
		Int("entries", n).Msg("memo-table-size")
	if n < DefaultShards {
		n = DefaultShards
	}
	return n
}

func (t *Table[K, V]) shardFor(k K) *shard[K, V] {
	return &t.shards[t.hash(k)&t.shardMask]
}

func (t *Table[K, V]) Get(k K) (V, bool) {
	t.lookups.Add(1)
	s := t.shardFor(k)
	s.RLock()
	v, ok := s.entries[k]
	s.RUnlock()
	if ok {
		t.hits.Add(1)
	}
	return v, ok
}

// Put stores v under k. A full shard is cleared first; a miss only ever
// costs a recomputation.
func (t *Table[K, V]) Put(k K, v V) {
	s := t.shardFor(k)
	s.Lock()
	if len(s.entries) >= t.perShard {
		if _, exists := s.entries[k]; !exists {
			clear(s.entries)
			if n := t.evictions.Add(1); n%evictionLogInterval == 1 {
				log.Warn().Str("table", t.name).Uint64("evictions", n).
					Int("per-shard", t.perShard).Msg("memo-shard-full")
			}
		}
	}
	s.entries[k] = v
	s.Unlock()
	t.stores.Add(1)
}

// Len counts the entries across all shards.
func (t *Table[K, V]) Len() int {
	n := 0
	for i := range t.shards {
		t.shards[i].RLock()
		n += len(t.shards[i].entries)
		t.shards[i].RUnlock()
	}
	return n
}

// Reset empties the table and zeroes the counters.
func (t *Table[K, V]) Reset() {
	for i := range t.shards {
		t.shards[i].Lock()
		clear(t.shards[i].entries)
		t.shards[i].Unlock()
	}
	t.lookups.Store(0)
	t.hits.Store(0)
	t.stores.Store(0)
	t.evictions.Store(0)
}

func (t *Table[K, V]) Stats() Stats {
	st := Stats{
		Name:      t.name,
		Lookups:   t.lookups.Load(),
		Hits:      t.hits.Load(),
		Stores:    t.stores.Load(),
		Evictions: t.evictions.Load(),
		Size:      t.Len(),
	}
	if st.Lookups > 0 {
		st.HitRate = float64(st.Hits) / float64(st.Lookups)
	}
	return st
}
