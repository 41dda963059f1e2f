package gpt2

import (
	"encoding/binary"
	"slices"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
)

// BlockHash chains the hash of one block of token IDs onto the hash of the
// blocks before it, so equal hashes identify equal prefixes
func BlockHash(tokenIDs []int, prefix uint64) uint64 {
	h := xxhash.New()

	var buf [8]byte
	if prefix != 0 {
		binary.LittleEndian.PutUint64(buf[:], prefix)
		h.Write(buf[:])
	}
	for _, id := range tokenIDs {
		binary.LittleEndian.PutUint32(buf[:4], uint32(id))
		h.Write(buf[:4])
	}

	return h.Sum64()
}

type prefixEntry struct {
	tokenIDs []int
	kv       *KVCache
}

// PrefixCache keeps KV snapshots of prompt prefixes at block boundaries.
// Every recipe prompt starts with the same header, so the first blocks are
// shared across requests.
type PrefixCache struct {
	blockSize int
	cache     *ttlcache.Cache[uint64, prefixEntry]
	expiring  bool
}

// NewPrefixCache creates a cache holding at most capacity snapshots. A zero
// ttl keeps entries until evicted by capacity.
func NewPrefixCache(blockSize, capacity int, ttl time.Duration) *PrefixCache {
	opts := []ttlcache.Option[uint64, prefixEntry]{
		ttlcache.WithCapacity[uint64, prefixEntry](uint64(capacity)),
	}
	if ttl > 0 {
		opts = append(opts, ttlcache.WithTTL[uint64, prefixEntry](ttl))
	}

	pc := &PrefixCache{
		blockSize: blockSize,
		cache:     ttlcache.New[uint64, prefixEntry](opts...),
	}
	if ttl > 0 {
		pc.expiring = true
		go pc.cache.Start()
	}
	return pc
}

// BlockSize returns the number of tokens per cached block
func (pc *PrefixCache) BlockSize() int {
	return pc.blockSize
}

// Len returns the number of cached snapshots
func (pc *PrefixCache) Len() int {
	return pc.cache.Len()
}

// Lookup returns a private copy of the longest cached block-aligned prefix
// of tokenIDs and its length, or nil and 0 on a miss
func (pc *PrefixCache) Lookup(tokenIDs []int) (*KVCache, int) {
	var (
		best *KVCache
		n    int
		hash uint64
		bs   = pc.blockSize
	)

	for end := bs; end <= len(tokenIDs); end += bs {
		hash = BlockHash(tokenIDs[end-bs:end], hash)
		item := pc.cache.Get(hash)
		if item == nil {
			break
		}
		entry := item.Value()
		if !slices.Equal(entry.tokenIDs, tokenIDs[:end]) {
			break
		}
		best, n = entry.kv, end
	}

	if best == nil {
		return nil, 0
	}
	return best.Clone(), n
}

// Store records a snapshot of kv, which must cover exactly tokenIDs
func (pc *PrefixCache) Store(tokenIDs []int, kv *KVCache) {
	if len(tokenIDs) == 0 || len(tokenIDs)%pc.blockSize != 0 || kv.Len != len(tokenIDs) {
		return
	}

	var hash uint64
	for end := pc.blockSize; end <= len(tokenIDs); end += pc.blockSize {
		hash = BlockHash(tokenIDs[end-pc.blockSize:end], hash)
	}

	if pc.cache.Has(hash) {
		return
	}
	pc.cache.Set(hash, prefixEntry{
		tokenIDs: slices.Clone(tokenIDs),
		kv:       kv.Clone(),
	}, ttlcache.DefaultTTL)
}

// Prefill feeds tokenIDs[kv.Len:] into the model block by block, storing a
// snapshot at each block boundary, and returns how many tokens kv now covers.
// A trailing partial block is left for the caller.
func (pc *PrefixCache) Prefill(m *Model, tokenIDs []int, kv *KVCache) (int, error) {
	bs := pc.blockSize
	for end := kv.Len + bs; end <= len(tokenIDs); end += bs {
		if _, err := m.Feed(tokenIDs[end-bs:end], kv); err != nil {
			return kv.Len, err
		}
		pc.Store(tokenIDs[:end], kv)
	}
	return kv.Len, nil
}

// Close stops the expiry loop
func (pc *PrefixCache) Close() {
	if pc.expiring {
		pc.cache.Stop()
	}
}
