package memsys

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// CacheConfig holds the geometry and timing of one cache level.
type CacheConfig struct {
	// Size in bytes.
	Size int
	// Associativity (number of ways).
	Associativity int
	// BlockSize in bytes (cache line size).
	BlockSize int
	// HitLatency in cycles.
	HitLatency uint64
	// MissLatency in cycles charged in addition to whatever the backing
	// store itself takes.
	MissLatency uint64
}

// DefaultL1Config is a small, fast first-level cache.
func DefaultL1Config() CacheConfig {
	return CacheConfig{Size: 16 * 1024, Associativity: 4, BlockSize: 64, HitLatency: 1, MissLatency: 5}
}

// DefaultL2Config is a mid-size second-level cache.
func DefaultL2Config() CacheConfig {
	return CacheConfig{Size: 32 * 1024, Associativity: 8, BlockSize: 64, HitLatency: 4, MissLatency: 20}
}

// DefaultL3Config is a larger, shared third-level cache.
func DefaultL3Config() CacheConfig {
	return CacheConfig{Size: 128 * 1024, Associativity: 16, BlockSize: 64, HitLatency: 10, MissLatency: 40}
}

// DefaultDRAMLatency is the base main-memory access latency charged on an
// L3 miss.
const DefaultDRAMLatency uint64 = 400

// AccessResult is the outcome of a single cache access.
type AccessResult struct {
	Hit         bool
	Latency     uint64
	Data        uint64
	Evicted     bool
	EvictedAddr uint64
}

// Statistics tallies per-level cache activity.
type Statistics struct {
	Reads      uint64
	Writes     uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
}

// BackingStore is the next level down in the hierarchy (another Cache, or
// main memory). Both methods report the latency the access actually cost,
// so a cache miss can charge the real cascaded cost of the level(s) below
// it instead of a flat guess.
type BackingStore interface {
	Read(addr uint64, size int) (data []byte, latency uint64)
	Write(addr uint64, data []byte) (latency uint64)
}

// Cache is one set-associative, LRU-managed level of the memory hierarchy,
// backed by an Akita cache directory for tag/state bookkeeping.
type Cache struct {
	config    CacheConfig
	directory *akitacache.DirectoryImpl
	dataStore [][]byte
	stats     Statistics
	backing   BackingStore
}

// NewCache builds a cache level with the given configuration, backed by
// the next level down (or main memory at the bottom of the hierarchy).
func NewCache(config CacheConfig, backing BackingStore) *Cache {
	numSets := config.Size / (config.Associativity * config.BlockSize)
	totalBlocks := numSets * config.Associativity

	dataStore := make([][]byte, totalBlocks)
	for i := range dataStore {
		dataStore[i] = make([]byte, config.BlockSize)
	}

	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		dataStore: dataStore,
		backing:   backing,
	}
}

// Config returns the cache's configuration.
func (c *Cache) Config() CacheConfig { return c.config }

// Stats returns the cache's access statistics.
func (c *Cache) Stats() Statistics { return c.stats }

// ResetStats clears the cache's access statistics without touching its
// contents.
func (c *Cache) ResetStats() { c.stats = Statistics{} }

func (c *Cache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

func (c *Cache) blockAddr(addr uint64) uint64 {
	return (addr / uint64(c.config.BlockSize)) * uint64(c.config.BlockSize)
}

// Read performs a load, returning hit/miss status and the loaded value.
func (c *Cache) Read(addr uint64, size int) AccessResult {
	c.stats.Reads++

	blockAddr := c.blockAddr(addr)
	block := c.directory.Lookup(0, blockAddr)

	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)

		offset := addr % uint64(c.config.BlockSize)
		data := extractData(c.dataStore[c.blockIndex(block)], offset, size)

		return AccessResult{Hit: true, Latency: c.config.HitLatency, Data: data}
	}

	c.stats.Misses++
	return c.handleMiss(addr, size, false, 0)
}

// Write performs a store using a write-allocate policy.
func (c *Cache) Write(addr uint64, size int, data uint64) AccessResult {
	c.stats.Writes++

	blockAddr := c.blockAddr(addr)
	block := c.directory.Lookup(0, blockAddr)

	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)

		offset := addr % uint64(c.config.BlockSize)
		storeData(c.dataStore[c.blockIndex(block)], offset, size, data)
		block.IsDirty = true

		return AccessResult{Hit: true, Latency: c.config.HitLatency}
	}

	c.stats.Misses++
	return c.handleMiss(addr, size, true, data)
}

func (c *Cache) handleMiss(addr uint64, size int, isWrite bool, writeData uint64) AccessResult {
	result := AccessResult{Hit: false, Latency: c.config.MissLatency}

	blockAddr := c.blockAddr(addr)
	victim := c.directory.FindVictim(blockAddr)
	if victim == nil {
		return result
	}

	victimData := c.dataStore[c.blockIndex(victim)]

	if victim.IsValid {
		c.stats.Evictions++
		result.Evicted = true
		result.EvictedAddr = victim.Tag

		if victim.IsDirty && c.backing != nil {
			c.stats.Writebacks++
			c.backing.Write(victim.Tag, victimData)
		}
	}

	if c.backing != nil {
		newData, fetchLatency := c.backing.Read(blockAddr, c.config.BlockSize)
		copy(victimData, newData)
		result.Latency += fetchLatency
	} else {
		for i := range victimData {
			victimData[i] = 0
		}
	}

	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = false

	if isWrite {
		offset := addr % uint64(c.config.BlockSize)
		storeData(victimData, offset, size, writeData)
		victim.IsDirty = true
	} else {
		offset := addr % uint64(c.config.BlockSize)
		result.Data = extractData(victimData, offset, size)
	}

	c.directory.Visit(victim)

	return result
}

// Flush writes back every dirty block and invalidates the cache.
func (c *Cache) Flush() {
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty && c.backing != nil {
				c.backing.Write(block.Tag, c.dataStore[c.blockIndex(block)])
				c.stats.Writebacks++
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}
}

// Reset invalidates the cache without writing back dirty data.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.stats = Statistics{}
}

func extractData(data []byte, offset uint64, size int) uint64 {
	if data == nil || int(offset)+size > len(data) {
		return 0
	}

	var result uint64
	for i := 0; i < size; i++ {
		result |= uint64(data[int(offset)+i]) << (i * 8)
	}
	return result
}

func storeData(data []byte, offset uint64, size int, value uint64) {
	if data == nil || int(offset)+size > len(data) {
		return
	}

	for i := 0; i < size; i++ {
		data[int(offset)+i] = byte(value >> (i * 8))
	}
}
