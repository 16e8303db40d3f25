package memsys

// HierarchyConfig bundles the per-level cache configs for a three-level
// hierarchy plus the flat DRAM latency charged on an L3 miss.
type HierarchyConfig struct {
	L1          CacheConfig
	L2          CacheConfig
	L3          CacheConfig
	DRAMLatency uint64
}

// DefaultHierarchyConfig returns a reasonable default L1/L2/L3 + DRAM
// geometry.
func DefaultHierarchyConfig() HierarchyConfig {
	return HierarchyConfig{
		L1:          DefaultL1Config(),
		L2:          DefaultL2Config(),
		L3:          DefaultL3Config(),
		DRAMLatency: DefaultDRAMLatency,
	}
}

type pendingAccess struct {
	data    uint64
	total   uint64
	elapsed uint64
}

// Hierarchy is the L1/L2/L3 cache chain sitting in front of main memory,
// with a pending-access table that lets callers poll for completion across
// multiple simulated cycles rather than blocking for the full latency in
// one call.
type Hierarchy struct {
	mem *Memory
	l1  *Cache
	l2  *Cache
	l3  *Cache

	pending map[uint64]*pendingAccess
}

// NewHierarchy builds a three-level cache hierarchy over mem. DRAM latency
// is charged by the bottom-level MemoryBacking itself, so it cascades up
// through L3/L2/L1's own miss handling exactly once, on the path an access
// actually took, rather than being added as a flat constant afterward.
func NewHierarchy(mem *Memory, cfg HierarchyConfig) *Hierarchy {
	l3 := NewCache(cfg.L3, NewMemoryBacking(mem, cfg.DRAMLatency))
	l2 := NewCache(cfg.L2, &cacheBacking{cache: l3})
	l1 := NewCache(cfg.L1, &cacheBacking{cache: l2})

	return &Hierarchy{
		mem:     mem,
		l1:      l1,
		l2:      l2,
		l3:      l3,
		pending: make(map[uint64]*pendingAccess),
	}
}

// L1 exposes the first-level cache for statistics reporting.
func (h *Hierarchy) L1() *Cache { return h.l1 }

// L2 exposes the second-level cache for statistics reporting.
func (h *Hierarchy) L2() *Cache { return h.l2 }

// L3 exposes the third-level cache for statistics reporting.
func (h *Hierarchy) L3() *Cache { return h.l3 }

// Memory exposes the backing main memory.
func (h *Hierarchy) Memory() *Memory { return h.mem }

// BeginAccess starts tracking a new pending access under tag. It performs
// the access against the cache chain immediately (so hit/miss and eviction
// bookkeeping happen exactly once, at issue) but the caller only observes
// the result once AccessComplete reports done, once enough cycles have been
// ticked off. result.Latency already reflects the real path the access
// cascaded through — an L1 hit's own HitLatency, or an L1 miss's
// MissLatency plus whatever L2 (and, on down through L3 and DRAM) actually
// cost to service it — since each level's handleMiss adds its backing's
// reported latency to its own. Classifying which level ultimately served a
// miss is a matter of reading that level's own hit/miss Statistics, not of
// reconstructing it here.
func (h *Hierarchy) BeginAccess(tag uint64, addr uint32, size int, isWrite bool, writeData uint64) {
	if _, exists := h.pending[tag]; exists {
		return
	}

	var result AccessResult
	if isWrite {
		result = h.l1.Write(uint64(addr), size, writeData)
	} else {
		result = h.l1.Read(uint64(addr), size)
	}

	h.pending[tag] = &pendingAccess{data: result.Data, total: result.Latency}
}

// AccessComplete reports whether the access registered under tag has
// finished. The first call for a tag that was never begun is an error on
// the caller's part; use BeginAccess first.
func (h *Hierarchy) AccessComplete(tag uint64) (done bool, data uint64) {
	p, ok := h.pending[tag]
	if !ok {
		return false, 0
	}

	if p.elapsed < p.total {
		return false, 0
	}

	delete(h.pending, tag)
	return true, p.data
}

// Tick advances every pending access by one cycle.
func (h *Hierarchy) Tick() {
	for _, p := range h.pending {
		p.elapsed++
	}
}

// CancelAccess drops a pending access, used when a squash kills the load or
// store that requested it before it completes.
func (h *Hierarchy) CancelAccess(tag uint64) {
	delete(h.pending, tag)
}

// InFlight reports whether tag still has a pending access outstanding.
func (h *Hierarchy) InFlight(tag uint64) bool {
	_, ok := h.pending[tag]
	return ok
}
