package memsys_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvoo/memsys"
)

var _ = Describe("Cache", func() {
	var (
		c       *memsys.Cache
		mem     *memsys.Memory
		backing *memsys.MemoryBacking
	)

	BeforeEach(func() {
		mem = memsys.NewMemory()
		backing = memsys.NewMemoryBacking(mem, 0)
		c = memsys.NewCache(memsys.CacheConfig{
			Size:          4 * 1024,
			Associativity: 4,
			BlockSize:     64,
			HitLatency:    1,
			MissLatency:   10,
		}, backing)
	})

	Describe("Read", func() {
		It("misses on a cold cache", func() {
			mem.WriteW(0x1000, 0xDEADBEEF)

			result := c.Read(0x1000, 4)
			Expect(result.Hit).To(BeFalse())
			Expect(result.Latency).To(Equal(uint64(10)))
			Expect(result.Data).To(Equal(uint64(0xDEADBEEF)))
		})

		It("hits once the line is cached", func() {
			mem.WriteW(0x1000, 0xCAFEBABE)
			c.Read(0x1000, 4)

			result := c.Read(0x1000, 4)
			Expect(result.Hit).To(BeTrue())
			Expect(result.Latency).To(Equal(uint64(1)))
			Expect(result.Data).To(Equal(uint64(0xCAFEBABE)))
		})
	})

	Describe("Write", func() {
		It("write-allocates on a miss", func() {
			result := c.Write(0x2000, 4, 0x11223344)
			Expect(result.Hit).To(BeFalse())

			Expect(c.Read(0x2000, 4).Data).To(Equal(uint64(0x11223344)))
		})
	})

	Describe("Eviction", func() {
		It("evicts the LRU way and writes back dirty data", func() {
			c.Write(0x0000, 4, 0x1)
			c.Write(0x0400, 4, 0x2)
			c.Write(0x0800, 4, 0x3)
			c.Write(0x0C00, 4, 0x4)

			c.Read(0x0400, 4)
			c.Read(0x0800, 4)
			c.Read(0x0C00, 4)

			result := c.Write(0x1000, 4, 0x5)
			Expect(result.Evicted).To(BeTrue())
			Expect(mem.ReadW(0x0000)).To(Equal(uint32(0x1)))

			Expect(c.Stats().Evictions).To(Equal(uint64(1)))
			Expect(c.Stats().Writebacks).To(Equal(uint64(1)))
		})
	})
})

var _ = Describe("Hierarchy", func() {
	var (
		mem *memsys.Memory
		h   *memsys.Hierarchy
	)

	BeforeEach(func() {
		mem = memsys.NewMemory()
		h = memsys.NewHierarchy(mem, memsys.HierarchyConfig{
			L1:          memsys.CacheConfig{Size: 1024, Associativity: 2, BlockSize: 64, HitLatency: 1, MissLatency: 5},
			L2:          memsys.CacheConfig{Size: 2048, Associativity: 2, BlockSize: 64, HitLatency: 4, MissLatency: 20},
			L3:          memsys.CacheConfig{Size: 4096, Associativity: 2, BlockSize: 64, HitLatency: 10, MissLatency: 40},
			DRAMLatency: 100,
		})
	})

	It("completes an access only after enough cycles have been ticked", func() {
		mem.WriteW(0x10, 0x42)

		h.BeginAccess(1, 0x10, 4, false, 0)

		done, _ := h.AccessComplete(1)
		Expect(done).To(BeFalse())

		for i := 0; i < 200; i++ {
			h.Tick()
			done, _ = h.AccessComplete(1)
			if done {
				break
			}
		}

		Expect(done).To(BeTrue())
	})

	It("cancels a pending access on squash", func() {
		h.BeginAccess(7, 0x20, 4, false, 0)
		h.CancelAccess(7)

		Expect(h.InFlight(7)).To(BeFalse())
	})
})
