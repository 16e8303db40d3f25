package lsq_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvoo/inst"
	"github.com/sarchlab/rvoo/lsq"
)

var _ = Describe("LSQ", func() {
	Describe("Conservative discipline", func() {
		var q *lsq.LSQ

		BeforeEach(func() {
			q = lsq.New(4, 4, lsq.Conservative)
		})

		It("blocks a load behind an older store with an unknown address", func() {
			q.DispatchStore(1, inst.Word)
			q.DispatchLoad(2, inst.Word, false)
			q.SetLoadAddr(2, 100)

			action, _ := q.Check(2)
			Expect(action).To(Equal(lsq.Blocked))
		})

		It("forwards from an exact-matching older store", func() {
			q.DispatchStore(1, inst.Word)
			q.SetStoreAddrValue(1, 100, 0xAA)

			q.DispatchLoad(2, inst.Word, false)
			q.SetLoadAddr(2, 100)

			action, value := q.Check(2)
			Expect(action).To(Equal(lsq.Forward))
			Expect(value).To(Equal(uint32(0xAA)))
		})

		It("goes to memory once every older store is resolved and non-overlapping", func() {
			q.DispatchStore(1, inst.Word)
			q.SetStoreAddrValue(1, 200, 0xAA)

			q.DispatchLoad(2, inst.Word, false)
			q.SetLoadAddr(2, 100)

			action, _ := q.Check(2)
			Expect(action).To(Equal(lsq.GoToMemory))
		})
	})

	Describe("Aggressive discipline", func() {
		var q *lsq.LSQ

		BeforeEach(func() {
			q = lsq.New(4, 4, lsq.Aggressive)
		})

		It("lets a load proceed past an unresolved older store", func() {
			q.DispatchStore(1, inst.Word)
			q.DispatchLoad(2, inst.Word, false)
			q.SetLoadAddr(2, 100)

			action, _ := q.Check(2)
			Expect(action).To(Equal(lsq.GoToMemory))
		})

		It("mispredicts a written-back load when the store resolves to an overlapping address", func() {
			q.DispatchStore(1, inst.Word)
			q.DispatchLoad(2, inst.Word, false)
			q.SetLoadAddr(2, 100)
			q.BeginExecute(2)
			q.CompleteLoad(2, 0) // load already executed speculatively and written back

			euKills, mispredicts := q.SetStoreAddrValue(1, 100, 0xBB)
			Expect(euKills).To(BeEmpty())
			Expect(mispredicts).To(ConsistOf(inst.Tag(2)))
		})

		It("eu-kills an in-flight (not yet written-back) overlapping load instead of mispredicting it", func() {
			q.DispatchStore(1, inst.Word)
			q.DispatchLoad(2, inst.Word, false)
			q.SetLoadAddr(2, 100)
			q.BeginExecute(2) // InFlight, not yet written back

			euKills, mispredicts := q.SetStoreAddrValue(1, 100, 0xBB)
			Expect(euKills).To(ConsistOf(inst.Tag(2)))
			Expect(mispredicts).To(BeEmpty())
		})

		It("reports no violation when the resolved store does not overlap", func() {
			q.DispatchStore(1, inst.Word)
			q.DispatchLoad(2, inst.Word, false)
			q.SetLoadAddr(2, 100)
			q.BeginExecute(2)
			q.CompleteLoad(2, 0)

			euKills, mispredicts := q.SetStoreAddrValue(1, 999, 0xBB)
			Expect(euKills).To(BeEmpty())
			Expect(mispredicts).To(BeEmpty())
		})

		It("returns a surgically killed in-flight load to NotExecuting", func() {
			q.DispatchLoad(2, inst.Word, false)
			q.SetLoadAddr(2, 100)
			q.BeginExecute(2)

			q.KillInflight(2)

			status, ok := q.LoadStatus(2)
			Expect(ok).To(BeTrue())
			Expect(status).To(Equal(lsq.NotExecuting))
		})
	})

	Describe("Squash", func() {
		It("drops entries whose tag exceeds the cut point", func() {
			q := lsq.New(4, 4, lsq.Conservative)
			q.DispatchLoad(1, inst.Word, false)
			q.DispatchLoad(2, inst.Word, false)
			q.DispatchStore(3, inst.Word)

			q.KillTagsAfter(1)

			Expect(q.LoadQueueLen()).To(Equal(1))
			Expect(q.StoreQueueLen()).To(Equal(0))
		})
	})
})
