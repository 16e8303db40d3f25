package eu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvoo/eu"
	"github.com/sarchlab/rvoo/inst"
	"github.com/sarchlab/rvoo/rename"
	"github.com/sarchlab/rvoo/rs"
)

var _ = Describe("Pool", func() {
	var pool *eu.Pool

	BeforeEach(func() {
		pool = eu.NewPool(eu.Config{AluUnits: 1, LoadStoreUnits: 1, BranchUnits: 1, SpecialUnits: 1, Concurrency: 2}, nil, nil)
	})

	It("does not complete before its latency has elapsed", func() {
		ok := pool.TryBegin(1, rs.Ready{Op: inst.OpADD, Src1: 2, Src2: 3}, rename.Inst{}, 0, 2)
		Expect(ok).To(BeTrue())

		Expect(pool.TakeCompleted()).To(BeEmpty())
		pool.Advance()
		Expect(pool.TakeCompleted()).To(BeEmpty())
		pool.Advance()

		done := pool.TakeCompleted()
		Expect(done).To(HaveLen(1))
		Expect(done[0].Value).To(Equal(uint32(5)))
	})

	It("rejects a new entry once the unit's bag is full", func() {
		Expect(pool.TryBegin(1, rs.Ready{Op: inst.OpADD}, rename.Inst{}, 0, 5)).To(BeTrue())
		Expect(pool.TryBegin(2, rs.Ready{Op: inst.OpADD}, rename.Inst{}, 0, 5)).To(BeTrue())
		Expect(pool.TryBegin(3, rs.Ready{Op: inst.OpADD}, rename.Inst{}, 0, 5)).To(BeFalse())
	})

	It("computes branch outcome and target", func() {
		pool.TryBegin(1, rs.Ready{Op: inst.OpBEQ, Src1: 7, Src2: 7, Jump: 100}, rename.Inst{}, 40, 1)
		pool.Advance()

		done := pool.TakeCompleted()
		Expect(done).To(HaveLen(1))
		Expect(done[0].Taken).To(BeTrue())
		Expect(done[0].Target).To(Equal(inst.Addr(100)))
	})

	It("computes a load's effective address without resolving its value", func() {
		pool.TryBegin(1, rs.Ready{Op: inst.OpLW, Mem: inst.MemRef[uint32]{Base: 1000, Offset: 8}}, rename.Inst{}, 0, 1)
		pool.Advance()

		done := pool.TakeCompleted()
		Expect(done[0].EffAddr).To(Equal(uint32(1008)))
	})

	It("drops entries after a squash cut point", func() {
		pool.TryBegin(1, rs.Ready{Op: inst.OpADD}, rename.Inst{}, 0, 5)
		pool.TryBegin(2, rs.Ready{Op: inst.OpADD}, rename.Inst{}, 0, 5)

		pool.KillTagsAfter(1)

		for i := 0; i < 10; i++ {
			pool.Advance()
		}
		Expect(pool.TakeCompleted()).To(HaveLen(1))
	})
})
