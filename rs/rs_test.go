package rs_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvoo/inst"
	"github.com/sarchlab/rvoo/regfile"
	"github.com/sarchlab/rvoo/rename"
	"github.com/sarchlab/rvoo/rs"
)

var _ = Describe("RS", func() {
	var (
		station *rs.RS
		rf      *regfile.RegFile
	)

	BeforeEach(func() {
		station = rs.New(4)
		rf = regfile.New(40)
	})

	It("does not issue an instruction whose source is still pending", func() {
		pd, _ := rf.Rename(inst.A0) // A0 now Reserved, not Active
		station.TryDispatch(1, rename.Inst{Op: inst.OpADDI, Src1: pd, Dst: pd, Imm: 1})

		issued := station.Issue(rf, 4)
		Expect(issued).To(BeEmpty())
	})

	It("issues once the source becomes ready, oldest first", func() {
		p1, _ := rf.Rename(inst.A0)
		rf.Write(p1, 5)
		station.TryDispatch(1, rename.Inst{Op: inst.OpADDI, Src1: p1, Dst: p1, Imm: 1})

		p2, _ := rf.Rename(inst.A1)
		rf.Write(p2, 9)
		station.TryDispatch(2, rename.Inst{Op: inst.OpADDI, Src1: p2, Dst: p2, Imm: 1})

		issued := station.Issue(rf, 1)
		Expect(issued).To(HaveLen(1))
		Expect(issued[0].Tag).To(Equal(inst.Tag(1)))
		Expect(issued[0].Inst.Src1).To(Equal(uint32(5)))

		Expect(station.Len()).To(Equal(1))
	})

	It("enforces capacity", func() {
		for i := 0; i < 4; i++ {
			Expect(station.TryDispatch(inst.Tag(i), rename.Inst{})).To(BeTrue())
		}
		Expect(station.TryDispatch(4, rename.Inst{})).To(BeFalse())
	})

	It("drops entries after a squash cut point", func() {
		station.TryDispatch(1, rename.Inst{})
		station.TryDispatch(2, rename.Inst{})
		station.TryDispatch(3, rename.Inst{})

		station.KillTagsAfter(1)
		Expect(station.Len()).To(Equal(1))
	})

	It("reinserts a pulled-back entry keeping ascending tag order", func() {
		p1, _ := rf.Rename(inst.A0)
		rf.Write(p1, 1)
		station.TryDispatch(1, rename.Inst{Op: inst.OpADDI, Src1: p1, Dst: p1, Imm: 1})

		p3, _ := rf.Rename(inst.A2)
		rf.Write(p3, 3)
		station.TryDispatch(3, rename.Inst{Op: inst.OpADDI, Src1: p3, Dst: p3, Imm: 1})

		issued := station.Issue(rf, 4)
		Expect(issued).To(HaveLen(2))

		station.Reinsert(2, rename.Inst{Op: inst.OpADDI, Src1: p1, Dst: p1, Imm: 2})
		Expect(station.Len()).To(Equal(1))

		again := station.Issue(rf, 4)
		Expect(again).To(HaveLen(1))
		Expect(again[0].Tag).To(Equal(inst.Tag(2)))
	})
})
