package regfile_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvoo/inst"
	"github.com/sarchlab/rvoo/regfile"
)

var _ = Describe("RegFile", func() {
	var rf *regfile.RegFile

	BeforeEach(func() {
		rf = regfile.New(40)
	})

	It("starts with every architectural register mapped and zeroed", func() {
		p := rf.Lookup(inst.A0)
		v, ready := rf.Read(p)
		Expect(ready).To(BeTrue())
		Expect(v).To(Equal(uint32(0)))
	})

	It("renames into a fresh physical register and leaves it not-ready", func() {
		p, ok := rf.Rename(inst.A0)
		Expect(ok).To(BeTrue())

		_, ready := rf.Read(p)
		Expect(ready).To(BeFalse())

		Expect(rf.Lookup(inst.A0)).To(Equal(p))
	})

	It("becomes ready once written", func() {
		p, _ := rf.Rename(inst.A0)
		rf.Write(p, 99)

		v, ready := rf.Read(p)
		Expect(ready).To(BeTrue())
		Expect(v).To(Equal(uint32(99)))
	})

	It("fails to rename once the free list is exhausted", func() {
		for i := 0; i < 100; i++ {
			if _, ok := rf.Rename(inst.A0); !ok {
				return
			}
		}
		Fail("expected Rename to eventually fail")
	})

	It("restores the RAT and frees registers on squash past a watermark", func() {
		before := rf.Lookup(inst.A0)
		wm := rf.Watermark()

		p1, _ := rf.Rename(inst.A0)
		Expect(rf.Lookup(inst.A0)).To(Equal(p1))

		freeBefore := rf.FreeCount()
		rf.RestoreTo(wm)

		Expect(rf.Lookup(inst.A0)).To(Equal(before))
		Expect(rf.FreeCount()).To(Equal(freeBefore + 1))
	})

	It("frees the displaced mapping on commit, not the new one", func() {
		p1, _ := rf.Rename(inst.A0)
		rf.Write(p1, 1)

		freeBefore := rf.FreeCount()
		rf.Commit()

		Expect(rf.FreeCount()).To(Equal(freeBefore + 1))
		Expect(rf.Lookup(inst.A0)).To(Equal(p1)) // still mapped; only the OLD mapping was freed
	})

	It("preserves watermark validity across an intervening commit", func() {
		p1, _ := rf.Rename(inst.A0)
		rf.Write(p1, 1)
		rf.Commit()

		wm := rf.Watermark()
		p2, _ := rf.Rename(inst.A1)
		Expect(rf.Lookup(inst.A1)).To(Equal(p2))

		rf.RestoreTo(wm)
		Expect(rf.Lookup(inst.A1)).ToNot(Equal(p2))
	})
})
