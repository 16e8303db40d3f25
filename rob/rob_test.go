package rob_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvoo/inst"
	"github.com/sarchlab/rvoo/rename"
	"github.com/sarchlab/rvoo/rob"
)

var _ = Describe("ROB", func() {
	var r *rob.ROB

	BeforeEach(func() {
		r = rob.New(4)
	})

	It("rejects pop of the head until it has executed", func() {
		r.TryPush(1, rename.Inst{Op: inst.OpADD})

		_, ok := r.TryPop()
		Expect(ok).To(BeFalse())

		r.MarkExecuted(1)
		entry, ok := r.TryPop()
		Expect(ok).To(BeTrue())
		Expect(entry.Tag).To(Equal(inst.Tag(1)))
	})

	It("enforces capacity", func() {
		for i := 0; i < 4; i++ {
			Expect(r.TryPush(inst.Tag(i), rename.Inst{})).To(BeTrue())
		}
		Expect(r.TryPush(4, rename.Inst{})).To(BeFalse())
	})

	It("removes tags after a squash cut point", func() {
		for i := 0; i < 4; i++ {
			r.TryPush(inst.Tag(i), rename.Inst{})
		}

		r.KillTagsAfter(1)
		Expect(r.Len()).To(Equal(2))

		r.MarkExecuted(0)
		r.MarkExecuted(1)

		e0, _ := r.TryPop()
		Expect(e0.Tag).To(Equal(inst.Tag(0)))

		e1, _ := r.TryPop()
		Expect(e1.Tag).To(Equal(inst.Tag(1)))
	})
})
