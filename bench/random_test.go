package bench

import (
	"fmt"
	"math/rand"

	"github.com/sarchlab/rvoo/inst"
	"github.com/sarchlab/rvoo/program"
)

// randomRegs is the small working set random programs are confined to, kept
// separate from the zero register and from a0, which always holds the
// scratch memory region's base address.
var randomRegs = []inst.ArchReg{inst.T0, inst.T1, inst.T2, inst.T3, inst.T4, inst.T5, inst.T6}

var randomAluOps = []inst.Op{
	inst.OpADD, inst.OpSUB, inst.OpAND, inst.OpOR, inst.OpXOR,
	inst.OpSLL, inst.OpSRL, inst.OpSRA, inst.OpSLT, inst.OpSLTU, inst.OpMUL,
}

var randomImmOps = []inst.Op{
	inst.OpADDI, inst.OpANDI, inst.OpORI, inst.OpXORI,
	inst.OpSLLI, inst.OpSRLI, inst.OpSRAI, inst.OpSLTI,
}

// randomProgram generates a short straight-line instruction sequence over
// ALU ops, immediate-ALU ops, and word loads/stores confined to a small
// scratch region based at a0 — the "safe subset" spec.md §8 calls for: no
// backward branches (so it is guaranteed to terminate), no misaligned or
// out-of-range accesses, and no register outside the fixed working set, so
// every generated program is well-formed by construction.
func randomProgram(rng *rand.Rand) (*program.Store, map[inst.ArchReg]uint32) {
	const scratchBase = uint32(0x2000)
	const scratchWords = 8

	regs := map[inst.ArchReg]uint32{inst.A0: scratchBase}

	n := 20 + rng.Intn(30)
	insts := make([]inst.LabeledInst, 0, n)

	pickReg := func() inst.ArchReg {
		return randomRegs[rng.Intn(len(randomRegs))]
	}

	for i := 0; i < n; i++ {
		switch rng.Intn(4) {
		case 0:
			op := randomAluOps[rng.Intn(len(randomAluOps))]
			insts = append(insts, inst.LabeledInst{
				Op: op, Dst: pickReg(), Src1: pickReg(), Src2: pickReg(),
			})
		case 1:
			op := randomImmOps[rng.Intn(len(randomImmOps))]
			insts = append(insts, inst.LabeledInst{
				Op: op, Dst: pickReg(), Src1: pickReg(),
				Imm: inst.Immediate(rng.Intn(64) - 32),
			})
		case 2:
			off := inst.Immediate(4 * rng.Intn(scratchWords))
			insts = append(insts, inst.LabeledInst{
				Op: inst.OpSW, Src1: pickReg(), Size: inst.Word,
				Mem: inst.MemRef[inst.ArchReg]{Base: inst.A0, Offset: off},
			})
		case 3:
			off := inst.Immediate(4 * rng.Intn(scratchWords))
			insts = append(insts, inst.LabeledInst{
				Op: inst.OpLW, Dst: pickReg(), Size: inst.Word,
				Mem: inst.MemRef[inst.ArchReg]{Base: inst.A0, Offset: off},
			})
		}
	}

	insts = append(insts, inst.LabeledInst{Op: inst.OpHALT})

	labels := map[inst.Label]inst.Addr{}
	store, err := program.Load(insts, labels)
	if err != nil {
		panic(fmt.Sprintf("bench: random program failed to load: %v", err))
	}

	return store, regs
}
