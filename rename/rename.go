// Package rename defines the instruction shape used once an instruction
// has passed through rename: its source and destination operands are
// physical registers, and any control-flow target has already been
// resolved to an absolute address.
package rename

import (
	"github.com/sarchlab/rvoo/inst"
	"github.com/sarchlab/rvoo/regfile"
)

// Inst is a renamed instruction: ArchReg operands have become PhysReg
// operands.
type Inst = inst.Inst[regfile.PhysReg, regfile.PhysReg, inst.Addr]
