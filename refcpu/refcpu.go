// Package refcpu implements the non-speculative reference interpreter used
// as the co-simulation oracle: it executes one instruction per step,
// in order, with no rename, no prediction, and no pipelining, so its final
// architectural state is the ground truth the out-of-order core's own final
// state must match.
package refcpu

import (
	"fmt"
	"io"

	"github.com/sarchlab/rvoo/inst"
	"github.com/sarchlab/rvoo/memsys"
	"github.com/sarchlab/rvoo/program"
)

// CPU is the reference interpreter.
type CPU struct {
	prog *program.Store
	mem  *memsys.Memory

	regs [inst.NumArchRegs]uint32
	pc   inst.Addr

	halted  bool
	retired uint64

	verbose io.Writer
}

// Option configures a CPU at construction.
type Option func(*CPU)

// WithInitialRegs seeds the architectural register file before execution
// starts. The zero register is always zero regardless of what is passed.
func WithInitialRegs(regs map[inst.ArchReg]uint32) Option {
	return func(c *CPU) {
		for r, v := range regs {
			c.regs[r] = v
		}
		c.regs[inst.Zero] = 0
	}
}

// WithEntry sets the initial program counter (default 0).
func WithEntry(pc inst.Addr) Option {
	return func(c *CPU) { c.pc = pc }
}

// WithVerbose prints the full register file after every retired instruction,
// matching the VERBOSE environment variable's contract on the CLI.
func WithVerbose(w io.Writer) Option {
	return func(c *CPU) { c.verbose = w }
}

// New creates a CPU executing prog against mem.
func New(prog *program.Store, mem *memsys.Memory, opts ...Option) *CPU {
	c := &CPU{prog: prog, mem: mem}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Regs returns a copy of the current architectural register file.
func (c *CPU) Regs() [inst.NumArchRegs]uint32 { return c.regs }

// Reg returns the value of one architectural register.
func (c *CPU) Reg(r inst.ArchReg) uint32 { return c.regs[r] }

// Mem exposes the main memory the CPU is executing against.
func (c *CPU) Mem() *memsys.Memory { return c.mem }

// PC returns the current program counter.
func (c *CPU) PC() inst.Addr { return c.pc }

// Halted reports whether execution has reached Halt.
func (c *CPU) Halted() bool { return c.halted }

// Retired returns the number of instructions executed so far.
func (c *CPU) Retired() uint64 { return c.retired }

// Step executes exactly one instruction. ok is false if the program counter
// does not name a valid instruction (misaligned or past the end of the
// program); this is a structural error per the error handling design, since
// a well-formed program always ends in Halt.
func (c *CPU) Step() (ok bool) {
	if c.halted {
		return true
	}

	in, ok := c.prog.Fetch(c.pc)
	if !ok {
		return false
	}

	c.exec(in)
	c.retired++

	if c.verbose != nil {
		c.dump()
	}

	return true
}

// Run steps until Halt or maxCycles instructions have retired, whichever
// comes first. It returns an error if maxCycles is exhausted without
// reaching Halt (the infinite-loop guard) or if Step reports a structural
// fetch failure.
func (c *CPU) Run(maxCycles uint64) error {
	for i := uint64(0); i < maxCycles; i++ {
		if c.halted {
			return nil
		}
		if ok := c.Step(); !ok {
			return fmt.Errorf("refcpu: fetch failed at pc=0x%x (misaligned or out of range)", c.pc)
		}
	}

	if c.halted {
		return nil
	}

	return fmt.Errorf("refcpu: exceeded max cycles (%d) without reaching halt", maxCycles)
}

func (c *CPU) setReg(r inst.ArchReg, v uint32) {
	if r == inst.Zero {
		return
	}
	c.regs[r] = v
}

func (c *CPU) exec(in inst.PCInst) {
	pc := c.pc
	next := pc + program.InstSize

	rs1 := c.regs[in.Src1]
	rs2 := c.regs[in.Src2]
	imm := uint32(in.Imm)

	switch in.Op {
	case inst.OpLB:
		c.setReg(in.Dst, uint32(c.mem.ReadB(c.effAddr(in))))
	case inst.OpLBU:
		c.setReg(in.Dst, c.mem.ReadBU(c.effAddr(in)))
	case inst.OpLH:
		c.setReg(in.Dst, uint32(c.mem.ReadH(c.effAddr(in))))
	case inst.OpLHU:
		c.setReg(in.Dst, c.mem.ReadHU(c.effAddr(in)))
	case inst.OpLW:
		c.setReg(in.Dst, c.mem.ReadW(c.effAddr(in)))

	case inst.OpSB:
		c.mem.WriteB(c.effAddr(in), rs1)
	case inst.OpSH:
		c.mem.WriteH(c.effAddr(in), rs1)
	case inst.OpSW:
		c.mem.WriteW(c.effAddr(in), rs1)

	case inst.OpADD:
		c.setReg(in.Dst, rs1+rs2)
	case inst.OpADDI:
		c.setReg(in.Dst, rs1+imm)
	case inst.OpSUB:
		c.setReg(in.Dst, rs1-rs2)
	case inst.OpAND:
		c.setReg(in.Dst, rs1&rs2)
	case inst.OpANDI:
		c.setReg(in.Dst, rs1&imm)
	case inst.OpOR:
		c.setReg(in.Dst, rs1|rs2)
	case inst.OpORI:
		c.setReg(in.Dst, rs1|imm)
	case inst.OpXOR:
		c.setReg(in.Dst, rs1^rs2)
	case inst.OpXORI:
		c.setReg(in.Dst, rs1^imm)
	case inst.OpSLL:
		c.setReg(in.Dst, rs1<<(rs2&0x1F))
	case inst.OpSLLI:
		c.setReg(in.Dst, rs1<<(imm&0x1F))
	case inst.OpSRL:
		c.setReg(in.Dst, rs1>>(rs2&0x1F))
	case inst.OpSRLI:
		c.setReg(in.Dst, rs1>>(imm&0x1F))
	case inst.OpSRA:
		c.setReg(in.Dst, uint32(int32(rs1)>>(rs2&0x1F)))
	case inst.OpSRAI:
		c.setReg(in.Dst, uint32(int32(rs1)>>(imm&0x1F)))
	case inst.OpSLT:
		c.setReg(in.Dst, boolToWord(int32(rs1) < int32(rs2)))
	case inst.OpSLTI:
		c.setReg(in.Dst, boolToWord(int32(rs1) < int32(imm)))
	case inst.OpSLTU:
		c.setReg(in.Dst, boolToWord(rs1 < rs2))
	case inst.OpSLTIU:
		c.setReg(in.Dst, boolToWord(rs1 < imm))

	case inst.OpMUL:
		c.setReg(in.Dst, rs1*rs2)
	case inst.OpDIV:
		if rs2 == 0 {
			c.setReg(in.Dst, 0xFFFFFFFF)
		} else {
			c.setReg(in.Dst, uint32(int32(rs1)/int32(rs2)))
		}
	case inst.OpDIVU:
		if rs2 == 0 {
			c.setReg(in.Dst, 0xFFFFFFFF)
		} else {
			c.setReg(in.Dst, rs1/rs2)
		}
	case inst.OpREM:
		if rs2 == 0 {
			c.setReg(in.Dst, rs1)
		} else {
			c.setReg(in.Dst, uint32(int32(rs1)%int32(rs2)))
		}
	case inst.OpREMU:
		if rs2 == 0 {
			c.setReg(in.Dst, rs1)
		} else {
			c.setReg(in.Dst, rs1%rs2)
		}

	case inst.OpLUI:
		c.setReg(in.Dst, imm)
	case inst.OpAUIPC:
		c.setReg(in.Dst, uint32(pc)+imm)

	case inst.OpBEQ:
		if rs1 == rs2 {
			next = in.Jump
		}
	case inst.OpBNE:
		if rs1 != rs2 {
			next = in.Jump
		}
	case inst.OpBLT:
		if int32(rs1) < int32(rs2) {
			next = in.Jump
		}
	case inst.OpBGE:
		if int32(rs1) >= int32(rs2) {
			next = in.Jump
		}
	case inst.OpBLTU:
		if rs1 < rs2 {
			next = in.Jump
		}
	case inst.OpBGEU:
		if rs1 >= rs2 {
			next = in.Jump
		}

	case inst.OpJAL:
		c.setReg(in.Dst, uint32(pc)+program.InstSize)
		next = in.Jump
	case inst.OpJALR:
		c.setReg(in.Dst, uint32(pc)+program.InstSize)
		next = inst.Addr((rs1 + imm) &^ 1)

	case inst.OpHALT:
		c.halted = true

	default:
		panic(fmt.Sprintf("refcpu: unimplemented opcode %v", in.Op))
	}

	c.pc = next
}

func (c *CPU) effAddr(in inst.PCInst) uint32 {
	return c.regs[in.Mem.Base] + uint32(in.Mem.Offset)
}

func boolToWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func (c *CPU) dump() {
	fmt.Fprintf(c.verbose, "pc=0x%08x retired=%d", c.pc, c.retired)
	for r := inst.ArchReg(0); r < inst.NumArchRegs; r++ {
		fmt.Fprintf(c.verbose, " %s=0x%08x", r, c.regs[r])
	}
	fmt.Fprintln(c.verbose)
}
