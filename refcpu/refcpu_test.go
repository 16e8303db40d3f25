package refcpu_test

import (
	"testing"

	"github.com/sarchlab/rvoo/inst"
	"github.com/sarchlab/rvoo/memsys"
	"github.com/sarchlab/rvoo/program"
	"github.com/sarchlab/rvoo/refcpu"
)

func mustLoad(t *testing.T, insts []inst.LabeledInst, labels map[inst.Label]inst.Addr) *program.Store {
	t.Helper()
	st, err := program.Load(insts, labels)
	if err != nil {
		t.Fatalf("program.Load: %v", err)
	}
	return st
}

func TestAddImmediateAndHalt(t *testing.T) {
	prog := mustLoad(t, []inst.LabeledInst{
		{Op: inst.OpADDI, Dst: inst.A0, Src1: inst.Zero, Imm: 41},
		{Op: inst.OpADDI, Dst: inst.A0, Src1: inst.A0, Imm: 1},
		{Op: inst.OpHALT},
	}, nil)

	cpu := refcpu.New(prog, memsys.NewMemory())
	if err := cpu.Run(100); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !cpu.Halted() {
		t.Fatalf("expected halted")
	}
	if got := cpu.Reg(inst.A0); got != 42 {
		t.Fatalf("a0 = %d, want 42", got)
	}
	if cpu.Retired() != 3 {
		t.Fatalf("retired = %d, want 3", cpu.Retired())
	}
}

func TestBranchLoop(t *testing.T) {
	// for (a0 = 0; a0 != 5; a0++) {}
	prog := mustLoad(t, []inst.LabeledInst{
		{Op: inst.OpADDI, Dst: inst.A0, Src1: inst.Zero, Imm: 0},
		{Op: inst.OpADDI, Dst: inst.A1, Src1: inst.Zero, Imm: 5},
		{Op: inst.OpBEQ, Src1: inst.A0, Src2: inst.A1, Jump: "done"},
		{Op: inst.OpADDI, Dst: inst.A0, Src1: inst.A0, Imm: 1},
		{Op: inst.OpJAL, Dst: inst.Zero, Jump: "loop"},
		{Op: inst.OpHALT},
	}, map[inst.Label]inst.Addr{"loop": 2 * program.InstSize, "done": 5 * program.InstSize})

	cpu := refcpu.New(prog, memsys.NewMemory())
	if err := cpu.Run(1000); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := cpu.Reg(inst.A0); got != 5 {
		t.Fatalf("a0 = %d, want 5", got)
	}
}

func TestLoadStoreRoundTrip(t *testing.T) {
	prog := mustLoad(t, []inst.LabeledInst{
		{Op: inst.OpADDI, Dst: inst.A0, Src1: inst.Zero, Imm: 100},
		{Op: inst.OpADDI, Dst: inst.A1, Src1: inst.Zero, Imm: -7},
		{Op: inst.OpSW, Src1: inst.A1, Mem: inst.MemRef[inst.ArchReg]{Base: inst.A0, Offset: 0}, Size: inst.Word},
		{Op: inst.OpLW, Dst: inst.A2, Mem: inst.MemRef[inst.ArchReg]{Base: inst.A0, Offset: 0}, Size: inst.Word},
		{Op: inst.OpHALT},
	}, nil)

	cpu := refcpu.New(prog, memsys.NewMemory())
	if err := cpu.Run(100); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := int32(cpu.Reg(inst.A2)); got != -7 {
		t.Fatalf("a2 = %d, want -7", got)
	}
}

func TestDivideByZero(t *testing.T) {
	prog := mustLoad(t, []inst.LabeledInst{
		{Op: inst.OpADDI, Dst: inst.A0, Src1: inst.Zero, Imm: 10},
		{Op: inst.OpDIV, Dst: inst.A1, Src1: inst.A0, Src2: inst.Zero},
		{Op: inst.OpHALT},
	}, nil)

	cpu := refcpu.New(prog, memsys.NewMemory())
	if err := cpu.Run(100); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := cpu.Reg(inst.A1); got != 0xFFFFFFFF {
		t.Fatalf("a1 = 0x%x, want 0xFFFFFFFF", got)
	}
}

func TestMaxCyclesGuardTrips(t *testing.T) {
	prog := mustLoad(t, []inst.LabeledInst{
		{Op: inst.OpJAL, Dst: inst.Zero, Jump: "here"},
	}, map[inst.Label]inst.Addr{"here": 0})

	cpu := refcpu.New(prog, memsys.NewMemory())
	if err := cpu.Run(50); err == nil {
		t.Fatalf("expected max-cycles guard to trip on an infinite loop")
	}
}
