package program_test

import (
	"testing"

	"github.com/sarchlab/rvoo/inst"
	"github.com/sarchlab/rvoo/program"
)

func TestLoadResolvesLabels(t *testing.T) {
	insts := []inst.LabeledInst{
		{Op: inst.OpADDI, Dst: inst.A0, Src1: inst.Zero, Imm: 1},
		{Op: inst.OpBEQ, Src1: inst.A0, Src2: inst.Zero, Jump: "done"},
		{Op: inst.OpJAL, Dst: inst.Zero, Jump: "loop"},
		{Op: inst.OpHALT},
	}
	labels := map[inst.Label]inst.Addr{
		"loop": 0,
		"done": 12,
	}

	store, err := program.Load(insts, labels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pc, ok := store.Fetch(4)
	if !ok {
		t.Fatalf("expected fetch at pc=4 to succeed")
	}
	if pc.Jump != 12 {
		t.Fatalf("expected label 'done' resolved to 12, got %v", pc.Jump)
	}

	if store.EndAddr() != inst.Addr(len(insts)*program.InstSize) {
		t.Fatalf("unexpected EndAddr %v", store.EndAddr())
	}
}

func TestLoadRejectsUndefinedLabel(t *testing.T) {
	insts := []inst.LabeledInst{
		{Op: inst.OpJAL, Dst: inst.Zero, Jump: "nope"},
	}

	if _, err := program.Load(insts, map[inst.Label]inst.Addr{}); err == nil {
		t.Fatalf("expected error for undefined label")
	}
}

func TestFetchRejectsMisalignedOrOutOfRangePC(t *testing.T) {
	insts := []inst.LabeledInst{{Op: inst.OpHALT}}
	store, err := program.Load(insts, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := store.Fetch(1); ok {
		t.Fatalf("expected misaligned fetch to fail")
	}
	if _, ok := store.Fetch(400); ok {
		t.Fatalf("expected out-of-range fetch to fail")
	}
}
