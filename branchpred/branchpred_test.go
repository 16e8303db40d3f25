package branchpred_test

import (
	"testing"

	"github.com/sarchlab/rvoo/branchpred"
	"github.com/sarchlab/rvoo/inst"
)

func TestBTFNTColdHeuristic(t *testing.T) {
	p := branchpred.New(branchpred.DefaultConfig())

	if !p.PredictDirect(100, 40) {
		t.Fatalf("expected backward branch to predict taken on cold entry")
	}
	if p.PredictDirect(100+1024*4, 40) {
		// different bht index due to modulo, not a useful assertion; just
		// exercise the call path without panicking.
		_ = p
	}
	if p.PredictDirect(40, 200) {
		t.Fatalf("expected forward branch to predict not-taken on cold entry")
	}
}

func TestDirectCounterSaturatesAndTracksOutcome(t *testing.T) {
	p := branchpred.New(branchpred.DefaultConfig())
	pc, target := inst.Addr(40), inst.Addr(200) // forward -> cold predicts not-taken

	for i := 0; i < 4; i++ {
		p.UpdateDirect(pc, target, true)
	}

	if !p.PredictDirect(pc, target) {
		t.Fatalf("expected counter to have saturated toward taken")
	}
}

func TestIndirectBTBMissThenHit(t *testing.T) {
	p := branchpred.New(branchpred.DefaultConfig())
	pc := inst.Addr(400)

	if _, known := p.PredictIndirect(pc); known {
		t.Fatalf("expected cold BTB miss")
	}

	p.UpdateIndirect(pc, 4096, 0, false)

	target, known := p.PredictIndirect(pc)
	if !known || target != 4096 {
		t.Fatalf("expected BTB hit with target 4096, got %v known=%v", target, known)
	}
}

func TestRASPushPop(t *testing.T) {
	p := branchpred.New(branchpred.DefaultConfig())

	p.PushRAS(104)
	p.PushRAS(204)

	addr, ok := p.PopRAS()
	if !ok || addr != 204 {
		t.Fatalf("expected LIFO pop of 204, got %v ok=%v", addr, ok)
	}

	addr, ok = p.PopRAS()
	if !ok || addr != 104 {
		t.Fatalf("expected LIFO pop of 104, got %v ok=%v", addr, ok)
	}

	if _, ok := p.PopRAS(); ok {
		t.Fatalf("expected empty RAS to report not-ok")
	}
}
