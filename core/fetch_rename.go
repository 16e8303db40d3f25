package core

import (
	"fmt"

	"github.com/sarchlab/rvoo/inst"
	"github.com/sarchlab/rvoo/program"
	"github.com/sarchlab/rvoo/regfile"
	"github.com/sarchlab/rvoo/rename"
)

// stageFetchDecode fetches and decodes up to Width instructions (counting a
// fused pair as one), predicting every control-flow instruction's outcome
// so fetch can keep moving without waiting for execute. It stalls once the
// next PC is unknown (an unresolved indirect jump) or once a Halt has been
// fetched, so it never speculates past the program's own end.
func (p *Pipeline) stageFetchDecode() {
	for len(p.pending) < p.cfg.Width {
		if !p.pcKnown {
			p.stats.StallFetch++
			return
		}
		if p.haltFetched {
			return
		}

		pc := p.pc
		in, ok := p.prog.Fetch(pc)
		if !ok {
			return
		}

		f, nextPC, known := p.decodeOne(pc, in)
		p.pending = append(p.pending, f)

		if f.in.Op == inst.OpHALT {
			p.haltFetched = true
		}

		p.pc = nextPC
		p.pcKnown = known
	}
}

func (p *Pipeline) decodeOne(pc inst.Addr, in inst.PCInst) (f fetched, nextPC inst.Addr, known bool) {
	tag := p.nextTag
	p.nextTag++

	if fusedIn, kind, ok := p.tryFuse(pc, in); ok {
		return fetched{tag: tag, pc: pc, in: fusedIn, fusedKind: kind}, pc + 2*program.InstSize, true
	}

	f = fetched{tag: tag, pc: pc, in: in}

	switch {
	case in.Op.IsBranch():
		taken := p.pred.PredictDirect(pc, in.Jump)
		notTaken := pc + program.InstSize

		p.branchInfo[tag] = &branchRec{
			pc:             pc,
			predictedTaken: taken,
			takenTarget:    in.Jump,
			notTakenTarget: notTaken,
		}

		if taken {
			return f, in.Jump, true
		}
		return f, notTaken, true

	case in.Op.IsDirectJump():
		if in.Dst == inst.RA {
			p.pred.PushRAS(pc + program.InstSize)
		}
		return f, in.Jump, true

	case in.Op.IsIndirectJump():
		target, knownTarget := p.predictIndirectJump(pc, in)
		p.branchInfo[tag] = &branchRec{pc: pc, predictedPC: target, predKnown: knownTarget}

		if in.Dst == inst.RA {
			p.pred.PushRAS(pc + program.InstSize)
		}

		if !knownTarget {
			return f, 0, false
		}
		return f, target, true

	default:
		return f, pc + program.InstSize, true
	}
}

// predictIndirectJump predicts a jalr's target. A return idiom (jalr
// zero, 0(ra)) is predicted from the return-address stack when possible,
// since it is far more accurate than the general indirect BTB for the
// common call/return pattern; anything else falls back to the BTB.
func (p *Pipeline) predictIndirectJump(pc inst.Addr, in inst.PCInst) (inst.Addr, bool) {
	if in.Src1 == inst.RA && in.Dst == inst.Zero {
		if addr, ok := p.pred.PopRAS(); ok {
			return addr, true
		}
	}
	return p.pred.PredictIndirect(pc)
}

// tryFuse recognizes the two macro-op-fusion patterns this machine
// supports: slli+add computing a scaled effective address, and lui+addi
// reconstructing a 32-bit immediate (the exact pair the assembler expands
// a large `li` pseudo-op into). It looks at most one instruction ahead, so
// it never stalls fetch to do so.
func (p *Pipeline) tryFuse(pc inst.Addr, cur inst.PCInst) (inst.PCInst, inst.FusedKind, bool) {
	next, ok := p.prog.Fetch(pc + program.InstSize)
	if !ok {
		return inst.PCInst{}, inst.NotFused, false
	}

	switch {
	case cur.Op == inst.OpSLLI && next.Op == inst.OpADD && next.Dst == cur.Dst &&
		(next.Src1 == cur.Dst) != (next.Src2 == cur.Dst):
		other := next.Src1
		if next.Src1 == cur.Dst {
			other = next.Src2
		}
		fused := inst.PCInst{
			Op:   inst.OpEffAddr,
			Src1: cur.Src1,
			Src2: other,
			Dst:  next.Dst,
			Imm:  cur.Imm,
		}
		return fused, inst.FusedEffAddr, true

	case cur.Op == inst.OpLUI && next.Op == inst.OpADDI &&
		next.Src1 == cur.Dst && next.Dst == cur.Dst:
		fused := inst.PCInst{
			Op:  inst.OpLoadFullImm,
			Dst: next.Dst,
			Imm: cur.Imm + next.Imm,
		}
		return fused, inst.FusedLoadFullImm, true
	}

	return inst.PCInst{}, inst.NotFused, false
}

// stageRename renames up to Width pending instructions into physical
// registers and dispatches them into the ROB, RS, and (for memory ops) the
// LSQ, stalling the whole batch at the first instruction any structural
// resource can't yet admit.
func (p *Pipeline) stageRename() {
	consumed := 0

	for consumed < len(p.pending) && consumed < p.cfg.Width {
		f := p.pending[consumed]
		in := f.in

		if p.rob.IsFull() {
			p.stats.StallROB++
			break
		}
		if p.rs.IsFull() {
			p.stats.StallRS++
			break
		}
		if in.Op.IsLoad() && p.lsq.LoadQueueFull() {
			p.stats.StallLSQ++
			break
		}
		if in.Op.IsStore() && p.lsq.StoreQueueFull() {
			p.stats.StallLSQ++
			break
		}
		if in.Op.WritesDst() && in.Dst != inst.Zero && p.rf.FreeCount() == 0 {
			p.stats.StallPhysReg++
			break
		}

		renamed, ok := p.performRename(in)
		if !ok {
			panic(fmt.Sprintf("core: rename failed for tag %d despite passing its capacity checks", f.tag))
		}

		p.rob.TryPush(f.tag, renamed)
		p.rs.TryDispatch(f.tag, renamed)

		switch {
		case in.Op.IsLoad():
			p.lsq.DispatchLoad(f.tag, in.Size, isSignedLoad(in.Op))
		case in.Op.IsStore():
			p.lsq.DispatchStore(f.tag, in.Size)
		}

		p.pcByTag[f.tag] = f.pc
		p.watermarkAfter[f.tag] = p.rf.Watermark()
		if f.fusedKind != inst.NotFused {
			p.fusedTag[f.tag] = f.fusedKind
		}

		consumed++
	}

	p.pending = p.pending[consumed:]
}

func (p *Pipeline) performRename(in inst.PCInst) (rename.Inst, bool) {
	return inst.Remap[inst.ArchReg, inst.ArchReg, inst.Addr, regfile.PhysReg, regfile.PhysReg, inst.Addr](
		in,
		func(r inst.ArchReg) (regfile.PhysReg, bool) { return p.rf.Lookup(r), true },
		func(r inst.ArchReg) (regfile.PhysReg, bool) {
			if r == inst.Zero {
				return regfile.PhysReg(inst.Zero), true
			}
			return p.rf.Rename(r)
		},
		func(a inst.Addr) (inst.Addr, bool) { return a, true },
	)
}
