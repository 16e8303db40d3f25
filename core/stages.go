package core

import (
	"fmt"

	"github.com/sarchlab/rvoo/eu"
	"github.com/sarchlab/rvoo/inst"
	"github.com/sarchlab/rvoo/lsq"
	"github.com/sarchlab/rvoo/rob"
)

// stageCommit retires up to Width executed instructions from the head of
// the reorder buffer, in order, stopping at the first one that has not yet
// executed or (after popping it) at a Halt.
func (p *Pipeline) stageCommit() {
	for i := 0; i < p.cfg.Width; i++ {
		head, ok := p.rob.Peek()
		if !ok || head.Status != rob.Executed {
			return
		}

		if head.Inst.Op == inst.OpHALT {
			p.rob.TryPop()
			p.halted = true
			delete(p.pcByTag, head.Tag)
			p.stats.InstsRetired++
			return
		}

		e, ok := p.rob.TryPop()
		if !ok {
			return
		}
		p.commitOne(e)
	}
}

func (p *Pipeline) commitOne(e rob.Entry) {
	tag := e.Tag
	in := e.Inst

	// A zero destination is never renamed (it stays on physical register
	// 0), so it has no rename log entry to release.
	if in.Op.WritesDst() && in.Dst != 0 {
		p.rf.Commit()
	}

	switch {
	case in.Op.IsLoad():
		p.lsq.RetireOldestLoad()
	case in.Op.IsStore():
		p.commitStore(tag)
	}

	delete(p.watermarkAfter, tag)
	delete(p.branchInfo, tag)
	delete(p.pcByTag, tag)

	p.stats.InstsRetired++
	if _, fused := p.fusedTag[tag]; fused {
		p.stats.FusedRetired++
		delete(p.fusedTag, tag)
	}
}

func (p *Pipeline) commitStore(tag inst.Tag) {
	t, addr, size, value, ok := p.lsq.PeekOldestStore()
	if !ok || t != tag {
		panic(fmt.Sprintf("core: commit store mismatch: rob tag=%d lsq tag=%d ok=%v", tag, t, ok))
	}

	switch size {
	case inst.Byte:
		p.mem.WriteB(addr, value)
	case inst.HalfWord:
		p.mem.WriteH(addr, value)
	case inst.Word:
		p.mem.WriteW(addr, value)
	}

	p.lsq.RetireOldestStore()
}

// stageWriteback drains every execution unit result that completed this
// cycle, writing results back to the physical register file, updating the
// branch predictor, and surfacing any misprediction as a redirect.
func (p *Pipeline) stageWriteback() []redirect {
	var redirects []redirect

	for _, r := range p.eus.TakeCompleted() {
		if rd, ok := p.writebackOne(r); ok {
			redirects = append(redirects, rd)
		}
	}

	return redirects
}

func (p *Pipeline) writebackOne(r eu.Result) (redirect, bool) {
	switch {
	case r.Op.IsLoad():
		p.lsq.CompleteLoad(r.Tag, r.Value)
		p.writeDst(r)
		p.rob.MarkExecuted(r.Tag)

	case r.Op.IsStore():
		euKills, mispredicts := p.lsq.SetStoreAddrValue(r.Tag, r.EffAddr, r.Value)
		p.rob.MarkExecuted(r.Tag)

		for _, killed := range euKills {
			if orig, ok := p.eus.KillSpecific(killed); ok {
				p.lsq.KillInflight(killed)
				p.rs.Reinsert(killed, orig)
			}
		}

		// SetStoreAddrValue scans loads oldest first, so mispredicts is
		// already tag-ascending; only the earliest need redirect, since it
		// squashes everything younger, including the rest of this list.
		if len(mispredicts) > 0 {
			earliest := mispredicts[0]
			p.stats.MemOrderMispredicts++
			return redirect{cut: earliest - 1, target: p.pcByTag[earliest]}, true
		}

	case r.Op.IsBranch():
		info := p.branchInfo[r.Tag]
		p.pred.UpdateDirect(info.pc, info.takenTarget, r.Taken)
		p.rob.MarkExecuted(r.Tag)

		if info.predictedTaken != r.Taken {
			p.stats.DirectMispredicts++
			target := info.notTakenTarget
			if r.Taken {
				target = info.takenTarget
			}
			return redirect{cut: r.Tag, target: target}, true
		}

	case r.Op.IsIndirectJump():
		info := p.branchInfo[r.Tag]
		p.pred.UpdateIndirect(info.pc, r.Target, info.predictedPC, info.predKnown)
		p.writeDst(r)
		p.rob.MarkExecuted(r.Tag)

		if !info.predKnown || info.predictedPC != r.Target {
			p.stats.IndirectMispredicts++
			return redirect{cut: r.Tag, target: r.Target}, true
		}

	case r.Op == inst.OpHALT:
		p.rob.MarkExecuted(r.Tag)

	default:
		p.writeDst(r)
		p.rob.MarkExecuted(r.Tag)
	}

	return redirect{}, false
}

func (p *Pipeline) writeDst(r eu.Result) {
	if !r.Op.WritesDst() {
		return
	}
	p.rf.Write(r.Dst, r.Value)
}

// stageIssueExecute scans the reservation station for operand-ready
// entries, oldest first, and hands up to Width of them to the execution
// units. A load additionally consults the load/store queue's ordering
// check before being bound to one: a load the queue blocks stays parked in
// the reservation station instead of occupying a load/store unit's slot
// for as long as it remains blocked.
func (p *Pipeline) stageIssueExecute() {
	issued := p.rs.Issue(p.rf, p.cfg.Width)

	for _, is := range issued {
		tag := is.Tag
		in := is.Inst
		pc := p.pcByTag[tag]

		if in.Op.IsLoad() {
			p.lsq.SetLoadAddr(tag, in.Mem.Base+uint32(in.Mem.Offset))

			if action, _ := p.lsq.Check(tag); action == lsq.Blocked {
				p.rs.Reinsert(tag, is.Orig)
				continue
			}
		}

		if !p.eus.TryBegin(tag, in, is.Orig, pc, in.Op.Latency()) {
			// RS capacity and per-kind EU concurrency are sized together at
			// configuration time, so a ready instruction always finds room;
			// treat the contrary as a structural configuration error.
			panic(fmt.Sprintf("core: no execution unit available for issued tag %d (op %v)", tag, in.Op))
		}
	}
}

func isSignedLoad(op inst.Op) bool {
	switch op {
	case inst.OpLB, inst.OpLH:
		return true
	default:
		return false
	}
}
