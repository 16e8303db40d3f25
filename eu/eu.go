// Package eu implements the typed execution units that carry out ALU,
// memory-address, branch, and multiply/divide computations over multiple
// cycles.
package eu

import (
	"fmt"

	"github.com/sarchlab/rvoo/inst"
	"github.com/sarchlab/rvoo/lsq"
	"github.com/sarchlab/rvoo/memsys"
	"github.com/sarchlab/rvoo/regfile"
	"github.com/sarchlab/rvoo/rename"
	"github.com/sarchlab/rvoo/rs"
)

// Result is what an execution unit produces once an entry completes. Which
// fields are meaningful depends on the originating op: ALU/Special ops set
// Value; LoadStore ops set EffAddr, a store also sets Value to the data it
// will write (memory itself is written only at commit), and a load's Value
// is the extended result taken from a forwarding store or the memory
// hierarchy; Branch ops set Taken/Target, and JAL/JALR also set Value to
// the return address. Dst carries the destination physical register for
// every op that writes one, so the writeback stage never has to look the
// instruction back up.
type Result struct {
	Tag     inst.Tag
	Op      inst.Op
	Dst     regfile.PhysReg
	Value   uint32
	EffAddr uint32
	Taken   bool
	Target  inst.Addr
}

type inflight struct {
	tag       inst.Tag
	in        rs.Ready
	orig      rename.Inst
	remaining uint64
	result    Result

	// loadForwardReady is set once a load's value has been forwarded
	// directly from an in-flight store, bypassing the memory hierarchy.
	loadForwardReady bool
}

// Unit is one execution unit of a given kind: a small bag of concurrently
// executing entries, each with its own remaining-latency countdown.
type Unit struct {
	kind     inst.EuType
	capacity int
	entries  []inflight
}

// NewUnit creates a Unit of the given kind and concurrent-entry capacity.
func NewUnit(kind inst.EuType, capacity int) *Unit {
	return &Unit{kind: kind, capacity: capacity}
}

func (u *Unit) hasRoom() bool { return len(u.entries) < u.capacity }

// Pool is the full set of execution units, grouped by kind. Multiple units
// of the same kind may exist (e.g. two ALUs); TryBegin places a new entry
// in whichever unit of the right kind has room. A load's completion is
// gated on the load/store queue's ordering check and, once cleared to
// proceed, the memory hierarchy; its latency is not a fixed countdown.
type Pool struct {
	units map[inst.EuType][]*Unit
	hier  *memsys.Hierarchy
	lsq   *lsq.LSQ
}

// Config describes how many units of each kind to build, and how many
// entries each unit can hold concurrently.
type Config struct {
	AluUnits       int
	LoadStoreUnits int
	BranchUnits    int
	SpecialUnits   int
	Concurrency    int // per-unit bag size
}

// DefaultConfig is a reasonable width-4 superscalar execution back end.
func DefaultConfig() Config {
	return Config{AluUnits: 2, LoadStoreUnits: 2, BranchUnits: 1, SpecialUnits: 1, Concurrency: 4}
}

// NewPool builds a Pool per cfg. hier and lq may both be nil, in which case
// loads complete after their nominal one-cycle latency like any other op
// (used by tests that don't need memory-ordering or memory-timing fidelity).
func NewPool(cfg Config, hier *memsys.Hierarchy, lq *lsq.LSQ) *Pool {
	p := &Pool{units: make(map[inst.EuType][]*Unit), hier: hier, lsq: lq}

	add := func(kind inst.EuType, n int) {
		for i := 0; i < n; i++ {
			p.units[kind] = append(p.units[kind], NewUnit(kind, cfg.Concurrency))
		}
	}

	add(inst.EuAlu, cfg.AluUnits)
	add(inst.EuLoadStore, cfg.LoadStoreUnits)
	add(inst.EuBranch, cfg.BranchUnits)
	add(inst.EuSpecial, cfg.SpecialUnits)

	return p
}

// TryBegin computes in's result eagerly and places it in a unit of the
// right kind with room, to complete after latency cycles. It returns false
// if every unit of that kind is already full. For a load, the effective
// address is also registered with the load/store queue immediately, since
// it is known the instant the base register is read. orig is the
// instruction's renamed (physical-register-operand) form, kept alongside
// the resolved Ready form so KillSpecific can hand it back to the
// reservation station unchanged if a memory-order replay later needs to
// surgically pull this entry back out.
func (p *Pool) TryBegin(tag inst.Tag, in rs.Ready, orig rename.Inst, pc inst.Addr, latency uint64) bool {
	kind := in.Op.EuType()

	for _, u := range p.units[kind] {
		if u.hasRoom() {
			r := compute(tag, in, pc)

			if in.Op.IsLoad() && p.lsq != nil {
				p.lsq.SetLoadAddr(tag, r.EffAddr)
			}

			u.entries = append(u.entries, inflight{
				tag:       tag,
				in:        in,
				orig:      orig,
				remaining: latency,
				result:    r,
			})
			return true
		}
	}

	return false
}

// Advance decrements every in-flight entry's remaining-latency countdown by
// one cycle. A load instead polls the load/store queue's ordering check
// each cycle: Blocked leaves it parked in place, Forward resolves its value
// immediately from an in-flight store, and GoToMemory (re-)issues a
// hierarchy access, which is a no-op after the first since BeginAccess
// ignores a tag already pending. The hierarchy itself is ticked once here.
func (p *Pool) Advance() {
	for _, units := range p.units {
		for _, u := range units {
			for i := range u.entries {
				e := &u.entries[i]

				if e.in.Op.IsLoad() && p.lsq != nil {
					p.advanceLoad(e)
					continue
				}

				if e.remaining > 0 {
					e.remaining--
				}
			}
		}
	}

	if p.hier != nil {
		p.hier.Tick()
	}
}

func (p *Pool) advanceLoad(e *inflight) {
	if e.loadForwardReady {
		return
	}

	action, fwd := p.lsq.Check(e.tag)
	switch action {
	case lsq.Forward:
		e.result.Value = extendLoad(e.in.Op, fwd)
		e.loadForwardReady = true
		p.lsq.BeginExecute(e.tag)
	case lsq.GoToMemory:
		p.lsq.BeginExecute(e.tag)
		if p.hier != nil {
			p.hier.BeginAccess(uint64(e.tag), e.result.EffAddr, int(e.in.Size), false, 0)
		}
	case lsq.Blocked:
		// stageIssueExecute already ran Check before binding this load to a
		// unit, and a store address once known stays known, so Blocked here
		// means an older store's known range overlaps the load without
		// matching it exactly; the load stays parked in its EU slot until
		// that store retires from the queue.
	}
}

// TakeCompleted removes and returns every entry that is done: a forwarded
// load is done as soon as Advance resolved it, a load sent to memory is
// done once the hierarchy reports access_complete, and everything else is
// done once its countdown reaches zero.
func (p *Pool) TakeCompleted() []Result {
	var done []Result

	for _, units := range p.units {
		for _, u := range units {
			remaining := u.entries[:0:0]
			for _, e := range u.entries {
				if e.in.Op.IsLoad() && p.lsq != nil {
					if e.loadForwardReady {
						done = append(done, e.result)
						continue
					}
					if p.hier != nil {
						if ok, data := p.hier.AccessComplete(uint64(e.tag)); ok {
							r := e.result
							r.Value = extendLoad(e.in.Op, uint32(data))
							done = append(done, r)
							continue
						}
					}
					remaining = append(remaining, e)
					continue
				}

				if e.remaining == 0 {
					done = append(done, e.result)
				} else {
					remaining = append(remaining, e)
				}
			}
			u.entries = remaining
		}
	}

	return done
}

// KillTagsAfter drops every in-flight entry whose tag exceeds cut, canceling
// any hierarchy access a killed load had started.
func (p *Pool) KillTagsAfter(cut inst.Tag) {
	for _, units := range p.units {
		for _, u := range units {
			remaining := u.entries[:0:0]
			for _, e := range u.entries {
				if e.tag <= cut {
					remaining = append(remaining, e)
					continue
				}
				if p.hier != nil && e.in.Op.IsLoad() {
					p.hier.CancelAccess(uint64(e.tag))
				}
			}
			u.entries = remaining
		}
	}
}

// KillSpecific surgically extracts one in-flight entry, as opposed to
// KillTagsAfter's range cut: it is how a memory-order replay pulls an
// InFlight load back out of its execution unit (the eu_kills half of
// store_addr_known's contract) so the caller can re-insert it into the
// reservation station and let it re-issue, without squashing anything
// younger. It reports the instruction's renamed form and whether tag was
// found in any unit.
func (p *Pool) KillSpecific(tag inst.Tag) (rename.Inst, bool) {
	for _, units := range p.units {
		for _, u := range units {
			for i, e := range u.entries {
				if e.tag != tag {
					continue
				}

				if p.hier != nil && e.in.Op.IsLoad() {
					p.hier.CancelAccess(uint64(tag))
				}

				u.entries = append(u.entries[:i], u.entries[i+1:]...)
				return e.orig, true
			}
		}
	}

	return rename.Inst{}, false
}

// extendLoad applies the sign/zero extension a load's opcode calls for to a
// raw value read from the memory hierarchy.
func extendLoad(op inst.Op, raw uint32) uint32 {
	switch op {
	case inst.OpLB:
		return uint32(int32(int8(byte(raw))))
	case inst.OpLBU:
		return uint32(byte(raw))
	case inst.OpLH:
		return uint32(int32(int16(uint16(raw))))
	case inst.OpLHU:
		return uint32(uint16(raw))
	default: // OpLW
		return raw
	}
}

// Utilization reports, for each EU kind, the fraction of total (units *
// capacity) slots occupied right now.
func (p *Pool) Utilization() map[inst.EuType]float64 {
	out := make(map[inst.EuType]float64)

	for kind, units := range p.units {
		var used, total int
		for _, u := range units {
			used += len(u.entries)
			total += u.capacity
		}
		if total > 0 {
			out[kind] = float64(used) / float64(total)
		}
	}

	return out
}

func compute(tag inst.Tag, in rs.Ready, pc inst.Addr) Result {
	r := Result{Tag: tag, Op: in.Op, Dst: in.Dst}

	switch in.Op {
	case inst.OpADD, inst.OpADDI:
		r.Value = in.Src1 + operand2(in)
	case inst.OpSUB:
		r.Value = in.Src1 - in.Src2
	case inst.OpAND, inst.OpANDI:
		r.Value = in.Src1 & operand2(in)
	case inst.OpOR, inst.OpORI:
		r.Value = in.Src1 | operand2(in)
	case inst.OpXOR, inst.OpXORI:
		r.Value = in.Src1 ^ operand2(in)
	case inst.OpSLL, inst.OpSLLI:
		r.Value = in.Src1 << (operand2(in) & 0x1F)
	case inst.OpSRL, inst.OpSRLI:
		r.Value = in.Src1 >> (operand2(in) & 0x1F)
	case inst.OpSRA, inst.OpSRAI:
		r.Value = uint32(int32(in.Src1) >> (operand2(in) & 0x1F))
	case inst.OpSLT, inst.OpSLTI:
		if int32(in.Src1) < int32(operand2(in)) {
			r.Value = 1
		}
	case inst.OpSLTU, inst.OpSLTIU:
		if in.Src1 < operand2(in) {
			r.Value = 1
		}
	case inst.OpMUL:
		r.Value = in.Src1 * in.Src2
	case inst.OpDIV:
		if in.Src2 == 0 {
			r.Value = 0xFFFFFFFF
		} else {
			r.Value = uint32(int32(in.Src1) / int32(in.Src2))
		}
	case inst.OpDIVU:
		if in.Src2 == 0 {
			r.Value = 0xFFFFFFFF
		} else {
			r.Value = in.Src1 / in.Src2
		}
	case inst.OpREM:
		if in.Src2 == 0 {
			r.Value = in.Src1
		} else {
			r.Value = uint32(int32(in.Src1) % int32(in.Src2))
		}
	case inst.OpREMU:
		if in.Src2 == 0 {
			r.Value = in.Src1
		} else {
			r.Value = in.Src1 % in.Src2
		}
	case inst.OpLUI:
		r.Value = uint32(in.Imm)
	case inst.OpAUIPC:
		r.Value = uint32(pc) + uint32(in.Imm)
	case inst.OpJAL:
		r.Value = uint32(pc) + 4
		r.Taken = true
		r.Target = in.Jump
	case inst.OpJALR:
		r.Value = uint32(pc) + 4
		r.Taken = true
		r.Target = inst.Addr((in.Src1 + uint32(in.Imm)) &^ 1)
	case inst.OpBEQ:
		r.Taken = in.Src1 == in.Src2
		r.Target = in.Jump
	case inst.OpBNE:
		r.Taken = in.Src1 != in.Src2
		r.Target = in.Jump
	case inst.OpBLT:
		r.Taken = int32(in.Src1) < int32(in.Src2)
		r.Target = in.Jump
	case inst.OpBGE:
		r.Taken = int32(in.Src1) >= int32(in.Src2)
		r.Target = in.Jump
	case inst.OpBLTU:
		r.Taken = in.Src1 < in.Src2
		r.Target = in.Jump
	case inst.OpBGEU:
		r.Taken = in.Src1 >= in.Src2
		r.Target = in.Jump
	case inst.OpLB, inst.OpLH, inst.OpLW, inst.OpLBU, inst.OpLHU:
		r.EffAddr = in.Mem.Base + uint32(in.Mem.Offset)
	case inst.OpSB, inst.OpSH, inst.OpSW:
		r.EffAddr = in.Mem.Base + uint32(in.Mem.Offset)
		r.Value = in.Src1
	case inst.OpHALT:
		// no computation; the commit stage observes this op directly.
	case inst.OpEffAddr:
		r.Value = (in.Src1 << uint32(in.Imm)) + in.Src2
	case inst.OpLoadFullImm:
		r.Value = uint32(in.Imm)
	default:
		panic(fmt.Sprintf("eu: unhandled op %v", in.Op))
	}

	return r
}

func operand2(in rs.Ready) uint32 {
	if in.Op.HasImmediate() && !in.Op.ReadsSrc2() {
		return uint32(in.Imm)
	}
	return in.Src2
}
