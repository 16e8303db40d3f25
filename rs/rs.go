// Package rs implements the reservation station: a pool of dispatched,
// not-yet-issued instructions waiting for their source operands to become
// ready, partitioned each cycle into waiting and ready by scanning the
// register file (rather than a tag-broadcast wakeup network).
package rs

import (
	"github.com/sarchlab/rvoo/inst"
	"github.com/sarchlab/rvoo/regfile"
	"github.com/sarchlab/rvoo/rename"
)

// Ready is the instruction shape handed to an execution unit: source
// operands have been resolved to concrete 32-bit values, while the
// destination remains a physical register to be written back later.
type Ready = inst.Inst[uint32, regfile.PhysReg, inst.Addr]

// Issued pairs a Ready instruction with its ROB tag. Orig is the same
// instruction in its renamed (physical-register-operand) form, carried
// along so a load that turns out to be blocked at issue, or surgically
// pulled back out of its execution unit by a memory-order replay, can be
// re-inserted into the reservation station unchanged.
type Issued struct {
	Tag  inst.Tag
	Orig rename.Inst
	Inst Ready
}

// entry is one reservation-station slot. Entries are kept ordered by Tag
// (ascending); since tags are assigned in increasing program order at
// rename and always appended in that order, a plain slice already
// maintains the same iteration order a Rust BTreeMap keyed by tag would.
type entry struct {
	tag  inst.Tag
	inst rename.Inst
}

// RS is the reservation station.
type RS struct {
	capacity int
	entries  []entry
}

// New creates an RS with the given capacity.
func New(capacity int) *RS {
	return &RS{capacity: capacity}
}

// Capacity returns the RS's maximum number of waiting entries.
func (s *RS) Capacity() int { return s.capacity }

// Len returns the number of entries currently held (waiting or ready).
func (s *RS) Len() int { return len(s.entries) }

// IsFull reports whether the RS has no room for another dispatch.
func (s *RS) IsFull() bool { return len(s.entries) >= s.capacity }

// TryDispatch inserts a newly renamed instruction. Callers must dispatch in
// increasing tag order.
func (s *RS) TryDispatch(tag inst.Tag, in rename.Inst) bool {
	if s.IsFull() {
		return false
	}

	s.entries = append(s.entries, entry{tag: tag, inst: in})
	return true
}

// ready reports whether every operand an instruction reads is Active in rf,
// and if so returns the Ready form of the instruction.
func ready(rf *regfile.RegFile, e entry) (Ready, bool) {
	out, ok := inst.Remap[regfile.PhysReg, regfile.PhysReg, inst.Addr, uint32, regfile.PhysReg, inst.Addr](
		e.inst,
		func(p regfile.PhysReg) (uint32, bool) { return rf.Read(p) },
		func(p regfile.PhysReg) (regfile.PhysReg, bool) { return p, true },
		func(a inst.Addr) (inst.Addr, bool) { return a, true },
	)
	return out, ok
}

// Issue scans the reservation station oldest-first (lowest tag first) and
// removes up to width instructions whose operands are all ready, in tag
// order. It is the "wakeup" step: rather than a tag-broadcast network, it
// simply polls the register file each cycle.
func (s *RS) Issue(rf *regfile.RegFile, width int) []Issued {
	if width <= 0 {
		return nil
	}

	var issued []Issued
	remaining := s.entries[:0:0]

	for _, e := range s.entries {
		if len(issued) < width {
			if r, ok := ready(rf, e); ok {
				issued = append(issued, Issued{Tag: e.tag, Orig: e.inst, Inst: r})
				continue
			}
		}
		remaining = append(remaining, e)
	}

	s.entries = remaining

	return issued
}

// Reinsert re-admits an instruction that Issue already removed this cycle
// but that turned out not to actually execute — a load the load/store
// queue blocked before it could be bound to an execution unit, or one
// surgically pulled back out of its execution unit by a memory-order
// replay — keeping entries in ascending tag order so the oldest-first
// wakeup policy still applies to it on a later cycle.
func (s *RS) Reinsert(tag inst.Tag, in rename.Inst) {
	i := 0
	for i < len(s.entries) && s.entries[i].tag < tag {
		i++
	}

	s.entries = append(s.entries, entry{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = entry{tag: tag, inst: in}
}

// KillTagsAfter removes every waiting entry whose tag is greater than cut,
// as part of a pipeline squash.
func (s *RS) KillTagsAfter(cut inst.Tag) {
	remaining := s.entries[:0:0]
	for _, e := range s.entries {
		if e.tag <= cut {
			remaining = append(remaining, e)
		}
	}
	s.entries = remaining
}
