// Package regfile implements the physical register file, the register
// alias table (RAT) that maps architectural registers onto it, and the
// rename log used both to reclaim physical registers at commit (the
// post-retirement reclaim table) and to restore the RAT on a squash.
package regfile

import (
	"fmt"

	"github.com/sarchlab/rvoo/inst"
)

// PhysReg is an index into the physical register file.
type PhysReg uint32

// State is the lifecycle state of one physical register.
type State int

// Physical register states.
const (
	Free State = iota
	Reserved
	Active
)

// entry is one physical register slot.
type entry struct {
	state State
	value uint32
}

// renameEntry records one rename: the architectural register renamed, the
// physical register it previously pointed to, and the new physical
// register now backing it. Popping this list from the front (at commit)
// frees the previous mapping's register — this is the post-retirement
// reclaim table. Truncating it from the back (on squash) restores the RAT
// to what it was before the squashed renames happened, and frees the
// registers those renames had reserved.
type renameEntry struct {
	arch    inst.ArchReg
	oldPhys PhysReg
	newPhys PhysReg
}

// RegFile is the renaming register file: RAT + PRF + free list + rename
// log.
type RegFile struct {
	prf      []entry
	rat      [inst.NumArchRegs]PhysReg
	freeList []PhysReg
	log      []renameEntry
	logBase  int // number of log entries already committed and dropped
}

// New creates a RegFile with numPhys physical registers. The first
// NumArchRegs physical registers are pre-assigned 1:1 to the architectural
// registers, all holding zero and already Active; the rest start Free.
func New(numPhys int) *RegFile {
	if numPhys < int(inst.NumArchRegs) {
		panic(fmt.Sprintf("regfile: numPhys (%d) must be >= NumArchRegs (%d)", numPhys, inst.NumArchRegs))
	}

	rf := &RegFile{
		prf: make([]entry, numPhys),
	}

	for r := inst.ArchReg(0); r < inst.NumArchRegs; r++ {
		rf.rat[r] = PhysReg(r)
		rf.prf[r] = entry{state: Active, value: 0}
	}

	for p := int(inst.NumArchRegs); p < numPhys; p++ {
		rf.freeList = append(rf.freeList, PhysReg(p))
	}

	return rf
}

// Lookup returns the physical register currently backing an architectural
// register, per the RAT.
func (rf *RegFile) Lookup(r inst.ArchReg) PhysReg {
	return rf.rat[r]
}

// Rename allocates a fresh physical register for dst and updates the RAT to
// point at it, recording the displaced mapping in the rename log. It
// returns false without effect if the free list is exhausted. Renaming the
// zero register is rejected by the caller (the zero register is never
// renamed; it always resolves to physical register 0, which is permanently
// Active with value 0).
func (rf *RegFile) Rename(dst inst.ArchReg) (PhysReg, bool) {
	if len(rf.freeList) == 0 {
		return 0, false
	}

	newPhys := rf.freeList[len(rf.freeList)-1]
	rf.freeList = rf.freeList[:len(rf.freeList)-1]

	oldPhys := rf.rat[dst]
	rf.rat[dst] = newPhys
	rf.prf[newPhys] = entry{state: Reserved}

	rf.log = append(rf.log, renameEntry{arch: dst, oldPhys: oldPhys, newPhys: newPhys})

	return newPhys, true
}

// Read returns the value held by a physical register and whether it has
// been written yet (Active) as opposed to still Reserved awaiting its
// producer.
func (rf *RegFile) Read(p PhysReg) (uint32, bool) {
	e := rf.prf[p]
	return e.value, e.state == Active
}

// Write records an execution result into a physical register, making it
// Active.
func (rf *RegFile) Write(p PhysReg, value uint32) {
	if p == PhysReg(inst.Zero) {
		return
	}
	rf.prf[p] = entry{state: Active, value: value}
}

// Watermark returns a checkpoint usable with RestoreTo. It is an absolute
// count of renames performed since the RegFile was created, so it stays
// valid even after intervening commits shrink the in-memory log.
func (rf *RegFile) Watermark() int {
	return rf.logBase + len(rf.log)
}

// RestoreTo undoes every rename performed since watermark: the RAT is
// rolled back to each entry's previous mapping, and the physical registers
// those renames had reserved are returned to the free list.
func (rf *RegFile) RestoreTo(watermark int) {
	target := watermark - rf.logBase
	if target < 0 || target > len(rf.log) {
		panic(fmt.Sprintf("regfile: watermark %d out of range for current log [%d,%d]", watermark, rf.logBase, rf.logBase+len(rf.log)))
	}

	for i := len(rf.log) - 1; i >= target; i-- {
		e := rf.log[i]
		rf.rat[e.arch] = e.oldPhys
		rf.prf[e.newPhys] = entry{state: Free}
		rf.freeList = append(rf.freeList, e.newPhys)
	}

	rf.log = rf.log[:target]
}

// Commit releases the oldest rename log entry: the previous mapping it
// displaced is no longer reachable from any in-flight instruction (the
// instruction that renamed it has now retired), so its physical register
// is returned to the free list. Callers must call Commit exactly once per
// retiring instruction that performed a rename, in retirement order.
func (rf *RegFile) Commit() {
	if len(rf.log) == 0 {
		return
	}

	e := rf.log[0]
	rf.log = rf.log[1:]
	rf.logBase++

	if e.oldPhys != PhysReg(inst.Zero) {
		rf.prf[e.oldPhys] = entry{state: Free}
		rf.freeList = append(rf.freeList, e.oldPhys)
	}
}

// FreeCount returns the number of physical registers available for
// renaming.
func (rf *RegFile) FreeCount() int {
	return len(rf.freeList)
}

// PendingRenames returns the number of not-yet-committed renames.
func (rf *RegFile) PendingRenames() int {
	return len(rf.log)
}
