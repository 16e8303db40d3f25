// Package program holds a loaded, label-resolved instruction stream.
package program

import (
	"fmt"

	"github.com/sarchlab/rvoo/inst"
)

// InstSize is the fixed width, in bytes, of every instruction.
const InstSize = 4

// Store is an immutable, label-resolved instruction stream, addressed by
// byte PC. Labels are resolved to absolute addresses once, at Load, rather
// than looked up on every branch.
type Store struct {
	insts []inst.PCInst // insts[i] lives at address i*InstSize
}

// Load resolves every label in insts against labels and returns a Store.
// It returns an error if any branch/jump target names an undefined label.
func Load(insts []inst.LabeledInst, labels map[inst.Label]inst.Addr) (*Store, error) {
	resolved := make([]inst.PCInst, 0, len(insts))

	for i, li := range insts {
		pc, ok := inst.Remap[inst.ArchReg, inst.ArchReg, inst.Label, inst.ArchReg, inst.ArchReg, inst.Addr](
			li,
			func(r inst.ArchReg) (inst.ArchReg, bool) { return r, true },
			func(r inst.ArchReg) (inst.ArchReg, bool) { return r, true },
			func(l inst.Label) (inst.Addr, bool) {
				addr, ok := labels[l]
				return addr, ok
			},
		)
		if !ok {
			return nil, fmt.Errorf("program: instruction %d (%v) targets undefined label %q", i, li.Op, li.Jump)
		}

		resolved = append(resolved, pc)
	}

	return &Store{insts: resolved}, nil
}

// Fetch returns the instruction at pc. ok is false if pc is misaligned or
// out of range.
func (s *Store) Fetch(pc inst.Addr) (inst.PCInst, bool) {
	if pc%InstSize != 0 {
		return inst.PCInst{}, false
	}

	idx := int(pc) / InstSize
	if idx < 0 || idx >= len(s.insts) {
		return inst.PCInst{}, false
	}

	return s.insts[idx], true
}

// Len returns the number of instructions in the store.
func (s *Store) Len() int {
	return len(s.insts)
}

// EndAddr returns the address one past the last instruction, i.e. the
// address that signals program end when reached without a Halt.
func (s *Store) EndAddr() inst.Addr {
	return inst.Addr(len(s.insts) * InstSize)
}
