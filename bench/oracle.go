package bench

import (
	"fmt"

	"github.com/sarchlab/rvoo/config"
	"github.com/sarchlab/rvoo/core"
	"github.com/sarchlab/rvoo/inst"
	"github.com/sarchlab/rvoo/memsys"
	"github.com/sarchlab/rvoo/refcpu"
)

// crossCheck re-runs s against the non-speculative reference interpreter
// from the same seeded state and asserts that its final architectural
// registers and main memory agree with ooo's — the "retirement equals
// emulation" invariant every scenario and property test relies on.
func crossCheck(cfg *config.Config, s Scenario, ooo *core.Pipeline) error {
	prog, err := Load(s.Name)
	if err != nil {
		return err
	}

	refMem := memsys.NewMemory()
	seedMemory(refMem, s.Preload)
	ref := refcpu.New(prog, refMem, refcpu.WithInitialRegs(s.Regs))

	if err := ref.Run(cfg.MaxCycles); err != nil {
		return fmt.Errorf("reference interpreter: %w", err)
	}

	oooRegs, refRegs := ooo.Regs(), ref.Regs()
	for r := inst.ArchReg(0); r < inst.NumArchRegs; r++ {
		if oooRegs[r] != refRegs[r] {
			return fmt.Errorf("register %s: out-of-order core has %#x, reference has %#x",
				r, oooRegs[r], refRegs[r])
		}
	}

	if addr, oooByte, refByte, mismatch := memsys.FirstDiff(ooo.Mem(), ref.Mem()); mismatch {
		return fmt.Errorf("memory byte %#x: out-of-order core has %#x, reference has %#x",
			addr, oooByte, refByte)
	}

	return nil
}
