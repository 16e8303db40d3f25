// Package bench provides the scenario harness used to
// exercise the out-of-order core end to end: it loads a named assembly
// program, seeds initial register and memory state, runs it to
// completion, and reports the resulting architectural state alongside the
// pipeline's performance counters.
package bench

import (
	"embed"
	"fmt"
	"time"

	"github.com/sarchlab/rvoo/asm"
	"github.com/sarchlab/rvoo/config"
	"github.com/sarchlab/rvoo/core"
	"github.com/sarchlab/rvoo/inst"
	"github.com/sarchlab/rvoo/memsys"
	"github.com/sarchlab/rvoo/program"
)

//go:embed testdata/*.asm
var sources embed.FS

// Load parses the scenario named name (without its .asm suffix) from the
// embedded testdata directory and resolves it into a program.Store.
func Load(name string) (*program.Store, error) {
	src, err := sources.ReadFile("testdata/" + name + ".asm")
	if err != nil {
		return nil, fmt.Errorf("bench: unknown scenario %q: %w", name, err)
	}

	parsed, err := asm.Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("bench: %s: %w", name, err)
	}

	return program.Load(parsed.Insts, parsed.Labels)
}

// Scenario is one named, self-contained test program: an assembly source
// (by name, resolved via Load), an initial machine state, and a check
// function run against the halted machine's final architectural state.
type Scenario struct {
	Name string

	// Regs seeds the architectural register file before execution.
	Regs map[inst.ArchReg]uint32

	// Preload seeds main memory with word values, keyed by byte address,
	// before execution.
	Preload map[uint32]uint32

	// Check validates the final state. It receives the halted machine's
	// architectural registers and its main memory.
	Check func(regs [inst.NumArchRegs]uint32, mem *memsys.Memory) error
}

// Result is one scenario's outcome, as reported by RunScenario.
type Result struct {
	Name     string
	Stats    core.Stats
	WallTime time.Duration

	// Mismatch is set if the out-of-order core's final state disagreed
	// with the reference interpreter's — the co-simulation oracle
	// invariant every scenario is also checked against.
	Mismatch error

	// CheckErr is set if Scenario.Check rejected the final state.
	CheckErr error
}

// Passed reports whether the scenario's run both co-simulated cleanly and
// passed its own Check.
func (r Result) Passed() bool {
	return r.Mismatch == nil && r.CheckErr == nil
}

func seedMemory(mem *memsys.Memory, preload map[uint32]uint32) {
	for addr, v := range preload {
		mem.WriteW(addr, v)
	}
}

// RunScenario builds a fresh pipeline and a fresh reference interpreter
// from identically seeded memory, runs both to completion under cfg, and
// reports the out-of-order core's statistics plus any divergence found.
func RunScenario(cfg *config.Config, s Scenario) Result {
	res := Result{Name: s.Name}

	prog, err := Load(s.Name)
	if err != nil {
		res.CheckErr = err
		return res
	}

	oooMem := memsys.NewMemory()
	seedMemory(oooMem, s.Preload)
	ooo := core.New(cfg, prog, oooMem,
		core.WithInitialRegs(s.Regs),
	)

	start := time.Now()
	if err := ooo.Run(); err != nil {
		res.CheckErr = fmt.Errorf("out-of-order core: %w", err)
		return res
	}
	res.WallTime = time.Since(start)
	res.Stats = ooo.Stats()

	if err := crossCheck(cfg, s, ooo); err != nil {
		res.Mismatch = err
		return res
	}

	if s.Check != nil {
		if err := s.Check(ooo.Regs(), ooo.Mem()); err != nil {
			res.CheckErr = err
		}
	}

	return res
}
